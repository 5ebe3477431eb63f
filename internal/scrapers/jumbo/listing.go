package jumbo

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/metrics"
	"github.com/JakeFAU/scraperhub/internal/output"
	"github.com/JakeFAU/scraperhub/internal/ratelimit"
	"github.com/JakeFAU/scraperhub/internal/scraper"
)

type listing struct {
	*scraper.Base

	cfg       Config
	base      *url.URL
	artifacts scraper.ArtifactStore
	open      openFetcher
	limiter   *ratelimit.Limiter
	logger    *zap.Logger
}

// Run walks every configured category until MaxPages pages were read or a
// page comes back empty, then writes the products to a CSV artifact.
func (l *listing) Run(ctx context.Context) (err error) {
	fetcher, closeFetcher, err := l.open(ctx)
	if err != nil {
		return err
	}
	released := false
	release := func() {
		if !released {
			released = true
			closeFetcher()
		}
	}
	defer release()

	artifact, err := l.artifacts.Create(l.Name(), "csv")
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer func() {
		if err != nil {
			if derr := artifact.Discard(); derr != nil {
				l.logger.Warn("artifact discard failed", zap.Error(derr))
			}
		}
	}()

	w := csv.NewWriter(artifact)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	total := len(l.cfg.Categories) * l.cfg.MaxPages
	done, rows := 0, 0
	for _, category := range l.cfg.Categories {
		for page := 0; page < l.cfg.MaxPages; page++ {
			n, err := l.scrapePage(ctx, fetcher, w, category, page)
			if err != nil {
				return err
			}
			rows += n
			done++
			l.Report(ctx, float64(done)/float64(total))
			if n == 0 {
				// Out of products: count the remaining pages of this category as done.
				done += l.cfg.MaxPages - page - 1
				l.Report(ctx, float64(done)/float64(total))
				break
			}
		}
	}

	// The handle goes back to the pool before 1.0 frees the session slot.
	release()

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := artifact.Close(ctx); err != nil {
		if !errors.Is(err, output.ErrMirror) {
			return fmt.Errorf("close artifact: %w", err)
		}
		l.logger.Warn("artifact mirror failed", zap.Error(err))
	}
	l.SetOutput(artifact.Name())
	l.logger.Info("listing scraped", zap.Int("products", rows), zap.String("file", artifact.Name()))
	l.Complete(ctx)
	return nil
}

func (l *listing) scrapePage(ctx context.Context, fetcher pageFetcher, w *csv.Writer, category string, page int) (int, error) {
	target := pageURL(l.base, category, page)
	if err := l.limiter.Wait(ctx, target); err != nil {
		return 0, err
	}
	html, err := fetcher.Fetch(ctx, target)
	if err != nil {
		metrics.ObservePage(l.Name(), "error")
		return 0, fmt.Errorf("fetch %s: %w", target, err)
	}
	products, err := ParseProducts(strings.NewReader(html), l.base)
	if err != nil {
		metrics.ObservePage(l.Name(), "error")
		return 0, err
	}
	metrics.ObservePage(l.Name(), "ok")
	for _, p := range products {
		if err := w.Write(p.record()); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	l.logger.Debug("listing page scraped",
		zap.String("category", category),
		zap.Int("page", page),
		zap.Int("products", len(products)),
	)
	return len(products), nil
}
