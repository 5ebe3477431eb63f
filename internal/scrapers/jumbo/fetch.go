package jumbo

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/scraperhub/internal/browser"
)

// pageFetcher returns the HTML of one listing page.
type pageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// openFetcher prepares a fetcher for one run and returns its cleanup.
type openFetcher func(ctx context.Context) (pageFetcher, func(), error)

type browserFetcher struct {
	handle browser.Handle
}

func (f *browserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	html, err := f.handle.Render(ctx, url, tileSelector)
	if err != nil {
		return "", fmt.Errorf("render listing: %w", err)
	}
	return html, nil
}

type collyFetcher struct {
	base *colly.Collector
}

func newCollyFetcher(userAgent string, timeout time.Duration) *collyFetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	})
	if userAgent != "" {
		c.UserAgent = userAgent
	}
	c.SetRequestTimeout(timeout)
	return &collyFetcher{base: c}
}

func (f *collyFetcher) Fetch(ctx context.Context, url string) (string, error) {
	collector := f.base.Clone()
	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("colly visit failed: %w", err)
		}
		if fetchErr != nil {
			return "", fmt.Errorf("colly response failed: %w", fetchErr)
		}
		return string(body), nil
	}
}
