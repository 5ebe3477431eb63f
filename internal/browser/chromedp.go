package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

const defaultNavTimeout = 30 * time.Second

// ChromeConfig controls how Chrome processes are started.
type ChromeConfig struct {
	Headless          bool
	UserAgent         string
	ExecPath          string
	NavigationTimeout time.Duration
}

// ChromedpLauncher starts one headless Chrome process per handle.
type ChromedpLauncher struct {
	cfg ChromeConfig
}

// NewChromedpLauncher creates a Launcher backed by chromedp.
func NewChromedpLauncher(cfg ChromeConfig) *ChromedpLauncher {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	return &ChromedpLauncher{cfg: cfg}
}

func (l *ChromedpLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	if l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

// Launch starts a Chrome process and returns a handle owning it.
func (l *ChromedpLauncher) Launch(ctx context.Context) (Handle, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser; abort it if the caller gives up.
	stop := context.AfterFunc(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return &Browser{
		id:          uuid.NewString(),
		cfg:         l.cfg,
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
	}, nil
}

// Browser is a Handle backed by a running Chrome process.
type Browser struct {
	id          string
	cfg         ChromeConfig
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
}

// ID returns the handle identifier used in logs.
func (b *Browser) ID() string {
	return b.id
}

// Render opens a tab, loads url and returns the outer HTML of the document.
func (b *Browser) Render(ctx context.Context, url, waitSelector string) (string, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, b.navTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	actions := []chromedp.Action{
		b.networkSetupAction(),
		chromedp.Navigate(url),
	}
	if waitSelector != "" {
		actions = append(actions, chromedp.WaitReady(waitSelector, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", fmt.Errorf("chromedp render %s: %w", url, err)
	}
	return html, nil
}

func (b *Browser) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) navTimeout() time.Duration {
	if b.cfg.NavigationTimeout > 0 {
		return b.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

// Close shuts Chrome down. It is safe to call more than once.
func (b *Browser) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if cerr := chromedp.Cancel(b.ctx); cerr != nil {
			err = fmt.Errorf("cancel chrome: %w", cerr)
		}
		b.cancel()
		b.allocCancel()
	})
	return err
}
