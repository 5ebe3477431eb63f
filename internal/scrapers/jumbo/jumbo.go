// Package jumbo scrapes product listings from the Jumbo supermarket web shop.
//
// The component registers two scrapers: "jumbo", which renders every listing
// page in a pooled browser, and "jumbo-lite", which fetches the server
// rendered HTML directly with colly.
package jumbo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/plugin"
	"github.com/JakeFAU/scraperhub/internal/ratelimit"
	"github.com/JakeFAU/scraperhub/internal/scraper"
)

// Domain is the manifest domain served by this component.
const Domain = "jumbo"

const (
	// BrowserScraper renders pages through the browser pool.
	BrowserScraper = "jumbo"
	// LiteScraper fetches pages over plain HTTP.
	LiteScraper = "jumbo-lite"
)

// Config selects which listing pages are walked.
type Config struct {
	BaseURL    string        `mapstructure:"base_url"`
	Categories []string      `mapstructure:"categories"`
	MaxPages   int           `mapstructure:"max_pages"`
	UserAgent  string        `mapstructure:"user_agent"`
	Timeout    time.Duration `mapstructure:"timeout"`

	// RequestsPerSecond paces page fetches per host across both variants.
	// Zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "https://www.jumbo.com/producten",
		Categories: []string{"zuivel,-eieren,-boter", "brood-en-gebak"},
		MaxPages:   3,
		Timeout:    15 * time.Second,

		RequestsPerSecond: 2,
		Burst:             1,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = def.BaseURL
	}
	if len(c.Categories) == 0 {
		c.Categories = def.Categories
	}
	if c.MaxPages <= 0 {
		c.MaxPages = def.MaxPages
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// Component is the loaded jumbo domain.
type Component struct {
	cfg     Config
	base    *url.URL
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// New validates cfg and returns the component.
func New(cfg Config, logger *zap.Logger) (*Component, error) {
	cfg = cfg.withDefaults()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Component{
		cfg:     cfg,
		base:    base,
		limiter: ratelimit.New(ratelimit.Config{RPS: cfg.RequestsPerSecond, Burst: cfg.Burst}),
		logger:  logger,
	}, nil
}

// Loader adapts New to the plugin catalog.
func Loader(cfg Config, logger *zap.Logger) plugin.Loader {
	return func() (plugin.Component, error) {
		return New(cfg, logger)
	}
}

// Setup registers both scraper variants.
func (c *Component) Setup(_ context.Context, r plugin.Registrar) error {
	r.RegisterScraper(BrowserScraper, c.newBrowserScraper)
	r.RegisterScraper(LiteScraper, c.newLiteScraper)
	return nil
}

func (c *Component) newBrowserScraper(env scraper.Env) (scraper.Scraper, error) {
	if env.Browsers == nil {
		return nil, fmt.Errorf("%s requires a browser pool", BrowserScraper)
	}
	return c.newListing(BrowserScraper, env, func(ctx context.Context) (pageFetcher, func(), error) {
		h, err := env.Browsers.Acquire(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("acquire browser: %w", err)
		}
		release := func() {
			if err := env.Browsers.Release(h); err != nil {
				c.logger.Warn("browser release failed", zap.Error(err))
			}
		}
		return &browserFetcher{handle: h}, release, nil
	})
}

func (c *Component) newLiteScraper(env scraper.Env) (scraper.Scraper, error) {
	return c.newListing(LiteScraper, env, func(context.Context) (pageFetcher, func(), error) {
		return newCollyFetcher(c.cfg.UserAgent, c.cfg.Timeout), func() {}, nil
	})
}

func (c *Component) newListing(name string, env scraper.Env, open openFetcher) (scraper.Scraper, error) {
	if env.Artifacts == nil {
		return nil, fmt.Errorf("%s requires an artifact store", name)
	}
	logger := env.Logger
	if logger == nil {
		logger = c.logger
	}
	logger = logger.Named(name)
	return &listing{
		Base:      scraper.NewBase(name, logger),
		cfg:       c.cfg,
		base:      c.base,
		artifacts: env.Artifacts,
		open:      open,
		limiter:   c.limiter,
		logger:    logger,
	}, nil
}

// pageURL returns the listing URL for a category page, pages counted from 0.
func pageURL(base *url.URL, category string, page int) string {
	u := base.JoinPath(category)
	q := u.Query()
	if page > 0 {
		q.Set("offSet", strconv.Itoa(page*pageSize))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
