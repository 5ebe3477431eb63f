// Package plugin discovers integrations on disk, loads the component behind
// each one and collects the scraper constructors they register.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/scraper"
)

// ErrNoLoader is returned when no component is compiled in for a domain.
var ErrNoLoader = errors.New("no loader for domain")

// Component is whatever a Loader returns for a domain.
type Component any

// Loader builds the component for one domain.
type Loader func() (Component, error)

// Catalog maps a domain to its Loader.
type Catalog map[string]Loader

// Registrar accepts scraper registrations from setup hooks.
type Registrar interface {
	RegisterScraper(name string, ctor scraper.Constructor)
}

// SetupHook is implemented by components that register scrapers.
type SetupHook interface {
	Setup(ctx context.Context, r Registrar) error
}

// Integration is one discovered plugin directory.
type Integration struct {
	Manifest
	Dir string

	registry *Registry
}

// Component returns the component for the integration's domain. Every
// integration sharing a domain receives the same value.
func (i *Integration) Component() (Component, error) {
	return i.registry.component(i.Domain)
}

// SetupResult reports the outcome of one integration's setup hook.
type SetupResult struct {
	Integration *Integration
	// Hooked is false when the component has no setup hook.
	Hooked bool
	Err    error
}

type cacheEntry struct {
	once sync.Once
	comp Component
	err  error
}

// Registry holds discovered integrations, the component cache and the
// registered scraper constructors. It is safe for concurrent use.
type Registry struct {
	catalog Catalog
	logger  *zap.Logger

	mu           sync.RWMutex
	integrations []*Integration
	scrapers     map[string]scraper.Constructor

	cacheMu sync.Mutex
	cache   map[string]*cacheEntry
}

// NewRegistry creates an empty registry resolving domains through catalog.
func NewRegistry(catalog Catalog, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		catalog:  catalog,
		logger:   logger,
		scrapers: make(map[string]scraper.Constructor),
		cache:    make(map[string]*cacheEntry),
	}
}

// Discover scans the immediate subdirectories of every root for a manifest
// and records an Integration for each valid one. Unreadable roots and bad
// manifests are logged and skipped. It returns the integrations found by
// this call.
func (r *Registry) Discover(roots ...string) []*Integration {
	var found []*Integration
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			r.logger.Warn("plugin root unreadable", zap.String("root", root), zap.Error(err))
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			path := filepath.Join(dir, ManifestFile)
			manifest, err := ReadManifest(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					r.logger.Debug("plugin directory without manifest", zap.String("dir", dir))
				} else {
					r.logger.Error("plugin manifest rejected", zap.String("path", path), zap.Error(err))
				}
				continue
			}
			integ := &Integration{Manifest: manifest, Dir: dir, registry: r}
			found = append(found, integ)
			r.logger.Info("plugin discovered",
				zap.String("name", manifest.Name),
				zap.String("domain", manifest.Domain),
				zap.String("dir", dir),
			)
		}
	}

	r.mu.Lock()
	r.integrations = append(r.integrations, found...)
	r.mu.Unlock()
	return found
}

// Integrations returns a snapshot of every discovered integration.
func (r *Registry) Integrations() []*Integration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Integration(nil), r.integrations...)
}

func (r *Registry) component(domain string) (Component, error) {
	r.cacheMu.Lock()
	entry, ok := r.cache[domain]
	if !ok {
		entry = &cacheEntry{}
		r.cache[domain] = entry
	}
	r.cacheMu.Unlock()

	entry.once.Do(func() {
		loader, ok := r.catalog[domain]
		if !ok {
			entry.err = fmt.Errorf("%w %q", ErrNoLoader, domain)
			return
		}
		defer func() {
			if rec := recover(); rec != nil {
				entry.comp = nil
				entry.err = fmt.Errorf("load component %q panicked: %v", domain, rec)
				r.logger.Error("component loader panicked",
					zap.String("domain", domain),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()
		r.logger.Debug("loading component", zap.String("domain", domain))
		entry.comp, entry.err = loader()
		if entry.err != nil {
			entry.err = fmt.Errorf("load component %q: %w", domain, entry.err)
		}
	})
	return entry.comp, entry.err
}

// Setup runs the setup hook of every discovered integration concurrently and
// waits for all of them. A failing or panicking hook does not affect the
// others; each outcome is reported in the result at the integration's index.
func (r *Registry) Setup(ctx context.Context) []SetupResult {
	integrations := r.Integrations()
	results := make([]SetupResult, len(integrations))

	var wg sync.WaitGroup
	for i, integ := range integrations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.setupOne(ctx, integ)
		}()
	}
	wg.Wait()
	return results
}

func (r *Registry) setupOne(ctx context.Context, integ *Integration) (res SetupResult) {
	res.Integration = integ
	defer func() {
		if rec := recover(); rec != nil {
			res.Err = fmt.Errorf("setup %s panicked: %v", integ.Name, rec)
			r.logger.Error("plugin setup panicked",
				zap.String("name", integ.Name),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	comp, err := integ.Component()
	if err != nil {
		r.logger.Error("plugin component unavailable", zap.String("name", integ.Name), zap.Error(err))
		res.Err = err
		return res
	}
	hook, ok := comp.(SetupHook)
	if !ok {
		return res
	}
	res.Hooked = true
	if err := hook.Setup(ctx, r); err != nil {
		r.logger.Error("plugin setup failed", zap.String("name", integ.Name), zap.Error(err))
		res.Err = fmt.Errorf("setup %s: %w", integ.Name, err)
	}
	return res
}

// RegisterScraper adds or replaces the constructor for name.
func (r *Registry) RegisterScraper(name string, ctor scraper.Constructor) {
	r.mu.Lock()
	_, replaced := r.scrapers[name]
	r.scrapers[name] = ctor
	r.mu.Unlock()
	if replaced {
		r.logger.Debug("scraper registration replaced", zap.String("scraper", name))
		return
	}
	r.logger.Info("scraper registered", zap.String("scraper", name))
}

// Lookup returns the constructor registered under name.
func (r *Registry) Lookup(name string) (scraper.Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.scrapers[name]
	return ctor, ok
}

// ScraperNames returns the registered scraper names in sorted order.
func (r *Registry) ScraperNames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.scrapers))
	for name := range r.scrapers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
