// Package scrapers lists the components compiled into the binary.
package scrapers

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/plugin"
	"github.com/JakeFAU/scraperhub/internal/scrapers/jumbo"
)

// Settings carries per-component configuration.
type Settings struct {
	Jumbo jumbo.Config
}

// Catalog returns the loader for every built-in domain.
func Catalog(settings Settings, logger *zap.Logger) plugin.Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return plugin.Catalog{
		jumbo.Domain: jumbo.Loader(settings.Jumbo, logger.Named(jumbo.Domain)),
	}
}
