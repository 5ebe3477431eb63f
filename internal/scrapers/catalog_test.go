package scrapers

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scraperhub/internal/plugin"
)

func TestCatalogWithBundledPlugins(t *testing.T) {
	t.Parallel()

	_, thisFile, _, ok := runtime.Caller(0)
	require.True(t, ok)
	pluginsDir := filepath.Join(filepath.Dir(thisFile), "..", "..", "plugins")
	_, err := os.Stat(pluginsDir)
	require.NoError(t, err)

	reg := plugin.NewRegistry(Catalog(Settings{}, nil), nil)
	found := reg.Discover(pluginsDir)
	require.Len(t, found, 2)

	results := reg.Setup(context.Background())
	for _, res := range results {
		require.NoError(t, res.Err)
		require.True(t, res.Hooked)
	}
	require.Equal(t, []string{"jumbo", "jumbo-lite"}, reg.ScraperNames())

	a, err := found[0].Component()
	require.NoError(t, err)
	b, err := found[1].Component()
	require.NoError(t, err)
	require.Same(t, a, b)
}
