package scraper

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, b *Base) func() []float64 {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []float64
	)
	b.Progress().Subscribe(func(_ context.Context, v float64) error {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
		return nil
	})
	return func() []float64 {
		mu.Lock()
		defer mu.Unlock()
		return append([]float64(nil), seen...)
	}
}

func TestBaseReportIsMonotonicAndBelowOne(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := NewBase("demo", nil)
	seen := collect(t, b)

	require.True(t, b.Report(ctx, 0.25))
	require.False(t, b.Report(ctx, 0.25))
	require.False(t, b.Report(ctx, 0.1))
	require.True(t, b.Report(ctx, 0.5))
	require.False(t, b.Report(ctx, 1))
	require.False(t, b.Report(ctx, 1.5))

	require.Equal(t, []float64{0.25, 0.5}, seen())
	require.InDelta(t, 0.5, b.Progress().Current(), 1e-9)
	require.False(t, b.Completed())
}

func TestBaseCompleteOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := NewBase("demo", nil)
	seen := collect(t, b)

	require.True(t, b.Report(ctx, 0.5))
	require.True(t, b.Complete(ctx))
	require.False(t, b.Complete(ctx))
	require.False(t, b.Report(ctx, 0.9))

	require.Equal(t, []float64{0.5, 1}, seen())
	require.True(t, b.Completed())
}

func TestBaseOutput(t *testing.T) {
	t.Parallel()

	b := NewBase("demo", nil)
	require.Equal(t, "demo", b.Name())
	require.Empty(t, b.Output().File)

	b.SetOutput("demo_1.csv")
	require.Equal(t, Output{File: "demo_1.csv"}, b.Output())
}
