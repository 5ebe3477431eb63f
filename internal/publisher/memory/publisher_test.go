package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherGroupsByKey(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()
	for _, key := range []string{"jumbo", "jumbo-lite", "jumbo"} {
		_, err := pub.Publish(ctx, key, key+" done")
		require.NoError(t, err)
	}

	all := pub.Messages()
	require.Len(t, all, 3)
	require.Equal(t, "memory-3", all[2].ID)

	jumbo := pub.ForKey("jumbo")
	require.Len(t, jumbo, 2)
	require.Equal(t, "memory-1", jumbo[0].ID)
	require.Equal(t, "memory-3", jumbo[1].ID)
	require.Empty(t, pub.ForKey("unknown"))

	all[0].Key = "modified"
	require.Equal(t, "jumbo", pub.Messages()[0].Key)
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("broker down")
	pub.FailWith(boom)
	_, err := pub.Publish(context.Background(), "jumbo", nil)
	require.ErrorIs(t, err, boom)
	require.Empty(t, pub.Messages())

	pub.FailWith(nil)
	id, err := pub.Publish(context.Background(), "jumbo", nil)
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)
}

func TestPublisherCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Publish(ctx, "jumbo", nil)
	require.ErrorIs(t, err, context.Canceled)
}
