package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "jumbo", map[string]string{"k": "v"})
	require.ErrorContains(t, err, "not configured")
}

func TestConnectRequiresIdentifiers(t *testing.T) {
	t.Parallel()

	_, _, err := Connect(context.Background(), "", "topic")
	require.Error(t, err)
	_, _, err = Connect(context.Background(), "project", "")
	require.Error(t, err)
}
