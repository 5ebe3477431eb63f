package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	parsed, err := goUUID.Parse(id1)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed.Version())
}

func TestGeneratorNewRawIDIsOrdered(t *testing.T) {
	t.Parallel()

	gen := New()
	a, err := gen.NewRawID()
	require.NoError(t, err)
	b, err := gen.NewRawID()
	require.NoError(t, err)
	require.NotEqual(t, goUUID.Nil, a)
	require.Negative(t, compare(a, b))
}

func compare(a, b goUUID.UUID) int {
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}
