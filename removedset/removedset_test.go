package removedset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/kv"
	"github.com/trasherdk/haveno/kv/memkv"
)

func TestAddContains(t *testing.T) {
	db := memkv.New(kv.Tables)
	s, err := Load(db)
	require.NoError(t, err)

	h := cryptoutil.Sum([]byte("revoked"))
	require.False(t, s.Contains(h))

	s.Add(h)
	require.True(t, s.Contains(h))
	require.Equal(t, 1, s.Size())

	s.Add(h) // idempotent
	require.Equal(t, 1, s.Size())
}

func TestPersistenceRoundTrip(t *testing.T) {
	db := memkv.New(kv.Tables)
	s, err := Load(db)
	require.NoError(t, err)

	h := cryptoutil.Sum([]byte("permanent"))
	s.Add(h)
	require.NoError(t, s.Flush())

	reloaded, err := Load(db)
	require.NoError(t, err)
	require.True(t, reloaded.Contains(h))
	require.Equal(t, 1, reloaded.Size())
}
