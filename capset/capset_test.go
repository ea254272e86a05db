package capset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptySetIsAlwaysContained(t *testing.T) {
	peerCaps := Empty()
	require.True(t, peerCaps.Contains(Empty()), "a payload requiring no capabilities must always transmit")
}

func TestContainsRequiresEveryCapability(t *testing.T) {
	peerCaps := Of(1, 2, 3)
	require.True(t, peerCaps.Contains(Of(1, 2)))
	require.False(t, peerCaps.Contains(Of(1, 4)), "peer lacks capability 4")
}

func TestAddIsImmutableStyle(t *testing.T) {
	base := Of(1)
	extended := base.Add(2)
	require.False(t, base.Contains(Of(2)))
	require.True(t, extended.Contains(Of(1, 2)))
}

func TestSliceRoundTrip(t *testing.T) {
	s := Of(5, 1, 3)
	got := s.Slice()
	require.ElementsMatch(t, []ID{1, 3, 5}, got)
}

func TestRegistryAssignsStableIDs(t *testing.T) {
	r := NewRegistry()
	id1 := r.Register("mailbox-v2")
	id2 := r.Register("mailbox-v2")
	require.Equal(t, id1, id2, "registering the same name twice must return the same ID")

	other := r.Register("offers-v1")
	require.NotEqual(t, id1, other)

	looked, ok := r.Lookup("mailbox-v2")
	require.True(t, ok)
	require.Equal(t, id1, looked)

	_, ok = r.Lookup("unknown")
	require.False(t, ok)
}
