package getdata

import (
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"

	"github.com/trasherdk/haveno/appendonly"
	"github.com/trasherdk/haveno/capset"
	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/kv"
	"github.com/trasherdk/haveno/kv/memkv"
	"github.com/trasherdk/haveno/p2pstore"
	"github.com/trasherdk/haveno/payload"
)

func defaultBuildParams() BuildParams {
	return BuildParams{
		ExcludedHashes:    map[cryptoutil.Hash]struct{}{},
		MaxEntriesPerType: 100,
		PeerCapabilities:  capset.Empty(),
		AppendOnlyShare:   1 << 18,
		ProtectedShare:    3 << 18,
		Nonce:             1,
	}
}

func TestBuildResponseSkipsExcludedHashes(t *testing.T) {
	storage, aoReg, mock := newTestSetup(t)

	known := signedProtectedEntry(t, "already-have", 1, mock.Now(), payload.Traits{})
	missing := signedProtectedEntry(t, "missing", 1, mock.Now(), payload.Traits{})
	ok, err := storage.Add(known, p2pstore.AddOptions{})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = storage.Add(missing, p2pstore.AddOptions{})
	require.NoError(t, err)
	require.True(t, ok)

	knownHash, err := payload.Hash(known.Payload)
	require.NoError(t, err)
	missingHash, err := payload.Hash(missing.Payload)
	require.NoError(t, err)

	params := defaultBuildParams()
	params.ExcludedHashes[knownHash] = struct{}{}

	resp := BuildResponse(params, storage, aoReg)
	require.Len(t, resp.ProtectedEntries, 1)
	got, err := payload.Hash(resp.ProtectedEntries[0].PayloadValue())
	require.NoError(t, err)
	require.Equal(t, missingHash, got)
	require.False(t, resp.WasTruncated)
}

func TestBuildResponseGatesOnPeerCapabilities(t *testing.T) {
	storage, aoReg, mock := newTestSetup(t)

	gated := signedProtectedEntry(t, "capable-only", 1, mock.Now(), payload.Traits{RequiredCapabilities: capset.Of(7)})
	ok, err := storage.Add(gated, p2pstore.AddOptions{})
	require.NoError(t, err)
	require.True(t, ok)

	params := defaultBuildParams()
	resp := BuildResponse(params, storage, aoReg)
	require.Empty(t, resp.ProtectedEntries, "a peer without the required capability must not receive the payload")

	params.PeerCapabilities = capset.Of(7)
	resp = BuildResponse(params, storage, aoReg)
	require.Len(t, resp.ProtectedEntries, 1)
}

func TestBuildResponseIsDeterministic(t *testing.T) {
	storage, aoReg, mock := newTestSetup(t)
	for _, data := range []string{"one", "two", "three", "four"} {
		e := signedProtectedEntry(t, data, 1, mock.Now(), payload.Traits{})
		ok, err := storage.Add(e, p2pstore.AddOptions{})
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := 0; i < 3; i++ {
		p := newAppendOnlyFixture(string(rune('x'+i)), "aocat", payload.Traits{})
		store, _ := aoReg.Lookup("aocat")
		_, err := store.(*appendonly.PlainStore).Ingest(p, false, false, time.Time{})
		require.NoError(t, err)
	}

	params := defaultBuildParams()
	r1 := BuildResponse(params, storage, aoReg)
	r2 := BuildResponse(params, storage, aoReg)
	require.Empty(t, deep.Equal(r1, r2), "BuildResponse must be deterministic in membership and flags for fixed inputs")
}

func TestBuildResponseHistoricalVersionSelection(t *testing.T) {
	storage, aoReg, _ := newTestSetup(t)

	histTypeReg := appendonly.NewTypeRegistry()
	histTypeReg.Register("versionedResponsePayload", &versionedResponsePayload{})
	hist := appendonly.NewHistoricalStore(9, "histcat", 3, memkv.New(kv.Tables), histTypeReg)
	aoReg.Register(hist)

	for v := 1; v <= 3; v++ {
		p := newVersionedResponsePayload("v"+string(rune('0'+v)), v)
		_, err := hist.Ingest(p, false, false, time.Time{})
		require.NoError(t, err)
	}

	params := defaultBuildParams()
	params.RequesterVersion = nil
	resp := BuildResponse(params, storage, aoReg)
	require.Len(t, resp.AppendOnlyPayloads, 3, "a pre-versioning requester receives all historical data")

	v2 := 2
	params.RequesterVersion = &v2
	resp = BuildResponse(params, storage, aoReg)
	require.Len(t, resp.AppendOnlyPayloads, 2, "a versioned requester only receives data at or past its version")
}

type versionedResponsePayload struct {
	Data     string
	version  int
	declared cryptoutil.Hash
}

func (p *versionedResponsePayload) Traits() payload.Traits       { return payload.Traits{} }
func (p *versionedResponsePayload) CanonicalFields() interface{} { return p.Data }
func (p *versionedResponsePayload) Hash() cryptoutil.Hash        { return p.declared }
func (p *versionedResponsePayload) ProtocolVersion() int         { return p.version }
func (p *versionedResponsePayload) Category() string             { return "histcat" }

func newVersionedResponsePayload(data string, version int) *versionedResponsePayload {
	p := &versionedResponsePayload{Data: data, version: version}
	h, _ := payload.Hash(p)
	p.declared = h
	return p
}
