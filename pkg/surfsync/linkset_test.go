package surfsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	surfaceB = "10.0.0.3:8000"
	surfaceC = "10.0.0.4:8000"
)

func linkedPair(t *testing.T) (*testEngine, []StripableID) {
	t.Helper()

	te := newTestEngine(t, DefaultSurfaceConfig())
	ids := te.addTracks(20)
	te.settle()

	for _, address := range []string{surfaceA, surfaceB} {
		te.send(address, "/set_surface", int32(8), int32(DefaultStripTypes), int32(3))
	}
	te.send(surfaceA, "/link/set", int32(1), int32(1))
	te.send(surfaceB, "/link/set", int32(1), int32(2))

	return te, ids
}

func notReady(t *testing.T, te *testEngine, address string) any {
	t.Helper()

	msg, ok := te.transport.last(address, "/link/not_ready")
	require.True(t, ok, "no /link/not_ready sent to %s", address)
	require.Len(t, msg.Args, 1)

	return msg.Args[0]
}

func TestLinkSetSharesBank(t *testing.T) {
	te, ids := linkedPair(t)

	set, ok := te.LinkSet(1)
	require.True(t, ok)
	assert.Equal(t, 0, set.NotReady)
	assert.Equal(t, 16, set.BankSize)
	assert.True(t, set.AutoBank)

	assert.Equal(t, ids[0:8], te.bound(surfaceA))
	assert.Equal(t, ids[8:16], te.bound(surfaceB))
	assert.Equal(t, int32(0), notReady(t, te, surfaceA))
	assert.Equal(t, int32(0), notReady(t, te, surfaceB))

	te.send(surfaceA, "/bank_up", int32(1))
	assert.Equal(t, 5, set.Bank, "top bank stays full")
	assert.Equal(t, ids[4:12], te.bound(surfaceA))
	assert.Equal(t, ids[12:20], te.bound(surfaceB))

	// either member pages the whole set
	te.send(surfaceB, "/bank_down", int32(1))
	assert.Equal(t, 1, set.Bank)
	assert.Equal(t, ids[0:8], te.bound(surfaceA))
}

func TestLinkMemberLeaves(t *testing.T) {
	te, _ := linkedPair(t)

	te.send(surfaceB, "/link/set", int32(1), int32(0))

	set, _ := te.LinkSet(1)
	assert.Equal(t, 2, set.NotReady)
	assert.Equal(t, int32(2), notReady(t, te, surfaceA))
	assert.Empty(t, te.bound(surfaceA))

	name, ok := te.transport.last(surfaceA, "/strip/name", 1)
	require.True(t, ok)
	assert.Equal(t, "Device 2", name.Args[1])

	s, _ := te.Registry().Lookup(surfaceB)
	linkSet, linkID := s.Link()
	assert.Zero(t, linkSet)
	assert.Zero(t, linkID)
	assert.Equal(t, int32(0), notReady(t, te, surfaceB))
	assert.Equal(t, 1, s.Bank())
	assert.Len(t, te.bound(surfaceB), 8)

	// the slot is refilled by another device
	te.send(surfaceC, "/set_surface", int32(4), int32(DefaultStripTypes), int32(3))
	te.send(surfaceC, "/link/set", int32(1), int32(2))
	assert.Equal(t, 0, set.NotReady)
	assert.Equal(t, 12, set.BankSize)
	assert.Len(t, te.bound(surfaceC), 4)
}

func TestLinkFixedBankSize(t *testing.T) {
	te, _ := linkedPair(t)
	set, _ := te.LinkSet(1)

	te.send(surfaceA, "/link/1/bank_size", int32(24))
	assert.False(t, set.AutoBank)
	assert.Equal(t, 3, set.NotReady, "members do not add up to the fixed size")
	assert.Equal(t, int32(3), notReady(t, te, surfaceB))

	te.send(surfaceA, "/link/bank_size", int32(1), int32(0))
	assert.True(t, set.AutoBank)
	assert.Equal(t, 0, set.NotReady)
	assert.Equal(t, 16, set.BankSize)
}

func TestLinkSlotTakeover(t *testing.T) {
	te, _ := linkedPair(t)

	te.send(surfaceC, "/set_surface", int32(8), int32(DefaultStripTypes), int32(3))
	te.send(surfaceC, "/link/set", int32(1), int32(2))

	set, _ := te.LinkSet(1)
	assert.Equal(t, []string{"", surfaceA, surfaceC}, set.Members)

	b, _ := te.Registry().Lookup(surfaceB)
	linkSet, _ := b.Link()
	assert.Zero(t, linkSet, "displaced member is unlinked")
	assert.Equal(t, 1, te.countLogs("Device slot taken over"))
}

func TestLinkMemberWithoutBankSize(t *testing.T) {
	te := newTestEngine(t, DefaultSurfaceConfig())
	te.addTracks(4)
	te.settle()

	te.send(surfaceA, "/set_surface", int32(0), int32(DefaultStripTypes), int32(3))
	te.send(surfaceA, "/link/set", int32(2), int32(1))

	set, ok := te.LinkSet(2)
	require.True(t, ok)
	assert.Equal(t, 1, set.NotReady)
	assert.Equal(t, int32(1), notReady(t, te, surfaceA))

	te.send(surfaceA, "/set_surface/bank_size", int32(4))
	assert.Equal(t, 0, set.NotReady)
	assert.Len(t, te.bound(surfaceA), 4)
}

func TestResetSurfaceLeavesLink(t *testing.T) {
	te, _ := linkedPair(t)

	te.send(surfaceB, "/surface/reset")

	set, _ := te.LinkSet(1)
	assert.Equal(t, 2, set.NotReady)
	assert.Equal(t, int32(2), notReady(t, te, surfaceA))
}
