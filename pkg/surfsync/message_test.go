package surfsync

import (
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessagePacket(t *testing.T) {
	msg := NewMessage("/strip/name", int32(1), float32(0.5), "Kick", true, false, nil)

	tags, err := msg.packet().TypeTags()
	require.NoError(t, err)
	assert.Equal(t, ",ifsTFN", tags)
	assert.Equal(t, "/strip/name ,ifsTFN 1 0.5 Kick true false Nil", msg.packet().String())
}

func TestArgConversions(t *testing.T) {
	args := []any{int32(3), float32(0.7), "2.5", true, float64(0.2), []byte{1}}

	f, ok := argFloat(args, 1)
	assert.True(t, ok)
	assert.InDelta(t, 0.7, f, 1e-6)

	n, ok := argInt(args, 2)
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = argFloat(args, 5)
	assert.False(t, ok)
	_, ok = argFloat(args, 9)
	assert.False(t, ok)

	y, ok := argBool(args, 1)
	assert.True(t, ok)
	assert.True(t, y)
	y, _ = argBool(args, 4)
	assert.False(t, y, "floats count as true from 0.5")
	y, _ = argBool(args, 3)
	assert.True(t, y)

	s, ok := argString(args, 0)
	assert.True(t, ok)
	assert.Equal(t, "3", s)
}

func TestFlattenPacket(t *testing.T) {
	inner := osc.NewBundle(time.Now())
	inner.Append(osc.NewMessage("/bank_down", int32(1)))

	outer := osc.NewBundle(time.Now())
	outer.Append(osc.NewMessage("/strip/1/mute", int32(1)))
	outer.Append(inner)

	msgs := flattenPacket(outer)
	assert.Equal(t, []Message{
		{Address: "/strip/1/mute", Args: []any{int32(1)}},
		{Address: "/bank_down", Args: []any{int32(1)}},
	}, msgs)

	assert.Equal(t, []Message{{Address: "/refresh"}}, flattenPacket(osc.NewMessage("/refresh")))
}
