package surfsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryProviderTopology(t *testing.T) {
	p := NewMemoryProvider(zap.NewNop().Sugar())

	changes := 0
	sub := p.SubscribeTopology(func() { changes++ })

	id := p.Add(StripableSpec{Kind: KindAudioTrack})
	assert.NotEmpty(t, id, "an id is generated when none is given")
	p.Add(StripableSpec{ID: "b1", Name: "Bus", Kind: KindAudioBus})
	assert.Equal(t, 2, changes)

	strip, ok := p.Stripable(id)
	require.True(t, ok)
	assert.Equal(t, string(id), strip.Name())

	p.Reorder("b1", -1)
	assert.Equal(t, 3, changes)

	assert.True(t, p.Remove(id))
	assert.False(t, p.Remove(id))
	assert.Equal(t, 4, changes)

	sub.Close()
	sub.Close()
	p.Add(StripableSpec{ID: "t2"})
	assert.Equal(t, 4, changes, "closed subscriptions are not called")
}

func TestMemoryProviderStripablesOrdered(t *testing.T) {
	p := NewMemoryProvider(zap.NewNop().Sugar())
	p.Add(StripableSpec{ID: "a"})
	p.Add(StripableSpec{ID: "b"})
	p.Add(StripableSpec{ID: "c"})
	p.Reorder("c", -1)

	done := make(chan []Stripable, 1)
	go func() { done <- p.Stripables() }()

	var strips []Stripable
	select {
	case strips = <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "Stripables did not return")
	}

	ids := make([]StripableID, len(strips))
	for i, s := range strips {
		ids[i] = s.ID()
	}
	assert.Equal(t, []StripableID{"c", "a", "b"}, ids)

	strips[0] = nil
	again := p.Stripables()
	require.Len(t, again, 3)
	assert.Equal(t, StripableID("c"), again[0].ID(), "each call returns a fresh slice")

	sel, ok := p.FirstSelected()
	assert.False(t, ok)
	assert.Nil(t, sel)
}

func TestMemoryProviderControls(t *testing.T) {
	p := NewMemoryProvider(zap.NewNop().Sugar())
	p.Add(StripableSpec{ID: "t1", Kind: KindAudioTrack, Group: "drums"})
	p.Add(StripableSpec{ID: "t2", Kind: KindAudioTrack, Group: "drums"})
	p.Add(StripableSpec{ID: "m", Kind: KindMaster})

	t1, _ := p.Stripable("t1")
	gain := t1.Control(ControlGain)
	require.NotNil(t, gain)
	assert.Equal(t, 1.0, gain.Value())

	fired := 0
	gain.Subscribe(func() { fired++ })

	gain.SetValue(10, false)
	assert.Equal(t, maxGainCoefficient, gain.Value(), "values are clamped to the range")
	gain.SetValue(10, false)
	assert.Equal(t, 1, fired, "unchanged values do not notify")

	t1.Control(ControlMute).SetValue(1, true)
	t2, _ := p.Stripable("t2")
	assert.Equal(t, 1.0, t2.Control(ControlMute).Value())

	master, _ := p.Stripable("m")
	assert.Nil(t, master.Control(ControlRecEnable))
	assert.Nil(t, master.Control(ControlSolo))
}

func TestMemoryProviderSelection(t *testing.T) {
	p := NewMemoryProvider(zap.NewNop().Sugar())
	p.Add(StripableSpec{ID: "t1"})
	p.Add(StripableSpec{ID: "t2"})

	changes := 0
	p.SubscribeSelection(func() { changes++ })

	_, ok := p.FirstSelected()
	assert.False(t, ok)

	p.SelectStripable("t2")
	p.SelectStripable("t2")
	assert.Equal(t, 1, changes)

	sel, ok := p.FirstSelected()
	require.True(t, ok)
	assert.Equal(t, StripableID("t2"), sel.ID())

	p.SelectStripable("")
	_, ok = p.FirstSelected()
	assert.False(t, ok)
}

func TestMemoryProviderSendsAndPlugins(t *testing.T) {
	p := NewMemoryProvider(zap.NewNop().Sugar())
	p.Add(StripableSpec{ID: "f1", Name: "Wedge", Kind: KindFoldbackBus})
	p.Add(StripableSpec{ID: "t1", Kind: KindAudioTrack, SendsTo: []StripableID{"f1"},
		Plugins: []PluginSpec{{Name: "Comp", Params: []string{"threshold", "ratio"}}}})

	t1, _ := p.Stripable("t1")
	require.Len(t, t1.Sends(), 1)
	assert.Equal(t, "Wedge", t1.Sends()[0].Name)
	assert.True(t, feedsBus(t1, "f1"))

	send, ok := sendTo(t1, "f1")
	require.True(t, ok)
	assert.Equal(t, 1.0, send.Enable.Value())

	require.Len(t, t1.Plugins(), 1)
	assert.Len(t, t1.Plugins()[0].Params, 2)

	p.SetMeter("t1", -12)
	assert.Equal(t, -12.0, t1.PeakMeter())
}
