package surfsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstContactCreatesSurface(t *testing.T) {
	te := newTestEngine(t, DefaultSurfaceConfig())
	te.addTracks(6)
	te.settle()

	assert.Equal(t, Handled, te.send(surfaceA, "/strip/5/mute", int32(1)))

	_, ok := te.Registry().Lookup(surfaceA)
	assert.True(t, ok)
	assert.Equal(t, 1.0, te.control("t5", ControlMute).Value())
	assert.Equal(t, 1, te.countLogs("New surface connected"))
}

func TestStripQueries(t *testing.T) {
	te := newTestEngine(t, DefaultSurfaceConfig())
	te.addTracks(4)
	te.settle()

	assert.Equal(t, Queried, te.send(surfaceA, "/strip/gain", int32(1)))
	reply, ok := te.transport.last(surfaceA, "/strip/gain", 1)
	require.True(t, ok)
	assert.Equal(t, []any{int32(1), float32(0)}, reply.Args)

	// an empty slot answers with its cleared value
	assert.Equal(t, Queried, te.send(surfaceA, "/strip/9/gain"))
	reply, ok = te.transport.last(surfaceA, "/strip/gain", 9)
	require.True(t, ok)
	assert.Equal(t, []any{int32(9), float32(floorDB)}, reply.Args)

	assert.Equal(t, Handled, te.send(surfaceA, "/strip/9/mute", int32(1)))
	reply, _ = te.transport.last(surfaceA, "/strip/mute", 9)
	assert.Equal(t, []any{int32(9), int32(0)}, reply.Args)

	te.transport.reset()
	assert.Equal(t, Queried, te.send(surfaceA, "/strip/2/name#current_value"))
	reply, ok = te.transport.last(surfaceA, "#reply")
	require.True(t, ok)
	assert.Equal(t, []any{"/strip/2/name", int32(2), "Track 2"}, reply.Args)
}

func TestStripSetForms(t *testing.T) {
	te := newTestEngine(t, DefaultSurfaceConfig())
	te.addTracks(3)
	te.settle()

	te.send(surfaceA, "/strip/mute", int32(1), int32(1))
	te.send(surfaceA, "/strip/2/solo", float32(1))
	te.send(surfaceA, "/strip/@t3/recenable", int32(1))
	te.send(surfaceA, "/strip/1/trimdB", float32(-20))
	te.send(surfaceA, "/strip/1/pan_stereo_position", float32(0.25))
	te.send(surfaceA, "/strip/2/name", "Snare")
	te.send(surfaceA, "/strip/3/db_delta", float32(-6))

	assert.Equal(t, 1.0, te.control("t1", ControlMute).Value())
	assert.Equal(t, 1.0, te.control("t2", ControlSolo).Value())
	assert.Equal(t, 1.0, te.control("t3", ControlRecEnable).Value())
	assert.InDelta(t, 0.1, te.control("t1", ControlTrim).Value(), 1e-6)
	assert.InDelta(t, 0.25, te.control("t1", ControlPanPosition).Value(), 1e-6)
	assert.InDelta(t, 0.5012, te.control("t3", ControlGain).Value(), 1e-4)

	strip, _ := te.provider.Stripable("t2")
	assert.Equal(t, "Snare", strip.Name())

	te.send(surfaceA, "/strip/1/gain/automation", int32(7))
	assert.Equal(t, AutoTouch, te.control("t1", ControlGain).AutomationState())
}

func TestUseGroup(t *testing.T) {
	te := newTestEngine(t, DefaultSurfaceConfig())
	te.provider.Add(StripableSpec{ID: "t1", Kind: KindAudioTrack, Group: "drums"})
	te.provider.Add(StripableSpec{ID: "t2", Kind: KindAudioTrack, Group: "drums"})
	te.provider.Add(StripableSpec{ID: "t3", Kind: KindAudioTrack})
	te.settle()

	te.send(surfaceA, "/strip/1/mute", int32(1))
	assert.Equal(t, 0.0, te.control("t2", ControlMute).Value())

	te.send(surfaceA, "/use_group", int32(1))
	te.send(surfaceA, "/strip/1/solo", int32(1))
	assert.Equal(t, 1.0, te.control("t2", ControlSolo).Value())
	assert.Equal(t, 0.0, te.control("t3", ControlSolo).Value())
}

func TestUnhandledMessages(t *testing.T) {
	te := newTestEngine(t, DefaultSurfaceConfig())

	assert.Equal(t, Unhandled, te.send(surfaceA, "/transport_play"))
	assert.Equal(t, Unhandled, te.send(surfaceA, "/master/solo", int32(1)))
	assert.Equal(t, Unhandled, te.send(surfaceA, "/cue/fader", float32(0.5)), "not in cue mode")
	assert.Equal(t, Unhandled, te.send(surfaceA, "bogus"))
	assert.Equal(t, 4, te.countLogs("Unhandled message"))
	solo := te.logs.FilterMessage("Unhandled message").All()[1]
	assert.Equal(t, "/master/solo ,i 1", solo.ContextMap()["message"])

	te.SetDebugMode(DebugAll)
	te.send(surfaceA, "/refresh")
	assert.Equal(t, 1, te.countLogs("Message"))
}

func TestStripList(t *testing.T) {
	te := newTestEngine(t, DefaultSurfaceConfig())
	te.addTracks(2)
	te.provider.Add(StripableSpec{ID: "b1", Name: "Reverb", Kind: KindAudioBus})
	te.settle()

	te.control("t2", ControlMute).SetValue(1, false)

	assert.Equal(t, Queried, te.send(surfaceA, "/strip/list"))

	replies := te.transport.find(surfaceA, "#reply")
	require.Len(t, replies, 4)

	assert.Equal(t, []any{"AT", "Track 2", int32(0), int32(0), int32(1), int32(0), int32(2), int32(0)}, replies[1].Args)
	assert.Equal(t, []any{"B", "Reverb", int32(0), int32(0), int32(0), int32(0), int32(3)}, replies[2].Args)
	assert.Equal(t, []any{"end_route_list", int32(3)}, replies[3].Args)
}

func TestSelectFamily(t *testing.T) {
	te := newTestEngine(t, DefaultSurfaceConfig())
	te.provider.Add(StripableSpec{ID: "t1", Name: "Vox", Kind: KindAudioTrack, SendsTo: []StripableID{"b1"},
		Plugins: []PluginSpec{{Name: "EQ", Params: []string{"low", "mid", "high"}}}})
	te.provider.Add(StripableSpec{ID: "b1", Name: "Reverb", Kind: KindAudioBus})
	te.provider.SelectStripable("t1")
	te.settle()

	te.send(surfaceA, "/select/mute", int32(1))
	assert.Equal(t, 1.0, te.control("t1", ControlMute).Value())

	assert.Equal(t, Queried, te.send(surfaceA, "/select/name"))
	reply, ok := te.transport.last(surfaceA, "/select/name")
	require.True(t, ok)
	assert.Equal(t, []any{"Vox"}, reply.Args)

	strip, _ := te.provider.Stripable("t1")
	te.send(surfaceA, "/select/send_fader", int32(1), float32(0))
	assert.Equal(t, 0.0, strip.Sends()[0].Gain.Value())

	te.send(surfaceA, "/select/send_enable", int32(1), int32(0))
	assert.Equal(t, 0.0, strip.Sends()[0].Enable.Value())

	te.send(surfaceA, "/select/plugin/parameter", int32(2), float32(0.75))
	assert.InDelta(t, 0.75, strip.Plugins()[0].Params[1].Control.Value(), 1e-6)

	te.send(surfaceA, "/select/plugin/activate", int32(0))
	assert.Equal(t, 0.0, strip.Plugins()[0].Active.Value())

	assert.Equal(t, Unhandled, te.send(surfaceA, "/select/plugin/parameter", int32(9), float32(0.5)))
}

func TestSelectWithoutSelection(t *testing.T) {
	te := newTestEngine(t, DefaultSurfaceConfig())
	te.addTracks(1)
	te.settle()

	assert.Equal(t, Unhandled, te.send(surfaceA, "/select/plugin/parameter", int32(1), float32(0.5)))
	assert.Equal(t, Unhandled, te.send(surfaceA, "/select/plugin/activate", int32(1)))
	assert.Equal(t, Queried, te.send(surfaceA, "/select/gain"))

	reply, ok := te.transport.last(surfaceA, "/select/gain")
	require.True(t, ok)
	assert.Equal(t, []any{float32(floorDB)}, reply.Args)
}

func TestStripSelectAndExpand(t *testing.T) {
	te := newTestEngine(t, DefaultSurfaceConfig())
	te.addTracks(3)
	te.settle()

	te.send(surfaceA, "/strip/2/select", int32(1))
	sel, ok := te.provider.FirstSelected()
	require.True(t, ok)
	assert.Equal(t, StripableID("t2"), sel.ID())

	s, _ := te.Registry().Lookup(surfaceA)
	assert.Equal(t, StripableID("t2"), s.Selected())

	te.send(surfaceA, "/strip/3/expand", int32(1))
	assert.Equal(t, StripableID("t3"), s.Selected())
	sel, _ = te.provider.FirstSelected()
	assert.Equal(t, StripableID("t2"), sel.ID(), "local expand leaves the session selection alone")

	te.send(surfaceA, "/strip/3/expand", int32(0))
	assert.Equal(t, StripableID("t2"), s.Selected())
}

func TestMasterAndMonitor(t *testing.T) {
	te := newTestEngine(t, DefaultSurfaceConfig())
	te.provider.Add(StripableSpec{ID: "master", Name: "Master", Kind: KindMaster})
	te.provider.Add(StripableSpec{ID: "monitor", Name: "Monitor", Kind: KindMonitor})
	te.settle()

	te.send(surfaceA, "/master/gain", float32(-6))
	assert.InDelta(t, 0.5012, te.control("master", ControlGain).Value(), 1e-4)

	te.send(surfaceA, "/monitor/dim", int32(1))
	assert.Equal(t, 1.0, te.control("monitor", ControlDim).Value())

	te.transport.reset()
	te.send(surfaceA, "/master/fader#current_value")
	reply, ok := te.transport.last(surfaceA, "#reply")
	require.True(t, ok)
	assert.Equal(t, "/master/fader", reply.Args[0])
	assert.Len(t, reply.Args, 2)
}

func TestMasterMonitorFeedback(t *testing.T) {
	te := newTestEngine(t, DefaultSurfaceConfig())
	te.provider.Add(StripableSpec{ID: "master", Name: "Master", Kind: KindMaster})
	te.settle()

	feedback := FeedbackFlags{MasterMonitor: true}
	te.send(surfaceA, "/set_surface", int32(0), int32(DefaultStripTypes), int32(feedback.Bits()))

	name, ok := te.transport.last(surfaceA, "/master/name")
	require.True(t, ok)
	assert.Equal(t, []any{"Master"}, name.Args)

	te.control("master", ControlMute).SetValue(1, false)
	te.settle()

	mute, ok := te.transport.last(surfaceA, "/master/mute")
	require.True(t, ok)
	assert.Equal(t, []any{int32(1)}, mute.Args)
}

func TestStripSend(t *testing.T) {
	te := newTestEngine(t, DefaultSurfaceConfig())
	te.provider.Add(StripableSpec{ID: "t1", Kind: KindAudioTrack, SendsTo: []StripableID{"b1"}})
	te.provider.Add(StripableSpec{ID: "b1", Kind: KindAudioBus})
	te.settle()

	te.send(surfaceA, "/strip/send/gain", int32(1), int32(1), float32(-6))

	strip, _ := te.provider.Stripable("t1")
	assert.InDelta(t, 0.5012, strip.Sends()[0].Gain.Value(), 1e-4)

	assert.Equal(t, Unhandled, te.send(surfaceA, "/strip/send/gain", int32(1), int32(2), float32(-6)))
}

func TestCueMode(t *testing.T) {
	te := newTestEngine(t, stripFeedbackConfig(0))
	te.provider.Add(StripableSpec{ID: "f1", Name: "Drummer", Kind: KindFoldbackBus})
	te.provider.Add(StripableSpec{ID: "f2", Name: "Singer", Kind: KindFoldbackBus})
	te.provider.Add(StripableSpec{ID: "t1", Name: "Kick", Kind: KindAudioTrack, SendsTo: []StripableID{"f1"}})
	te.provider.Add(StripableSpec{ID: "t2", Name: "Snare", Kind: KindAudioTrack, SendsTo: []StripableID{"f1"}})
	te.settle()

	te.send(surfaceA, "/cue/aux", int32(1))

	s, _ := te.Registry().Lookup(surfaceA)
	require.True(t, s.cue)
	assert.Empty(t, te.bound(surfaceA))

	name, _ := te.transport.last(surfaceA, "/cue/name")
	assert.Equal(t, []any{"Drummer"}, name.Args)
	send, _ := te.transport.last(surfaceA, "/cue/send/name/2")
	assert.Equal(t, []any{"Snare"}, send.Args)

	te.send(surfaceA, "/cue/send/enable/1", int32(0))
	enable, _ := te.transport.last(surfaceA, "/cue/send/enable/1")
	assert.Equal(t, []any{int32(0)}, enable.Args)

	te.send(surfaceA, "/cue/mute", int32(1))
	assert.Equal(t, 1.0, te.control("f1", ControlMute).Value())

	te.send(surfaceA, "/cue/next_aux", int32(1))
	name, _ = te.transport.last(surfaceA, "/cue/name")
	assert.Equal(t, []any{"Singer"}, name.Args)
	send, _ = te.transport.last(surfaceA, "/cue/send/name/1")
	assert.Equal(t, []any{""}, send.Args, "sends of the previous bus are cleared")

	te.send(surfaceA, "/set_surface", int32(4), int32(DefaultStripTypes), int32(3))
	assert.False(t, s.cue)
	assert.Equal(t, []StripableID{"f1", "f2", "t1", "t2"}, te.bound(surfaceA))
}
