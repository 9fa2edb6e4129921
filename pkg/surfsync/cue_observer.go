package surfsync

import (
	"sort"
	"strconv"
)

// cueSurfaceConfig is forced on a surface entering cue mode
var cueSurfaceConfig = SurfaceConfig{
	StripTypes: StripTypes{FoldbackBuses: true},
	GainMode:   GainFader,
}

// cueObserver feeds a surface in cue mode: the chosen foldback bus and the
// sends feeding it
type cueObserver struct {
	e *Engine
	s *Surface

	bus  StripableID
	live bool
	gen  uint64
	subs subscriptionSet

	sendsShown int
}

func newCueObserver(e *Engine, s *Surface) *cueObserver {
	return &cueObserver{e: e, s: s}
}

// cueBuses lists the foldback buses in presentation order
func (e *Engine) cueBuses() []Stripable {
	var buses []Stripable
	for _, st := range e.provider.Stripables() {
		if st.Kind() == KindFoldbackBus {
			buses = append(buses, st)
		}
	}
	sort.SliceStable(buses, func(i, j int) bool {
		return buses[i].Order() < buses[j].Order()
	})

	return buses
}

// cueFeeders lists the strips sending to bus in presentation order
func (e *Engine) cueFeeders(bus StripableID) []Stripable {
	var feeders []Stripable
	for _, st := range e.provider.Stripables() {
		if st.ID() != bus && feedsBus(st, bus) {
			feeders = append(feeders, st)
		}
	}
	sort.SliceStable(feeders, func(i, j int) bool {
		return feeders[i].Order() < feeders[j].Order()
	})

	return feeders
}

// cueSet puts a surface into cue mode on the aux-th foldback bus
func (e *Engine) cueSet(s *Surface, aux int) {
	buses := e.cueBuses()
	if len(buses) == 0 {
		e.dispatchLogger.Debugw("No foldback buses to cue", "surface", s.Address)
		return
	}
	aux = min(max(aux, 1), len(buses))

	if !s.cue {
		e.leaveLink(s)
		e.unbindSurface(s, true)
		s.cfg = cueSurfaceConfig
		s.customMode, s.tempMode = false, TempOff
		s.bank = 1
	}

	s.cue = true
	s.aux = aux

	e.dispatchLogger.Debugw("Cue bus selected", "surface", s.Address, "aux", aux, "bus", buses[aux-1].ID())

	s.cueObs.bind()
}

// cueBus resolves the surface's current foldback bus
func (e *Engine) cueBus(s *Surface) (Stripable, bool) {
	buses := e.cueBuses()
	if !s.cue || s.aux < 1 || s.aux > len(buses) {
		return nil, false
	}

	return buses[s.aux-1], true
}

// bind follows the surface's bus and its current feeders. Rebinding always
// resubscribes since the feeder list may have changed.
func (o *cueObserver) bind() {
	o.subs.closeAll()
	o.gen++

	bus, ok := o.e.cueBus(o.s)
	if !ok {
		o.live = false
		o.bus = ""
		return
	}

	o.bus = bus.ID()
	o.live = true
	gen := o.gen
	post := func() {
		o.e.Post(func() {
			if o.live && o.gen == gen {
				o.emitAll()
			}
		})
	}

	o.subs.add(bus.SubscribeName(post))
	for _, name := range []ControlName{ControlMute, ControlGain} {
		if c := bus.Control(name); c != nil {
			o.subs.add(c.Subscribe(post))
		}
	}
	for _, feeder := range o.e.cueFeeders(o.bus) {
		o.subs.add(feeder.SubscribeName(post))
		if send, ok := sendTo(feeder, o.bus); ok {
			if send.Gain != nil {
				o.subs.add(send.Gain.Subscribe(post))
			}
			if send.Enable != nil {
				o.subs.add(send.Enable.Subscribe(post))
			}
		}
	}

	o.emitAll()
}

func (o *cueObserver) unbind() {
	o.subs.closeAll()
	o.gen++
	o.live = false
	o.bus = ""
}

func (o *cueObserver) emitAll() {
	bus, ok := o.e.provider.Stripable(o.bus)
	if !o.live || !ok {
		return
	}

	out := o.s.out
	out.value("/cue/name", bus.Name())
	if c := bus.Control(ControlMute); c != nil {
		out.value("/cue/mute", boolArg(c.Value() >= 0.5))
	}
	if c := bus.Control(ControlGain); c != nil {
		out.value("/cue/fader", float32(gainToSliderPosition(c.Value())))
	}

	feeders := o.e.cueFeeders(o.bus)
	for i, feeder := range feeders {
		n := strconv.Itoa(i + 1)
		out.value("/cue/send/name/"+n, feeder.Name())

		send, ok := sendTo(feeder, o.bus)
		if !ok {
			continue
		}
		if send.Gain != nil {
			out.value("/cue/send/fader/"+n, float32(gainToSliderPosition(send.Gain.Value())))
		}
		if send.Enable != nil {
			out.value("/cue/send/enable/"+n, boolArg(send.Enable.Value() >= 0.5))
		}
	}

	for i := len(feeders) + 1; i <= o.sendsShown; i++ {
		n := strconv.Itoa(i)
		out.value("/cue/send/name/"+n, "")
		out.value("/cue/send/fader/"+n, float32(0))
		out.value("/cue/send/enable/"+n, int32(0))
	}
	o.sendsShown = len(feeders)
}

// cueSend resolves the n-th (1-based) send feeding the surface's bus
func (e *Engine) cueSend(s *Surface, n int) (Send, bool) {
	if !s.cue || n < 1 {
		return Send{}, false
	}

	bus, ok := e.cueBus(s)
	if !ok {
		return Send{}, false
	}

	feeders := e.cueFeeders(bus.ID())
	if n > len(feeders) {
		return Send{}, false
	}

	return sendTo(feeders[n-1], bus.ID())
}
