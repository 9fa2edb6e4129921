package surfsync

var (
	masterButtons  = []ControlName{ControlMute}
	monitorButtons = []ControlName{ControlMute, ControlDim, ControlMono}
)

// globalObserver feeds the session-wide state of a surface: heartbeat and
// the master and monitor sections
type globalObserver struct {
	e *Engine
	s *Surface

	master  StripableID
	monitor StripableID
	live    bool
	gen     uint64
	subs    subscriptionSet

	heartbeat bool
}

func newGlobalObserver(e *Engine, s *Surface) *globalObserver {
	return &globalObserver{e: e, s: s}
}

// bind follows the current master and monitor. Unchanged targets keep their
// subscriptions.
func (o *globalObserver) bind() {
	if !o.s.cfg.Feedback.MasterMonitor {
		o.unbind()
		return
	}

	var master, monitor StripableID
	if st, ok := findByKind(o.e.provider, KindMaster); ok {
		master = st.ID()
	}
	if st, ok := findByKind(o.e.provider, KindMonitor); ok {
		monitor = st.ID()
	}

	if o.live && master == o.master && monitor == o.monitor {
		return
	}

	o.subs.closeAll()
	o.gen++
	o.master, o.monitor = master, monitor
	o.live = true
	gen := o.gen

	for _, id := range []StripableID{master, monitor} {
		strip, ok := o.e.provider.Stripable(id)
		if id == "" || !ok {
			continue
		}

		o.subs.add(strip.SubscribeName(func() { o.post(gen) }))
		for _, name := range []ControlName{ControlMute, ControlDim, ControlMono, ControlGain, ControlTrim, ControlPanPosition} {
			if c := strip.Control(name); c != nil {
				o.subs.add(c.Subscribe(func() { o.post(gen) }))
			}
		}
	}

	o.e.bankLogger.Debugw("Bound global observer", "surface", o.s.Address, "master", master, "monitor", monitor)

	o.emitAll()
}

func (o *globalObserver) post(gen uint64) {
	o.e.Post(func() {
		if o.live && o.gen == gen {
			o.emitAll()
		}
	})
}

func (o *globalObserver) unbind() {
	o.subs.closeAll()
	o.gen++
	o.live = false
	o.master, o.monitor = "", ""
}

func (o *globalObserver) emitAll() {
	if !o.live {
		return
	}

	gm := o.s.cfg.GainMode

	if strip, ok := o.e.provider.Stripable(o.master); ok {
		em := emitter{out: o.s.out, prefix: "/master", gainMode: gm}
		em.send("name", strip.Name())
		em.buttons(strip, masterButtons)
		em.gain(strip.Control(ControlGain))
		if c := strip.Control(ControlTrim); c != nil {
			em.send("trimdB", float32(coefficientToDB(c.Value())))
		}
		if c := strip.Control(ControlPanPosition); c != nil {
			em.send(string(ControlPanPosition), float32(c.Value()))
		}
	}

	if strip, ok := o.e.provider.Stripable(o.monitor); ok {
		em := emitter{out: o.s.out, prefix: "/monitor", gainMode: gm}
		em.send("name", strip.Name())
		em.buttons(strip, monitorButtons)
		em.gain(strip.Control(ControlGain))
	}
}

// tick toggles the heartbeat once per second
func (o *globalObserver) tick(ticks uint64) {
	if !o.s.cfg.Feedback.Heartbeat || ticks%heartbeatTicks != 0 {
		return
	}

	o.heartbeat = !o.heartbeat
	if o.heartbeat {
		o.s.out.value("/heartbeat", float32(1))
	} else {
		o.s.out.value("/heartbeat", float32(0))
	}
}
