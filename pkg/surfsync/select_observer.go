package surfsync

// selectButtons adds the monitor section toggles to the strip buttons
var selectButtons = append(append([]ControlName(nil), buttonControls...), ControlDim, ControlMono)

// selectObserver feeds the surface's single "selected strip" role,
// including the paged send and plugin parameter lists
type selectObserver struct {
	e *Engine
	s *Surface

	id   StripableID
	live bool
	gen  uint64
	subs subscriptionSet

	// shown counts how many paged entries were last sent, so shrinking
	// lists are cleared
	sendsShown  int
	paramsShown int
}

func newSelectObserver(e *Engine, s *Surface) *selectObserver {
	return &selectObserver{e: e, s: s}
}

func (o *selectObserver) emitter() emitter {
	return emitter{
		out:      o.s.out,
		prefix:   "/select",
		inline:   o.s.inline(),
		gainMode: o.s.cfg.GainMode,
	}
}

func (o *selectObserver) bind(id StripableID) {
	if o.live && o.id == id {
		return
	}

	o.subscribe(id)
}

// rebind resubscribes to the current target, e.g. after paging changed which
// controls are shown
func (o *selectObserver) rebind() {
	if !o.s.cfg.Feedback.SelectFeedback {
		return
	}

	o.subscribe(o.s.selected)
}

func (o *selectObserver) subscribe(id StripableID) {
	o.subs.closeAll()
	o.gen++

	strip, ok := o.e.provider.Stripable(id)
	if id == "" || !ok {
		wasLive := o.live
		o.live = false
		o.id = ""
		if wasLive {
			o.clear()
		}
		return
	}

	o.id = id
	o.live = true
	gen := o.gen

	watch := func(c Control) {
		if c == nil {
			return
		}
		o.subs.add(c.Subscribe(func() {
			o.e.Post(func() {
				if o.live && o.gen == gen {
					o.emitAll()
				}
			})
		}))
	}

	o.subs.add(strip.SubscribeName(func() {
		o.e.Post(func() {
			if o.live && o.gen == gen {
				o.emitAll()
			}
		})
	}))

	for _, name := range selectButtons {
		watch(strip.Control(name))
	}
	for _, name := range []ControlName{ControlGain, ControlTrim, ControlPanPosition, ControlPanWidth} {
		watch(strip.Control(name))
	}
	for _, send := range o.pagedSends(strip) {
		watch(send.Gain)
		watch(send.Enable)
	}
	if plugin, ok := o.currentPlugin(strip); ok {
		watch(plugin.Active)
		for _, param := range o.pagedParams(plugin) {
			watch(param.Control)
		}
	}

	o.e.bankLogger.Debugw("Bound select observer", "surface", o.s.Address, "strip", id)

	o.emitAll()
}

func (o *selectObserver) unbind(clear bool) {
	o.subs.closeAll()
	o.gen++

	wasLive := o.live
	o.live = false
	o.id = ""

	if clear && wasLive {
		o.clear()
	}
}

func pageBounds(page, size, total int) (int, int) {
	if size <= 0 {
		return 0, total
	}

	start := (max(page, 1) - 1) * size
	return min(start, total), size
}

func pageCount(size, total int) int {
	if size <= 0 || total == 0 {
		return 1
	}

	return (total + size - 1) / size
}

func (o *selectObserver) pagedSends(strip Stripable) []Send {
	sends := strip.Sends()
	start, size := pageBounds(o.s.sendPage, o.s.cfg.SendPageSize, len(sends))

	return sends[start:min(start+size, len(sends))]
}

func (o *selectObserver) currentPlugin(strip Stripable) (Plugin, bool) {
	plugins := strip.Plugins()
	if len(plugins) == 0 {
		return Plugin{}, false
	}

	return plugins[min(max(o.s.pluginIndex, 0), len(plugins)-1)], true
}

func (o *selectObserver) pagedParams(plugin Plugin) []PluginParam {
	start, size := pageBounds(o.s.pluginPage, o.s.cfg.PluginPageSize, len(plugin.Params))

	return plugin.Params[start:min(start+size, len(plugin.Params))]
}

func (o *selectObserver) emitAll() {
	strip, ok := o.e.provider.Stripable(o.id)
	if !o.live || !ok {
		return
	}

	em := o.emitter()
	em.send("name", strip.Name())
	em.buttons(strip, selectButtons)
	em.values(strip)
	em.send("expand", boolArg(o.s.expanded && o.s.expand == o.id))

	o.emitSends(strip)
	o.emitPlugin(strip)
}

func (o *selectObserver) emitSends(strip Stripable) {
	out, inline := o.s.out, o.s.inline()
	sends := o.pagedSends(strip)

	for i, send := range sends {
		id := i + 1
		out.withID("/select/send_name", id, inline, send.Name)
		if send.Gain != nil {
			if o.s.cfg.GainMode != GainFader {
				out.withID("/select/send_gain", id, inline, float32(coefficientToDB(send.Gain.Value())))
			}
			if o.s.cfg.GainMode != GainDB {
				out.withID("/select/send_fader", id, inline, float32(gainToSliderPosition(send.Gain.Value())))
			}
		}
		if send.Enable != nil {
			out.withID("/select/send_enable", id, inline, boolArg(send.Enable.Value() >= 0.5))
		}
	}

	for id := len(sends) + 1; id <= o.sendsShown; id++ {
		o.clearSend(id)
	}
	o.sendsShown = len(sends)
}

func (o *selectObserver) clearSend(id int) {
	out, inline := o.s.out, o.s.inline()

	out.withID("/select/send_name", id, inline, "")
	if o.s.cfg.GainMode != GainFader {
		out.withID("/select/send_gain", id, inline, float32(floorDB))
	}
	if o.s.cfg.GainMode != GainDB {
		out.withID("/select/send_fader", id, inline, float32(0))
	}
	out.withID("/select/send_enable", id, inline, int32(0))
}

func (o *selectObserver) emitPlugin(strip Stripable) {
	out, inline := o.s.out, o.s.inline()

	plugin, ok := o.currentPlugin(strip)
	if !ok {
		out.value("/select/plugin/name", "")
		out.value("/select/plugin/activate", int32(0))
		o.clearParams(0)
		return
	}

	out.value("/select/plugin/name", plugin.Name)
	if plugin.Active != nil {
		out.value("/select/plugin/activate", boolArg(plugin.Active.Value() >= 0.5))
	}

	params := o.pagedParams(plugin)
	for i, param := range params {
		id := i + 1
		out.withID("/select/plugin/parameter/name", id, inline, param.Name)
		out.withID("/select/plugin/parameter", id, inline, float32(normalized(param.Control)))
	}
	o.clearParams(len(params))
}

func (o *selectObserver) clearParams(from int) {
	out, inline := o.s.out, o.s.inline()

	for id := from + 1; id <= o.paramsShown; id++ {
		out.withID("/select/plugin/parameter/name", id, inline, "")
		out.withID("/select/plugin/parameter", id, inline, float32(0))
	}
	o.paramsShown = from
}

func (o *selectObserver) clear() {
	em := o.emitter()

	em.send("name", "")
	em.clearButtons(selectButtons)
	em.clearValues()
	em.send("expand", int32(0))

	for id := 1; id <= o.sendsShown; id++ {
		o.clearSend(id)
	}
	o.sendsShown = 0

	o.s.out.value("/select/plugin/name", "")
	o.clearParams(0)
}

// normalized maps a control value onto 0..1 of its range
func normalized(c Control) float64 {
	if c == nil {
		return 0
	}

	span := c.Upper() - c.Lower()
	if span <= 0 {
		return 0
	}

	return (c.Value() - c.Lower()) / span
}

// denormalized maps 0..1 onto a control's range
func denormalized(c Control, v float64) float64 {
	v = min(max(v, 0), 1)

	return c.Lower() + v*(c.Upper()-c.Lower())
}
