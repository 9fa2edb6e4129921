package surfsync

import (
	"fmt"
)

// buttonControls are reported as 0/1 under the strip-buttons category
var buttonControls = []ControlName{
	ControlMute,
	ControlSolo,
	ControlSoloIsolate,
	ControlSoloSafe,
	ControlRecEnable,
	ControlRecSafe,
	ControlMonitorInput,
	ControlMonitorDisk,
	ControlPolarity,
}

// emitter writes one stripable's standard feedback under a path prefix,
// optionally addressed by slot
type emitter struct {
	out      *feedbackSender
	prefix   string
	ssid     int
	inline   bool
	gainMode GainMode
}

func (em emitter) send(ctl string, value any) {
	path := em.prefix + "/" + ctl
	if em.ssid > 0 {
		em.out.withID(path, em.ssid, em.inline, value)
		return
	}

	em.out.value(path, value)
}

func (em emitter) buttons(strip Stripable, names []ControlName) {
	for _, name := range names {
		if c := strip.Control(name); c != nil {
			em.send(string(name), boolArg(c.Value() >= 0.5))
		}
	}
}

func (em emitter) gain(c Control) {
	if c == nil {
		return
	}

	if em.gainMode != GainFader {
		em.send("gain", float32(coefficientToDB(c.Value())))
	}
	if em.gainMode != GainDB {
		em.send("fader", float32(gainToSliderPosition(c.Value())))
	}
}

func (em emitter) values(strip Stripable) {
	em.gain(strip.Control(ControlGain))

	if c := strip.Control(ControlTrim); c != nil {
		em.send("trimdB", float32(coefficientToDB(c.Value())))
	}
	if c := strip.Control(ControlPanPosition); c != nil {
		em.send(string(ControlPanPosition), float32(c.Value()))
	}
	if c := strip.Control(ControlPanWidth); c != nil {
		em.send(string(ControlPanWidth), float32(c.Value()))
	}
}

func (em emitter) clearButtons(names []ControlName) {
	for _, name := range names {
		em.send(string(name), int32(0))
	}
}

func (em emitter) clearGain() {
	if em.gainMode != GainFader {
		em.send("gain", float32(floorDB))
	}
	if em.gainMode != GainDB {
		em.send("fader", float32(0))
	}
}

func (em emitter) clearValues() {
	em.clearGain()
	em.send("trimdB", float32(0))
	em.send(string(ControlPanPosition), float32(0.5))
}

// stripObserver feeds one bank slot of one surface
type stripObserver struct {
	e    *Engine
	s    *Surface
	slot int

	id          StripableID
	live        bool
	initialized bool
	gen         uint64
	subs        subscriptionSet

	gainTimer int
}

func newStripObserver(e *Engine, s *Surface, slot int) *stripObserver {
	return &stripObserver{e: e, s: s, slot: slot}
}

func (o *stripObserver) emitter() emitter {
	return emitter{
		out:      o.s.out,
		prefix:   "/strip",
		ssid:     o.slot,
		inline:   o.s.inline(),
		gainMode: o.s.cfg.GainMode,
	}
}

func (o *stripObserver) strip() (Stripable, bool) {
	if !o.live {
		return nil, false
	}

	return o.e.provider.Stripable(o.id)
}

// bind points the slot at id. Rebinding to the current stripable is a no-op;
// an empty or vanished id leaves the slot cleared.
func (o *stripObserver) bind(id StripableID) {
	strip, ok := o.e.provider.Stripable(id)
	if id == "" || !ok {
		if o.live || !o.initialized {
			o.unbind(true)
			o.e.bankLogger.Debugw("Cleared strip observer", "surface", o.s.Address, "slot", o.slot)
		}
		return
	}

	if o.live && o.id == id {
		return
	}

	o.dropSubscriptions()
	o.id = id
	o.live = true
	o.initialized = true
	o.gainTimer = 0
	gen := o.gen

	o.watchName(strip, gen)
	for _, name := range buttonControls {
		o.watch(strip.Control(name), gen, o.emitButtons)
	}
	o.watch(strip.Control(ControlGain), gen, o.gainChanged)
	o.watch(strip.Control(ControlTrim), gen, o.emitValues)
	o.watch(strip.Control(ControlPanPosition), gen, o.emitValues)
	o.watch(strip.Control(ControlPanWidth), gen, o.emitValues)

	o.e.bankLogger.Debugw("Bound strip observer", "surface", o.s.Address, "slot", o.slot, "strip", id)

	o.emitAll()
}

// unbind drops every subscription before returning and, when clear is set,
// resets the remote slot to its cleared values
func (o *stripObserver) unbind(clear bool) {
	o.dropSubscriptions()
	o.live = false
	o.id = ""
	o.gainTimer = 0
	o.initialized = true

	if clear {
		o.clear()
	}
}

func (o *stripObserver) dropSubscriptions() {
	o.subs.closeAll()
	o.gen++
}

// watch forwards control changes onto the engine loop, dropping any that
// arrive after the binding generation moved on
func (o *stripObserver) watch(c Control, gen uint64, fn func()) {
	if c == nil {
		return
	}

	o.subs.add(c.Subscribe(func() {
		o.e.Post(func() {
			if o.live && o.gen == gen {
				fn()
			}
		})
	}))
}

func (o *stripObserver) watchName(strip Stripable, gen uint64) {
	o.subs.add(strip.SubscribeName(func() {
		o.e.Post(func() {
			if o.live && o.gen == gen {
				o.emitName()
			}
		})
	}))
}

func (o *stripObserver) emitAll() {
	o.emitName()
	o.emitButtons()
	o.emitSelect()
	o.emitValues()
	o.emitMeters()
}

func (o *stripObserver) emitName() {
	fb := o.s.cfg.Feedback
	if !fb.stripFeedback() || o.gainTimer > 0 {
		return
	}

	strip, ok := o.strip()
	if !ok {
		return
	}

	o.emitter().send("name", strip.Name())
}

func (o *stripObserver) emitButtons() {
	if !o.s.cfg.Feedback.StripButtons {
		return
	}

	if strip, ok := o.strip(); ok {
		o.emitter().buttons(strip, buttonControls)
	}
}

func (o *stripObserver) emitSelect() {
	if !o.live || !o.s.cfg.Feedback.StripButtons {
		return
	}

	o.emitter().send("select", boolArg(o.id == o.s.selected))
}

func (o *stripObserver) emitValues() {
	if !o.s.cfg.Feedback.StripValues {
		return
	}

	if strip, ok := o.strip(); ok {
		o.emitter().values(strip)
	}
}

// gainChanged also flashes the dB value in the name field on fader-mode
// surfaces
func (o *stripObserver) gainChanged() {
	o.emitValues()

	if !o.s.cfg.Feedback.StripValues || o.s.cfg.GainMode == GainDB {
		return
	}

	strip, ok := o.strip()
	if !ok {
		return
	}
	c := strip.Control(ControlGain)
	if c == nil {
		return
	}

	o.gainTimer = gainTimeoutTicks
	o.emitter().send("name", fmt.Sprintf("%.2f", coefficientToDB(c.Value())))
}

func (o *stripObserver) emitMeters() {
	fb := o.s.cfg.Feedback
	if !fb.meters() {
		return
	}

	strip, ok := o.strip()
	if !ok {
		return
	}

	level := strip.PeakMeter()
	em := o.emitter()

	switch {
	case fb.MeterLevel && o.s.cfg.GainMode == GainDB:
		em.send("meter", float32(meterDB(level)))
	case fb.MeterLevel:
		em.send("meter", float32(meterPosition(level)))
	case fb.MeterLEDs:
		em.send("meter", meterLEDs(level))
	}

	if fb.SignalPresent {
		em.send("signal", boolArg(signalPresent(level)))
	}
}

// tick refreshes meters and expires the gain readout
func (o *stripObserver) tick() {
	if !o.live {
		return
	}

	o.emitMeters()

	if o.gainTimer > 0 {
		o.gainTimer--
		if o.gainTimer == 0 {
			o.emitName()
		}
	}
}

// clear sends the values a slot shows when nothing is bound to it
func (o *stripObserver) clear() {
	fb := o.s.cfg.Feedback
	em := o.emitter()

	if fb.stripFeedback() {
		em.send("name", "")
	}
	if fb.StripButtons {
		em.clearButtons(buttonControls)
		em.send("select", int32(0))
	}
	if fb.StripValues {
		em.clearValues()
	}

	switch {
	case fb.MeterLevel && o.s.cfg.GainMode == GainDB:
		em.send("meter", float32(floorDB))
	case fb.MeterLevel:
		em.send("meter", float32(0))
	case fb.MeterLEDs:
		em.send("meter", int32(0))
	}
	if fb.SignalPresent {
		em.send("signal", int32(0))
	}
}
