package surfsync

import (
	"strconv"
	"strings"

	"github.com/thoas/go-funk"
)

// Outcome reports what the dispatcher did with a message. It is only used
// for logging; nothing is ever sent back as an error.
type Outcome int

const (
	Handled Outcome = iota
	Queried
	Unhandled
)

func (o Outcome) String() string {
	switch o {
	case Handled:
		return "handled"
	case Queried:
		return "queried"
	}

	return "unhandled"
}

const currentValueSuffix = "#current_value"

// Handle routes one inbound message from the surface keyed by source
func (e *Engine) Handle(source string, msg Message) Outcome {
	e.handling = &Inbound{Source: source, Msg: msg}
	outcome := e.route(source, msg)
	e.handling = nil

	switch {
	case e.debugMode == DebugAll:
		e.dispatchLogger.Infow("Message", "from", source, "message", msg.packet().String(), "outcome", outcome)
	case outcome == Unhandled && e.debugMode == DebugUnhandled:
		e.dispatchLogger.Infow("Unhandled message", "from", source, "message", msg.packet().String())
	case outcome == Unhandled:
		e.dispatchLogger.Debugw("Unhandled message", "from", source, "message", msg.packet().String())
	}

	return outcome
}

func (e *Engine) route(source string, msg Message) Outcome {
	path := msg.Address
	if path == "" || path[0] != '/' {
		return Unhandled
	}

	// diagnostics never create a surface
	if path == "/surface/list" {
		e.logSurfaceList()
		return Handled
	}
	if path == "/surface/reset" {
		e.ResetSurface(source)
		return Handled
	}

	s := e.surface(source)
	args := msg.Args

	if strings.HasSuffix(path, currentValueSuffix) {
		return e.currentValue(s, strings.TrimSuffix(path, currentValueSuffix), args)
	}

	switch {
	case path == "/refresh":
		e.refresh(s)
		return Handled

	case path == "/bank_up":
		return e.bankStep(s, args, 1)

	case path == "/bank_down":
		return e.bankStep(s, args, -1)

	case path == "/use_group":
		y, ok := argBool(args, 0)
		if !ok {
			return Unhandled
		}
		s.useGroup = y
		return Handled

	case path == "/strip/list":
		e.replyStripList(s)
		return Queried

	case path == "/set_surface" || strings.HasPrefix(path, "/set_surface/"):
		return e.routeSetSurface(s, path, args)

	case strings.HasPrefix(path, "/link/"):
		return e.routeLink(s, path, args)

	case strings.HasPrefix(path, "/strip/"):
		return e.routeStrip(s, strings.TrimPrefix(path, "/strip/"), args)

	case strings.HasPrefix(path, "/select/"):
		return e.routeSelect(s, strings.TrimPrefix(path, "/select/"), args)

	case strings.HasPrefix(path, "/master/"):
		return e.routeSection(s, KindMaster, "/master", strings.TrimPrefix(path, "/master/"), args)

	case strings.HasPrefix(path, "/monitor/"):
		return e.routeSection(s, KindMonitor, "/monitor", strings.TrimPrefix(path, "/monitor/"), args)

	case strings.HasPrefix(path, "/cue/"):
		return e.routeCue(s, strings.TrimPrefix(path, "/cue/"), args)
	}

	return Unhandled
}

// bankStep pages one bank. Buttons sending 0 on release are ignored.
func (e *Engine) bankStep(s *Surface, args []any, delta int) Outcome {
	if y, ok := argBool(args, 0); ok && !y {
		return Handled
	}

	e.bankDelta(s, delta)
	return Handled
}

// routeSetSurface handles /set_surface in its positional, in-lined and
// per-field forms
func (e *Engine) routeSetSurface(s *Surface, path string, args []any) Outcome {
	cfg := s.cfg
	if s.cue {
		cfg = e.registry.Defaults()
	}

	fields := []string{"bank_size", "strip_types", "feedback", "gainmode", "send_page_size", "plugin_page_size"}

	rest := strings.Trim(strings.TrimPrefix(path, "/set_surface"), "/")
	if rest != "" && !isNumber(strings.Split(rest, "/")[0]) {
		idx := funk.IndexOfString(fields, rest)
		value, ok := argInt(args, 0)
		if idx < 0 || !ok {
			return Unhandled
		}

		values := surfaceValues(cfg)
		values[idx] = value
		e.reconfigure(s, configFromValues(values))
		return Handled
	}

	var given []int
	if rest != "" {
		for _, seg := range strings.Split(rest, "/") {
			v, err := strconv.Atoi(seg)
			if err != nil {
				return Unhandled
			}
			given = append(given, v)
		}
	}
	for i := range args {
		if v, ok := argInt(args, i); ok {
			given = append(given, v)
		}
	}

	if len(given) == 0 {
		values := surfaceValues(s.cfg)
		reply := make([]any, len(values))
		for i, v := range values {
			reply[i] = int32(v)
		}
		s.out.reply(NewMessage("/set_surface", reply...))
		return Queried
	}

	values := surfaceValues(cfg)
	copy(values, given)
	e.reconfigure(s, configFromValues(values))

	return Handled
}

func surfaceValues(cfg SurfaceConfig) []int {
	return []int{cfg.BankSize, cfg.StripTypes.Bits(), cfg.Feedback.Bits(), int(cfg.GainMode), cfg.SendPageSize, cfg.PluginPageSize}
}

func configFromValues(v []int) SurfaceConfig {
	return SurfaceConfigFromBits(v[0], v[1], v[2], v[3], v[4], v[5])
}

// routeLink handles /link/set and /link/bank_size. The set id comes from a
// numeric path segment or, with two arguments, the first argument; the value
// is always the last argument.
func (e *Engine) routeLink(s *Surface, path string, args []any) Outcome {
	if len(args) == 0 {
		return Unhandled
	}

	value, ok := argInt(args, len(args)-1)
	if !ok {
		return Unhandled
	}

	var op string
	setID := -1
	for _, seg := range strings.Split(strings.TrimPrefix(path, "/link/"), "/") {
		if n, err := strconv.Atoi(seg); err == nil {
			setID = n
		} else if op == "" {
			op = seg
		}
	}

	if setID < 0 {
		if len(args) != 2 {
			e.linkLogger.Debugw("Link message without a set id", "surface", s.Address, "path", path)
			return Unhandled
		}
		setID, _ = argInt(args, 0)
	}

	switch op {
	case "set":
		e.joinLink(s, setID, value)
		return Handled

	case "bank_size":
		if setID <= 0 {
			return Unhandled
		}
		e.setLinkBankSize(e.linkSet(setID, s), value)
		return Handled
	}

	return Unhandled
}

// routeCue handles the cue/foldback family
func (e *Engine) routeCue(s *Surface, ctl string, args []any) Outcome {
	switch ctl {
	case "aux":
		n, ok := argInt(args, 0)
		if !ok {
			return Unhandled
		}
		e.cueSet(s, n)
		return Handled

	case "connect":
		e.cueSet(s, 1)
		return Handled

	case "next_aux", "previous_aux":
		if y, ok := argBool(args, 0); ok && !y {
			return Handled
		}
		if !s.cue {
			e.cueSet(s, 1)
			return Handled
		}
		if ctl == "next_aux" {
			e.cueSet(s, s.aux+1)
		} else {
			e.cueSet(s, s.aux-1)
		}
		return Handled
	}

	if !s.cue {
		return Unhandled
	}

	bus, ok := e.cueBus(s)
	if !ok {
		return Unhandled
	}

	switch {
	case ctl == "fader":
		return setOrQuery(bus.Control(ControlGain), args, sliderPositionToGain, false, func() {
			e.replyValue(s, "/cue/fader", 0, float32(gainToSliderPosition(bus.Control(ControlGain).Value())))
		})

	case ctl == "mute":
		return e.toggle(s, bus.Control(ControlMute), args, false, "/cue/mute", 0)

	case strings.HasPrefix(ctl, "send/fader/"), strings.HasPrefix(ctl, "send/enable/"):
		n, err := strconv.Atoi(ctl[strings.LastIndex(ctl, "/")+1:])
		if err != nil {
			return Unhandled
		}
		send, ok := e.cueSend(s, n)
		if !ok {
			return Unhandled
		}

		if strings.HasPrefix(ctl, "send/fader/") {
			return setOrQuery(send.Gain, args, sliderPositionToGain, false, func() {
				e.replyValue(s, "/cue/send/fader/"+strconv.Itoa(n), 0, float32(gainToSliderPosition(send.Gain.Value())))
			})
		}
		return e.toggle(s, send.Enable, args, false, "/cue/send/enable/"+strconv.Itoa(n), 0)
	}

	return Unhandled
}

// setOrQuery applies args[0] through conv, or runs query when no value was given
func setOrQuery(c Control, args []any, conv func(float64) float64, useGroup bool, query func()) Outcome {
	if c == nil {
		return Unhandled
	}

	v, ok := argFloat(args, 0)
	if !ok {
		query()
		return Queried
	}

	c.SetValue(conv(v), useGroup)
	return Handled
}

// toggle sets a boolean control, or answers with its state on echo
func (e *Engine) toggle(s *Surface, c Control, args []any, useGroup bool, echo string, ssid int) Outcome {
	if c == nil {
		return Unhandled
	}

	y, ok := argBool(args, 0)
	if !ok {
		e.replyValue(s, echo, ssid, boolArg(c.Value() >= 0.5))
		return Queried
	}

	if y {
		c.SetValue(1, useGroup)
	} else {
		c.SetValue(0, useGroup)
	}
	return Handled
}

// replyValue answers a query on the canonical feedback path
func (e *Engine) replyValue(s *Surface, path string, ssid int, value any) {
	s.out.replyWithID(path, ssid, s.inline(), value)
}

// replyStripList answers /strip/list with one message per visible strip
func (e *Engine) replyStripList(s *Surface) {
	view := e.stripsView(s)
	reply := s.replyPath()

	for i, id := range view {
		strip, ok := e.provider.Stripable(id)
		if !ok {
			continue
		}

		args := []any{strip.Kind().String(), strip.Name(), int32(0), int32(0)}
		args = append(args, controlFlag(strip, ControlMute), controlFlag(strip, ControlSolo), int32(i+1))
		if c := strip.Control(ControlRecEnable); c != nil {
			args = append(args, boolArg(c.Value() >= 0.5))
		}

		s.out.reply(NewMessage(reply, args...))
	}

	s.out.reply(NewMessage(reply, "end_route_list", int32(len(view))))
}

func controlFlag(strip Stripable, name ControlName) int32 {
	if c := strip.Control(name); c != nil {
		return boolArg(c.Value() >= 0.5)
	}
	return 0
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
