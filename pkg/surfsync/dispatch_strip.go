package surfsync

import (
	"strconv"
	"strings"
)

// toggleControls are the boolean controls addressable on strips, the
// selected strip and the master and monitor sections
var toggleControls = map[string]bool{
	string(ControlMute):         true,
	string(ControlSolo):         true,
	string(ControlSoloIsolate):  true,
	string(ControlSoloSafe):     true,
	string(ControlRecEnable):    true,
	string(ControlRecSafe):      true,
	string(ControlMonitorInput): true,
	string(ControlMonitorDisk):  true,
	string(ControlPolarity):     true,
	string(ControlDim):          true,
	string(ControlMono):         true,
}

var sectionControls = map[Kind][]string{
	KindMaster:  {"gain", "fader", "db_delta", "mute", "trimdB", "pan_stereo_position", "select", "name"},
	KindMonitor: {"gain", "fader", "db_delta", "mute", "dim", "mono", "name"},
}

// routeStrip resolves the target of a /strip/ message: an absolute id in the
// path, a slot in the path, a slot as the first argument, or the selected
// strip when no slot is given at all
func (e *Engine) routeStrip(s *Surface, rest string, args []any) Outcome {
	segs := strings.Split(rest, "/")

	switch segs[0] {
	case "custom":
		return e.routeCustom(s, segs[1:], args)
	case "send":
		return e.routeStripSend(s, segs[1:], args)
	}

	if strings.HasPrefix(segs[0], "@") {
		id := StripableID(strings.TrimPrefix(segs[0], "@"))
		strip, _ := e.provider.Stripable(id)
		return e.applyControl(s, strip, "/strip/"+segs[0], 0, strings.Join(segs[1:], "/"), args)
	}

	if ssid, err := strconv.Atoi(segs[0]); err == nil {
		strip, _ := e.slotStrip(s, ssid)
		return e.applyControl(s, strip, "/strip", ssid, strings.Join(segs[1:], "/"), args)
	}

	ssid, ok := argInt(args, 0)
	if !ok {
		strip, _ := e.provider.Stripable(s.selected)
		return e.applyControl(s, strip, "/strip", 0, rest, nil)
	}

	strip, _ := e.slotStrip(s, ssid)
	return e.applyControl(s, strip, "/strip", ssid, rest, args[1:])
}

func (e *Engine) routeCustom(s *Surface, segs []string, args []any) Outcome {
	if len(segs) != 1 {
		return Unhandled
	}

	switch segs[0] {
	case "mode":
		y, ok := argBool(args, 0)
		if !ok {
			e.replyValue(s, "/strip/custom/mode", 0, boolArg(s.customMode))
			return Queried
		}
		e.setCustomMode(s, y)
		return Handled

	case "clear":
		e.clearCustom(s)
		return Handled
	}

	return Unhandled
}

// routeStripSend handles /strip/send/{gain,fader,enable} ssid send value
func (e *Engine) routeStripSend(s *Surface, segs []string, args []any) Outcome {
	if len(segs) != 1 {
		return Unhandled
	}

	ssid, ok := argInt(args, 0)
	n, ok2 := argInt(args, 1)
	if !ok || !ok2 {
		return Unhandled
	}

	strip, ok := e.slotStrip(s, ssid)
	if !ok {
		return Unhandled
	}

	sends := strip.Sends()
	if n < 1 || n > len(sends) {
		return Unhandled
	}

	return e.applySend(s, sends[n-1], "/strip/send/"+segs[0], ssid, segs[0], args[2:])
}

// applySend sets or queries the gain or enable of one send
func (e *Engine) applySend(s *Surface, send Send, echo string, id int, kind string, args []any) Outcome {
	switch kind {
	case "gain":
		return setOrQuery(send.Gain, args, dBToCoefficient, false, func() {
			e.replyValue(s, echo, id, float32(coefficientToDB(send.Gain.Value())))
		})
	case "fader":
		return setOrQuery(send.Gain, args, sliderPositionToGain, false, func() {
			e.replyValue(s, echo, id, float32(gainToSliderPosition(send.Gain.Value())))
		})
	case "enable":
		return e.toggle(s, send.Enable, args, false, echo, id)
	}

	return Unhandled
}

// routeSelect handles the selected-strip family, including paging of sends
// and plugin parameters and custom list editing
func (e *Engine) routeSelect(s *Surface, ctl string, args []any) Outcome {
	strip, ok := e.provider.Stripable(s.selected)

	switch ctl {
	case "send_gain", "send_fader", "send_enable":
		id, idOK := argInt(args, 0)
		if !ok || !idOK {
			return Unhandled
		}
		sends := s.selection.pagedSends(strip)
		if id < 1 || id > len(sends) {
			return Unhandled
		}
		return e.applySend(s, sends[id-1], "/select/"+ctl, id, strings.TrimPrefix(ctl, "send_"), args[1:])

	case "send_page":
		delta, deltaOK := argInt(args, 0)
		if !ok || !deltaOK {
			return Unhandled
		}
		pages := pageCount(s.cfg.SendPageSize, len(strip.Sends()))
		s.sendPage = min(max(s.sendPage+delta, 1), pages)
		s.selection.rebind()
		return Handled

	case "plugin":
		delta, deltaOK := argInt(args, 0)
		if !ok || !deltaOK {
			return Unhandled
		}
		s.pluginIndex = min(max(s.pluginIndex+delta, 0), max(len(strip.Plugins())-1, 0))
		s.pluginPage = 1
		s.selection.rebind()
		return Handled

	case "plug_page":
		delta, deltaOK := argInt(args, 0)
		if !ok || !deltaOK {
			return Unhandled
		}
		plugin, _ := s.selection.currentPlugin(strip)
		pages := pageCount(s.cfg.PluginPageSize, len(plugin.Params))
		s.pluginPage = min(max(s.pluginPage+delta, 1), pages)
		s.selection.rebind()
		return Handled

	case "plugin/parameter":
		return e.routePluginParameter(s, strip, ok, args)

	case "plugin/activate":
		if !ok {
			return Unhandled
		}
		plugin, pluginOK := s.selection.currentPlugin(strip)
		if !pluginOK {
			return Unhandled
		}
		return e.toggle(s, plugin.Active, args, false, "/select/plugin/activate", 0)

	case "add":
		e.addCustomStrip(s, s.selected)
		return Handled

	case "remove":
		e.removeCustomStrip(s, s.selected)
		return Handled

	case "spill":
		y, yOK := argBool(args, 0)
		if !yOK {
			return Unhandled
		}
		e.setTempMode(s, s.selected, y)
		return Handled
	}

	return e.applyControl(s, strip, "/select", 0, ctl, args)
}

func (e *Engine) routePluginParameter(s *Surface, strip Stripable, ok bool, args []any) Outcome {
	if !ok {
		return Unhandled
	}

	plugin, pluginOK := s.selection.currentPlugin(strip)
	id, idOK := argInt(args, 0)
	if !pluginOK || !idOK {
		return Unhandled
	}

	params := s.selection.pagedParams(plugin)
	if id < 1 || id > len(params) {
		return Unhandled
	}

	c := params[id-1].Control
	v, vOK := argFloat(args, 1)
	if !vOK {
		e.replyValue(s, "/select/plugin/parameter", id, float32(normalized(c)))
		return Queried
	}

	c.SetValue(denormalized(c, v), false)
	return Handled
}

// routeSection handles the master and monitor families
func (e *Engine) routeSection(s *Surface, kind Kind, prefix string, ctl string, args []any) Outcome {
	allowed := false
	for _, name := range sectionControls[kind] {
		if name == ctl {
			allowed = true
			break
		}
	}
	if !allowed {
		return Unhandled
	}

	strip, _ := findByKind(e.provider, kind)

	return e.applyControl(s, strip, prefix, 0, ctl, args)
}

// applyControl sets one named control on strip, or answers with its current
// value when no value is given. An absent strip answers with the cleared
// value so the remote snaps back to an empty display.
func (e *Engine) applyControl(s *Surface, strip Stripable, prefix string, ssid int, ctl string, args []any) Outcome {
	echo := prefix + "/" + ctl

	if len(args) == 0 || strip == nil {
		value, ok := e.controlValue(s, strip, ctl)
		if !ok {
			return Unhandled
		}

		e.replyValue(s, echo, ssid, value)
		if len(args) == 0 {
			return Queried
		}
		return Handled
	}

	if toggleControls[ctl] {
		return e.toggle(s, strip.Control(ControlName(ctl)), args, s.useGroup, echo, ssid)
	}

	switch ctl {
	case "gain", "fader", "db_delta":
		c := strip.Control(ControlGain)
		v, ok := argFloat(args, 0)
		if c == nil || !ok {
			return Unhandled
		}

		switch ctl {
		case "gain":
			c.SetValue(dBToCoefficient(v), s.useGroup)
		case "fader":
			c.SetValue(sliderPositionToGain(v), s.useGroup)
		case "db_delta":
			c.SetValue(dBToCoefficient(coefficientToDB(c.Value())+v), s.useGroup)
		}
		e.touchControl(c)
		return Handled

	case "trimdB":
		return setOrQuery(strip.Control(ControlTrim), args, dBToCoefficient, s.useGroup, func() {})

	case string(ControlPanPosition), string(ControlPanWidth):
		c := strip.Control(ControlName(ctl))
		out := setOrQuery(c, args, func(v float64) float64 { return v }, s.useGroup, func() {})
		if out == Handled {
			e.touchControl(c)
		}
		return out

	case "name":
		name, ok := argString(args, 0)
		if !ok {
			return Unhandled
		}
		strip.SetName(name)
		return Handled

	case "select":
		y, ok := argBool(args, 0)
		if !ok {
			return Unhandled
		}
		if y {
			e.provider.SelectStripable(strip.ID())
		}
		return Handled

	case "expand":
		y, ok := argBool(args, 0)
		if !ok {
			return Unhandled
		}
		e.setExpand(s, strip.ID(), y)
		return Handled

	case "spill":
		y, ok := argBool(args, 0)
		if !ok {
			return Unhandled
		}
		e.setTempMode(s, strip.ID(), y)
		return Handled

	case "fader/automation", "gain/automation":
		c := strip.Control(ControlGain)
		mode, ok := argInt(args, 0)
		if c == nil || !ok {
			return Unhandled
		}
		c.SetAutomationState(AutoState(min(max(mode, int(AutoOff)), int(AutoTouch))))
		return Handled

	case "fader/touch", "gain/touch":
		c := strip.Control(ControlGain)
		y, ok := argBool(args, 0)
		if c == nil || !ok {
			return Unhandled
		}
		e.releaseTouch(c)
		if y {
			c.StartTouch()
		} else {
			c.StopTouch()
		}
		return Handled
	}

	return Unhandled
}

// controlValue reads a named control for a query reply. A nil strip yields
// the cleared value.
func (e *Engine) controlValue(s *Surface, strip Stripable, ctl string) (any, bool) {
	if toggleControls[ctl] {
		if strip == nil {
			return int32(0), true
		}
		c := strip.Control(ControlName(ctl))
		if c == nil {
			return nil, false
		}
		return boolArg(c.Value() >= 0.5), true
	}

	var gain, trim, pan Control
	if strip != nil {
		gain = strip.Control(ControlGain)
		trim = strip.Control(ControlTrim)
		pan = strip.Control(ControlName(ctl))
	}

	switch ctl {
	case "gain":
		if gain == nil {
			return float32(floorDB), true
		}
		return float32(coefficientToDB(gain.Value())), true

	case "fader":
		if gain == nil {
			return float32(0), true
		}
		return float32(gainToSliderPosition(gain.Value())), true

	case "trimdB":
		if trim == nil {
			return float32(0), true
		}
		return float32(coefficientToDB(trim.Value())), true

	case string(ControlPanPosition):
		if pan == nil {
			return float32(0.5), true
		}
		return float32(pan.Value()), true

	case string(ControlPanWidth):
		if pan == nil {
			return float32(0), true
		}
		return float32(pan.Value()), true

	case "name":
		if strip == nil {
			return "", true
		}
		return strip.Name(), true

	case "select":
		if strip == nil {
			return int32(0), true
		}
		return boolArg(s.selected == strip.ID()), true

	case "expand":
		if strip == nil {
			return int32(0), true
		}
		return boolArg(s.expanded && s.expand == strip.ID()), true

	case "fader/automation", "gain/automation":
		if gain == nil {
			return int32(AutoOff), true
		}
		return int32(gain.AutomationState()), true

	case "fader/touch", "gain/touch":
		if gain == nil {
			return int32(0), true
		}
		return boolArg(gain.Touching()), true
	}

	return nil, false
}

// setExpand points the surface's select role at id, or back at the session
// selection
func (e *Engine) setExpand(s *Surface, id StripableID, on bool) {
	if on {
		s.expand = id
		s.expanded = true
		if s.cfg.StripTypes.GlobalExpand {
			e.provider.SelectStripable(id)
		}
	} else {
		s.expand = ""
		s.expanded = false
	}

	e.refreshSelection(s)
}

// currentValue answers "<path>#current_value" on the reply path with the
// original path, the slot and the value
func (e *Engine) currentValue(s *Surface, path string, args []any) Outcome {
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segs) < 2 {
		return Unhandled
	}

	var strip Stripable
	ssid := 0
	ctl := strings.Join(segs[1:], "/")

	switch segs[0] {
	case "strip":
		if n, err := strconv.Atoi(segs[1]); err == nil && len(segs) > 2 {
			ssid = n
			ctl = strings.Join(segs[2:], "/")
		} else if n, ok := argInt(args, 0); ok {
			ssid = n
		}
		strip, _ = e.slotStrip(s, ssid)

	case "select":
		strip, _ = e.provider.Stripable(s.selected)

	case "master":
		strip, _ = findByKind(e.provider, KindMaster)

	case "monitor":
		strip, _ = findByKind(e.provider, KindMonitor)

	default:
		return Unhandled
	}

	value, ok := e.controlValue(s, strip, ctl)
	if !ok {
		return Unhandled
	}

	reply := []any{path}
	if ssid > 0 {
		reply = append(reply, int32(ssid))
	}
	reply = append(reply, value)
	s.out.reply(NewMessage(s.replyPath(), reply...))

	return Queried
}
