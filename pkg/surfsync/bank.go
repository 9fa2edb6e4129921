package surfsync

import (
	"sort"

	"github.com/thoas/go-funk"
)

// bankLimitsCheck clamps a requested bank start so the top bank is always
// full when there are more visible strips than slots
func bankLimitsCheck(bank, size, total int) int {
	if size <= 0 || total <= size {
		return 1
	}

	if bank < 1 {
		return 1
	}
	if top := total - size + 1; bank > top {
		return top
	}

	return bank
}

// sortedStrips builds the default-mode list for a strip type filter
func (e *Engine) sortedStrips(types StripTypes) []StripableID {
	all := e.provider.Stripables()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Order() < all[j].Order()
	})

	var out []StripableID
	var master, monitor Stripable

	for _, s := range all {
		if s.Hidden() && !types.Hidden {
			continue
		}
		if types.SelectedOnly && !s.Selected() {
			continue
		}

		switch s.Kind() {
		case KindMaster:
			if master == nil {
				master = s
			}
		case KindMonitor:
			if monitor == nil {
				monitor = s
			}
		default:
			if types.includesKind(s.Kind()) {
				out = append(out, s.ID())
			}
		}
	}

	if types.Master && master != nil {
		out = append(out, master.ID())
	}
	if types.Monitor && monitor != nil {
		out = append(out, monitor.ID())
	}

	return out
}

// customStrips resolves the user list, turning vanished entries into holes
func (e *Engine) customStrips(s *Surface) []StripableID {
	for i, id := range s.customList {
		if id == "" {
			continue
		}
		if _, ok := e.provider.Stripable(id); !ok {
			e.bankLogger.Debugw("Custom strip vanished, leaving a hole",
				"surface", s.Address, "index", i+1, "strip", id)
			s.customList[i] = ""
		}
	}

	return append([]StripableID(nil), s.customList...)
}

// tempStrips derives the temporary list from the anchor: its route group,
// the strips slaved to it, or the strips feeding it. The anchor comes last.
func (e *Engine) tempStrips(s *Surface) ([]StripableID, bool) {
	anchor, ok := e.provider.Stripable(s.tempAnchor)
	if !ok {
		return nil, false
	}

	all := e.provider.Stripables()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Order() < all[j].Order()
	})

	var out []StripableID
	for _, st := range all {
		if st.ID() == anchor.ID() {
			continue
		}
		if st.Hidden() && !s.cfg.StripTypes.Hidden {
			continue
		}

		member := false
		switch s.tempMode {
		case TempGroupOnly:
			member = anchor.Group() != "" && st.Group() == anchor.Group()
		case TempVCAOnly:
			member = funk.Contains(st.Masters(), anchor.ID())
		case TempBusOnly:
			member = feedsBus(st, anchor.ID())
		}

		if member {
			out = append(out, st.ID())
		}
	}

	return append(out, anchor.ID()), true
}

// visibleStrips resolves the ordered list an unlinked surface banks over
func (e *Engine) visibleStrips(s *Surface) []StripableID {
	if s.tempMode != TempOff {
		strips, ok := e.tempStrips(s)
		if ok {
			return strips
		}

		e.bankLogger.Infow("Temporary mode anchor vanished, leaving temporary mode",
			"surface", s.Address, "anchor", s.tempAnchor)
		s.tempMode = TempOff
		s.tempAnchor = ""
	}

	if s.customMode {
		return e.customStrips(s)
	}

	return e.sortedStrips(s.cfg.StripTypes)
}

// stripsView is the list a surface's slots index into: its own, or its link set's
func (e *Engine) stripsView(s *Surface) []StripableID {
	if set := e.linkSetOf(s); set != nil {
		return set.Strips
	}

	return s.strips
}

// slotStrip resolves a 1-based bank slot to a stripable
func (e *Engine) slotStrip(s *Surface, ssid int) (Stripable, bool) {
	if ssid < 1 {
		return nil, false
	}
	if s.cfg.BankSize > 0 && ssid > s.cfg.BankSize {
		return nil, false
	}

	view := e.stripsView(s)
	idx := s.bank - 1 + ssid - 1
	if idx < 0 || idx >= len(view) || view[idx] == "" {
		return nil, false
	}

	return e.provider.Stripable(view[idx])
}

// slotTargets maps each bank slot (index 0 is slot 1) to a stripable id
func (e *Engine) slotTargets(s *Surface) []StripableID {
	view := e.stripsView(s)

	size := s.cfg.BankSize
	if size == 0 {
		size = len(view)
	}

	targets := make([]StripableID, size)
	for i := range targets {
		if idx := s.bank - 1 + i; idx < len(view) {
			targets[i] = view[idx]
		}
	}

	return targets
}

// setBank moves a surface (or its whole link set) to a new bank start and
// returns the effective start
func (e *Engine) setBank(s *Surface, start int) int {
	if s.cue {
		return 1
	}

	if set := e.linkSetOf(s); set != nil {
		e.setLinkBank(set, start)
		return set.Bank
	}

	s.strips = e.visibleStrips(s)
	s.bank = bankLimitsCheck(start, s.cfg.BankSize, len(s.strips))

	e.bindSlots(s)
	e.bankLEDs(s)

	return s.bank
}

// bankDelta pages by whole banks
func (e *Engine) bankDelta(s *Surface, delta int) int {
	bank, size := s.bank, s.cfg.BankSize
	if set := e.linkSetOf(s); set != nil {
		bank, size = set.Bank, set.BankSize
	}

	if size == 0 {
		return e.setBank(s, 1)
	}

	return e.setBank(s, max(bank+delta*size, 1))
}

// bindSlots brings the slot observers in line with the current bank. Slots
// whose stripable did not change keep their binding untouched.
func (e *Engine) bindSlots(s *Surface) {
	if !s.cfg.Feedback.stripFeedback() || e.linkNotReady(s) {
		e.unbindStrips(s, false)
		return
	}

	targets := e.slotTargets(s)

	for slot, obs := range s.observers {
		if slot > len(targets) {
			obs.unbind(true)
			delete(s.observers, slot)
		}
	}

	for i, id := range targets {
		slot := i + 1

		obs, ok := s.observers[slot]
		if !ok {
			obs = newStripObserver(e, s, slot)
			s.observers[slot] = obs
		}

		obs.bind(id)
	}
}

func (e *Engine) unbindStrips(s *Surface, clear bool) {
	for slot, obs := range s.observers {
		obs.unbind(clear)
		delete(s.observers, slot)
	}
}

// bankLEDs tells the surface whether paging up or down is possible
func (e *Engine) bankLEDs(s *Surface) {
	fb := s.cfg.Feedback
	if s.cfg.BankSize == 0 || !(fb.StripButtons || fb.StripValues || fb.MasterMonitor) {
		return
	}

	bank, size, total := s.bank, s.cfg.BankSize, len(s.strips)
	if set := e.linkSetOf(s); set != nil {
		bank, size, total = set.Bank, set.BankSize, len(set.Strips)
	}

	s.out.value("/bank_up", boolArg(bank+size <= total))
	s.out.value("/bank_down", boolArg(bank > 1))
}

// selectedTarget is the stripable a surface's select role follows: its own
// expand target when expanded, else the session selection
func (e *Engine) selectedTarget(s *Surface) StripableID {
	if s.expanded {
		if _, ok := e.provider.Stripable(s.expand); ok {
			return s.expand
		}
		s.expanded = false
		s.expand = ""
	}

	if sel, ok := e.provider.FirstSelected(); ok {
		return sel.ID()
	}

	return ""
}

func (e *Engine) refreshSelection(s *Surface) {
	if s.selection == nil {
		return
	}

	target := e.selectedTarget(s)
	if target != s.selected {
		s.selected = target
		s.sendPage = 1
		s.pluginIndex = 0
		s.pluginPage = 1

		for _, obs := range s.observers {
			obs.emitSelect()
		}
	}

	if s.cfg.Feedback.SelectFeedback {
		s.selection.bind(target)
	} else {
		s.selection.unbind(false)
	}
}

// setTempMode enters or leaves the temporary list derived from anchor
func (e *Engine) setTempMode(s *Surface, anchor StripableID, on bool) {
	if !on {
		if s.tempMode == TempOff {
			return
		}
		s.tempMode = TempOff
		s.tempAnchor = ""
		e.setBank(s, 1)
		return
	}

	strip, ok := e.provider.Stripable(anchor)
	if !ok {
		return
	}

	mode := TempOff
	switch strip.Kind() {
	case KindVCA:
		mode = TempVCAOnly
	case KindAudioBus, KindMidiBus, KindFoldbackBus:
		mode = TempBusOnly
	default:
		if strip.Group() != "" {
			mode = TempGroupOnly
		}
	}

	if mode == TempOff {
		e.bankLogger.Debugw("Nothing to spill", "surface", s.Address, "anchor", anchor)
		return
	}

	s.tempMode = mode
	s.tempAnchor = anchor
	e.bankLogger.Debugw("Entered temporary mode", "surface", s.Address, "mode", mode, "anchor", anchor)
	e.setBank(s, 1)
}

// setCustomMode switches between the user list and default ordering
func (e *Engine) setCustomMode(s *Surface, on bool) {
	on = on && len(s.customList) > 0
	if s.customMode == on && s.tempMode == TempOff {
		return
	}

	s.customMode = on
	s.tempMode = TempOff
	s.tempAnchor = ""
	e.setBank(s, 1)
}

func (e *Engine) addCustomStrip(s *Surface, id StripableID) {
	if id == "" || funk.Contains(s.customList, id) {
		return
	}

	s.customList = append(s.customList, id)
	if s.customMode {
		e.setBank(s, s.bank)
	}
}

func (e *Engine) removeCustomStrip(s *Surface, id StripableID) {
	idx := funk.IndexOf(s.customList, id)
	if id == "" || idx < 0 {
		return
	}

	s.customList = append(s.customList[:idx], s.customList[idx+1:]...)
	if len(s.customList) == 0 {
		s.customMode = false
	}
	e.setBank(s, s.bank)
}

func (e *Engine) clearCustom(s *Surface) {
	s.customList = nil
	s.customMode = false
	e.setBank(s, 1)
}
