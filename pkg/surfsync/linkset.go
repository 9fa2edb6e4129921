package surfsync

import (
	"fmt"
)

// LinkSet joins several surfaces into one logical device sharing one bank.
// Members are indexed by device slot; index 0 is unused and an empty
// address marks a missing device.
type LinkSet struct {
	ID         int
	Members    []string
	BankSize   int
	Bank       int
	AutoBank   bool
	NotReady   int
	StripTypes StripTypes
	Strips     []StripableID
}

func newLinkSet(id int, types StripTypes) *LinkSet {
	return &LinkSet{
		ID:         id,
		Members:    []string{""},
		Bank:       1,
		AutoBank:   true,
		StripTypes: types,
	}
}

func (e *Engine) linkSetOf(s *Surface) *LinkSet {
	if s.linkSet == 0 {
		return nil
	}

	return e.links[s.linkSet]
}

func (e *Engine) linkNotReady(s *Surface) bool {
	set := e.linkSetOf(s)
	return set != nil && set.NotReady != 0
}

// linkSet returns the set with id, creating it from the surface's strip
// filter when it does not exist yet
func (e *Engine) linkSet(id int, s *Surface) *LinkSet {
	set, ok := e.links[id]
	if !ok {
		set = newLinkSet(id, s.cfg.StripTypes)
		e.links[id] = set
		e.linkLogger.Infow("Created link set", "set", id, "stripTypes", set.StripTypes.Bits())
	}

	return set
}

// joinLink registers s as device slot of link set setID. Joining set 0 or
// slot 0 leaves any current set.
func (e *Engine) joinLink(s *Surface, setID int, slot int) {
	if setID <= 0 || slot <= 0 {
		e.leaveLink(s)
		return
	}

	if s.linkSet == setID && s.linkID == slot {
		e.recheckLink(e.links[setID])
		return
	}
	if s.linkSet != 0 {
		e.leaveLink(s)
	}

	set := e.linkSet(setID, s)
	for len(set.Members) <= slot {
		set.Members = append(set.Members, "")
	}

	if occupant := set.Members[slot]; occupant != "" && occupant != s.Address {
		if prev, ok := e.registry.Lookup(occupant); ok && prev.linkSet == setID && prev.linkID == slot {
			e.linkLogger.Infow("Device slot taken over", "set", setID, "slot", slot,
				"previous", occupant, "surface", s.Address)
			prev.linkSet, prev.linkID = 0, 0
			e.unbindStrips(prev, true)
			e.setBank(prev, 1)
		}
	}

	set.Members[slot] = s.Address
	s.linkSet, s.linkID = setID, slot
	s.customMode, s.tempMode, s.tempAnchor = false, TempOff, ""
	e.unbindStrips(s, false)

	e.linkLogger.Infow("Surface joined link set", "set", setID, "slot", slot, "surface", s.Address)

	e.recheckLink(set)
}

// leaveLink removes s from its link set. The set stays behind, not ready at
// the vacated slot, until that slot is filled again.
func (e *Engine) leaveLink(s *Surface) {
	set := e.linkSetOf(s)
	if set == nil {
		s.linkSet, s.linkID = 0, 0
		return
	}

	if s.linkID < len(set.Members) && set.Members[s.linkID] == s.Address {
		set.Members[s.linkID] = ""
	}

	e.linkLogger.Infow("Surface left link set", "set", set.ID, "slot", s.linkID, "surface", s.Address)

	s.linkSet, s.linkID = 0, 0
	s.out.value("/link/not_ready", int32(0))
	e.unbindStrips(s, true)
	e.setBank(s, 1)

	e.recheckLink(set)
}

// setLinkBankSize fixes the combined bank size. Size 0 derives it from the
// members again.
func (e *Engine) setLinkBankSize(set *LinkSet, size int) {
	if size <= 0 {
		set.AutoBank = true
	} else {
		set.AutoBank = false
		set.BankSize = size
	}

	e.linkLogger.Debugw("Link bank size set", "set", set.ID, "size", size, "autoBank", set.AutoBank)

	e.recheckLink(set)
}

// linkCheck returns 0 when every slot up to the highest one is held by a
// surface still claiming membership with a usable bank size. Otherwise it
// returns the first missing slot, or one past the last slot when the members
// do not add up to a fixed combined size.
func (e *Engine) linkCheck(set *LinkSet) int {
	if len(set.Members) < 2 {
		return 1
	}

	total := 0
	for slot := 1; slot < len(set.Members); slot++ {
		address := set.Members[slot]
		if address == "" {
			return slot
		}

		member, ok := e.registry.Lookup(address)
		if !ok || member.linkSet != set.ID || member.linkID != slot {
			e.linkLogger.Debugw("Dropping stale link member", "set", set.ID, "slot", slot, "surface", address)
			set.Members[slot] = ""
			return slot
		}
		if member.cfg.BankSize == 0 {
			return slot
		}

		total += member.cfg.BankSize
	}

	if set.AutoBank {
		set.BankSize = total
	} else if total != set.BankSize {
		return len(set.Members)
	}

	return 0
}

// recheckLink recomputes readiness and either rebanks the set or puts every
// present member into the waiting state
func (e *Engine) recheckLink(set *LinkSet) {
	if set == nil {
		return
	}

	was := set.NotReady
	set.NotReady = e.linkCheck(set)

	if set.NotReady != was {
		e.linkLogger.Infow("Link set readiness changed", "set", set.ID, "notReady", set.NotReady, "bankSize", set.BankSize)
	}

	if set.NotReady != 0 {
		set.Bank = 1
		e.linkSentinel(set)
		return
	}

	for _, member := range e.linkMembers(set) {
		member.out.value("/link/not_ready", int32(0))
	}

	e.setLinkBank(set, set.Bank)
}

// setLinkBank moves the shared bank and hands each member its contiguous
// sub-range in slot order
func (e *Engine) setLinkBank(set *LinkSet, start int) {
	if set.NotReady != 0 {
		set.Bank = 1
		e.linkSentinel(set)
		return
	}

	set.Strips = e.sortedStrips(set.StripTypes)
	set.Bank = bankLimitsCheck(start, set.BankSize, len(set.Strips))

	bank := set.Bank
	for _, member := range e.linkMembers(set) {
		member.strips = set.Strips
		member.bank = bank
		bank += member.cfg.BankSize

		e.bindSlots(member)
		e.bankLEDs(member)
	}

	e.linkLogger.Debugw("Link bank set", "set", set.ID, "bank", set.Bank, "strips", len(set.Strips))
}

// linkSentinel replaces member feedback with a "waiting for device" display
func (e *Engine) linkSentinel(set *LinkSet) {
	for _, member := range e.linkMembers(set) {
		e.unbindStrips(member, true)
		member.out.value("/link/not_ready", int32(set.NotReady))
		member.out.withID("/strip/name", 1, member.inline(), fmt.Sprintf("Device %d", set.NotReady))
	}
}

// linkMembers lists the present members in slot order
func (e *Engine) linkMembers(set *LinkSet) []*Surface {
	var members []*Surface
	for slot := 1; slot < len(set.Members); slot++ {
		if set.Members[slot] == "" {
			continue
		}

		member, ok := e.registry.Lookup(set.Members[slot])
		if ok && member.linkSet == set.ID && member.linkID == slot {
			members = append(members, member)
		}
	}

	return members
}
