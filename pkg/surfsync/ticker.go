package surfsync

// Tick advances periodic feedback. Topology changes reported since the last
// tick are folded into a single bank recompute.
func (e *Engine) Tick() {
	e.ticks++

	if e.dirty.Swap(false) {
		e.recalcBanks()
	}

	for _, s := range e.registry.All() {
		for _, obs := range s.observers {
			obs.tick()
		}
		if s.global != nil {
			s.global.tick(e.ticks)
		}
	}

	e.tickTouches()
}

// recalcBanks re-resolves every surface against the current stripables
func (e *Engine) recalcBanks() {
	e.tickLogger.Debugw("Recalculating banks", "surfaces", e.registry.Len(), "linkSets", len(e.links))

	linksDone := make(map[int]bool)

	for _, s := range e.registry.All() {
		switch set := e.linkSetOf(s); {
		case s.cue:
			s.cueObs.bind()

		case set != nil:
			if !linksDone[set.ID] {
				linksDone[set.ID] = true
				e.recheckLink(set)
			}

		default:
			e.setBank(s, s.bank)
			if s.cfg.BankSize == 0 {
				// tells list-driven surfaces to ask again
				s.out.reply(NewMessage("/strip/list"))
			}
		}

		e.refreshSelection(s)
		if s.global != nil {
			s.global.bind()
		}
	}
}

// touchControl starts or extends a simulated touch on a control in touch
// automation mode
func (e *Engine) touchControl(c Control) {
	if c.AutomationState() != AutoTouch {
		return
	}

	if _, ok := e.touches[c]; !ok {
		if c.Touching() {
			return
		}
		c.StartTouch()
	}

	e.touches[c] = touchTimeoutTicks
}

// releaseTouch hands a control back to an explicit touch gesture
func (e *Engine) releaseTouch(c Control) {
	delete(e.touches, c)
}

func (e *Engine) tickTouches() {
	for c, left := range e.touches {
		left--
		if left > 0 {
			e.touches[c] = left
			continue
		}

		c.StopTouch()
		delete(e.touches, c)
	}
}
