package surfsync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DebugMode selects how much inbound traffic is logged
type DebugMode int

const (
	DebugOff DebugMode = iota
	DebugUnhandled
	DebugAll
)

// ParseDebugMode accepts "off", "unhandled" or "all"
func ParseDebugMode(mode string) (DebugMode, error) {
	switch mode {
	case "", "off":
		return DebugOff, nil
	case "unhandled":
		return DebugUnhandled, nil
	case "all":
		return DebugAll, nil
	}

	return DebugOff, fmt.Errorf("unknown debug mode: %q", mode)
}

const (
	defaultTickInterval = 100 * time.Millisecond

	// touchTimeoutTicks releases a simulated touch after this many quiet ticks
	touchTimeoutTicks = 10
	// gainTimeoutTicks is how long a gain readout replaces a strip name
	gainTimeoutTicks = 8
	// heartbeatTicks toggles /heartbeat about once per second
	heartbeatTicks = 10
)

// EngineConfig holds the process-wide settings of an Engine
type EngineConfig struct {
	Defaults     SurfaceConfig
	TickInterval time.Duration
	DebugMode    DebugMode
}

// Engine keeps every connected surface in sync with the provider's
// stripables. All surface, link set and observer state is owned by the
// goroutine running Run; other goroutines reach it through Post.
type Engine struct {
	logger         *zap.SugaredLogger
	bankLogger     *zap.SugaredLogger
	linkLogger     *zap.SugaredLogger
	dispatchLogger *zap.SugaredLogger
	tickLogger     *zap.SugaredLogger

	provider  Provider
	transport Transport
	registry  *SurfaceRegistry
	links     map[int]*LinkSet

	mail    *mailbox
	dirty   atomic.Bool
	touches map[Control]int
	subs    subscriptionSet

	tickInterval time.Duration
	ticks        uint64
	debugMode    DebugMode
	started      bool

	// set while a message is being routed
	handling *Inbound
}

func NewEngine(logger *zap.SugaredLogger, provider Provider, transport Transport, cfg EngineConfig) (*Engine, error) {
	if provider == nil {
		return nil, errors.New("engine requires a stripable provider")
	}
	if transport == nil {
		return nil, errors.New("engine requires a transport")
	}

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}

	e := &Engine{
		logger:         logger.Named("engine"),
		bankLogger:     logger.Named("bank"),
		linkLogger:     logger.Named("links"),
		dispatchLogger: logger.Named("dispatch"),
		tickLogger:     logger.Named("ticker"),
		provider:       provider,
		transport:      transport,
		registry:       NewSurfaceRegistry(logger, transport, cfg.Defaults),
		links:          make(map[int]*LinkSet),
		mail:           newMailbox(),
		touches:        make(map[Control]int),
		tickInterval:   cfg.TickInterval,
		debugMode:      cfg.DebugMode,
	}

	e.logger.Debug("Created engine instance")

	return e, nil
}

// Registry exposes the surface registry for inspection
func (e *Engine) Registry() *SurfaceRegistry { return e.registry }

// InFlight returns the message the loop was routing when it stopped, if any.
// Only meaningful once the loop has unwound.
func (e *Engine) InFlight() (Inbound, bool) {
	if e.handling == nil {
		return Inbound{}, false
	}

	return *e.handling, true
}

// Ticks is the number of ticks run so far
func (e *Engine) Ticks() uint64 { return e.ticks }

// LinkSet returns a link set by id
func (e *Engine) LinkSet(id int) (*LinkSet, bool) {
	set, ok := e.links[id]
	return set, ok
}

// Start subscribes to the provider. Must be called before Run.
func (e *Engine) Start() error {
	if e.started {
		return errors.New("engine already started")
	}

	e.subs.add(e.provider.SubscribeTopology(func() {
		e.dirty.Store(true)
	}))
	e.subs.add(e.provider.SubscribeSelection(func() {
		e.Post(e.selectionChanged)
	}))

	e.started = true
	e.logger.Info("Engine started")

	return nil
}

// Stop tears down every binding, clearing remote displays, and drops all
// provider subscriptions
func (e *Engine) Stop() {
	if !e.started {
		return
	}

	for _, s := range e.registry.All() {
		e.unbindSurface(s, true)
	}
	e.subs.closeAll()

	for ctl := range e.touches {
		ctl.StopTouch()
	}
	e.touches = make(map[Control]int)

	e.started = false
	e.logger.Info("Engine stopped")
}

// Run is the owner loop. It returns when ctx is done.
func (e *Engine) Run(ctx context.Context, inbound <-chan Inbound) error {
	e.logger.Debugw("Run loop starting", "tickInterval", e.tickInterval)

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("Context done, leaving run loop")
			return nil

		case in, ok := <-inbound:
			if !ok {
				e.logger.Debug("Inbound channel closed")
				inbound = nil
				continue
			}
			e.Handle(in.Source, in.Msg)

		case <-ticker.C:
			e.Tick()

		case <-e.mail.wake:
			e.Flush()
		}
	}
}

// Post schedules fn on the owner loop. Safe from any goroutine.
func (e *Engine) Post(fn func()) {
	e.mail.post(fn)
}

// Flush runs everything posted so far. Only call it from the owner loop.
func (e *Engine) Flush() {
	for {
		fns := e.mail.drain()
		if len(fns) == 0 {
			return
		}

		for _, fn := range fns {
			fn()
		}
	}
}

func (e *Engine) SetDebugMode(mode DebugMode) {
	e.debugMode = mode
}

// SetDefaults changes the configuration of surfaces created from now on
func (e *Engine) SetDefaults(cfg SurfaceConfig) {
	e.registry.SetDefaults(cfg)
}

// surface resolves the surface of a sender, creating and initialising it on
// first contact
func (e *Engine) surface(address string) *Surface {
	s, created := e.registry.GetOrCreate(address)
	if created {
		e.initSurface(s)
	}

	return s
}

func (e *Engine) initSurface(s *Surface) {
	if s.selection == nil {
		s.selection = newSelectObserver(e, s)
		s.global = newGlobalObserver(e, s)
		s.cueObs = newCueObserver(e, s)
	}

	if s.cue {
		s.cueObs.bind()
		return
	}

	e.setBank(s, s.bank)
	e.refreshSelection(s)
	s.global.bind()
}

// unbindSurface drops every observer of a surface
func (e *Engine) unbindSurface(s *Surface, clear bool) {
	e.unbindStrips(s, clear)

	if s.selection != nil {
		s.selection.unbind(clear)
		s.global.unbind()
		s.cueObs.unbind()
	}
}

// Reconfigure applies a new surface configuration, clamping out-of-range
// values. Observers are only rebuilt when the resolved output changes.
func (e *Engine) Reconfigure(address string, cfg SurfaceConfig) {
	e.reconfigure(e.surface(address), cfg)
}

func (e *Engine) reconfigure(s *Surface, cfg SurfaceConfig) {
	cfg = cfg.clamped()
	old := s.cfg

	outputChanged := old.Feedback != cfg.Feedback || old.GainMode != cfg.GainMode || s.cue
	if outputChanged {
		e.unbindSurface(s, true)
	}

	// an explicit setup leaves cue mode
	s.cue, s.aux = false, 0

	s.cfg = cfg
	if old.SendPageSize != cfg.SendPageSize {
		s.sendPage = 1
	}
	if old.PluginPageSize != cfg.PluginPageSize {
		s.pluginPage = 1
	}

	if old != cfg {
		e.logger.Infow("Surface reconfigured",
			"address", s.Address,
			"bankSize", cfg.BankSize,
			"stripTypes", cfg.StripTypes.Bits(),
			"feedback", cfg.Feedback.Bits(),
			"gainMode", cfg.GainMode)
	}

	if set := e.linkSetOf(s); set != nil {
		e.recheckLink(set)
	} else {
		e.setBank(s, s.bank)
	}

	e.refreshSelection(s)
	s.global.bind()
}

// ResetSurface tears a surface down and forgets it. The next message from
// the address starts over with the defaults.
func (e *Engine) ResetSurface(address string) bool {
	s, ok := e.registry.Lookup(address)
	if !ok {
		return false
	}

	e.leaveLink(s)
	e.unbindSurface(s, true)

	return e.registry.Remove(address)
}

// refresh rebuilds all feedback of a surface from scratch
func (e *Engine) refresh(s *Surface) {
	e.unbindSurface(s, false)
	s.out.forget()

	if set := e.linkSetOf(s); set != nil {
		e.recheckLink(set)
		e.refreshSelection(s)
		s.global.bind()
		return
	}

	e.initSurface(s)
}

func (e *Engine) selectionChanged() {
	for _, s := range e.registry.All() {
		e.refreshSelection(s)
	}
}
