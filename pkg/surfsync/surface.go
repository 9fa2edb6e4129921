package surfsync

import (
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"
)

// TempMode is a transient list override derived from an anchor stripable
type TempMode int

const (
	TempOff TempMode = iota
	TempGroupOnly
	TempVCAOnly
	TempBusOnly
)

func (m TempMode) String() string {
	switch m {
	case TempGroupOnly:
		return "group"
	case TempVCAOnly:
		return "vca"
	case TempBusOnly:
		return "bus"
	}

	return "off"
}

// Surface is the runtime state of one remote endpoint. It is only touched
// from the engine loop.
type Surface struct {
	Address string

	cfg    SurfaceConfig
	bank   int
	strips []StripableID

	customMode bool
	customList []StripableID
	tempMode   TempMode
	tempAnchor StripableID
	useGroup   bool

	selected    StripableID
	expand      StripableID
	expanded    bool
	sendPage    int
	pluginIndex int
	pluginPage  int

	linkSet int
	linkID  int

	cue bool
	aux int

	out       *feedbackSender
	observers map[int]*stripObserver
	selection *selectObserver
	global    *globalObserver
	cueObs    *cueObserver
}

func newSurface(address string, cfg SurfaceConfig, transport Transport) *Surface {
	return &Surface{
		Address:    address,
		cfg:        cfg,
		bank:       1,
		sendPage:   1,
		pluginPage: 1,
		out:        newFeedbackSender(transport, address),
		observers:  make(map[int]*stripObserver),
	}
}

func (s *Surface) Config() SurfaceConfig { return s.cfg }

// Bank returns the 1-based start of the surface's bank window
func (s *Surface) Bank() int { return s.bank }

// VisibleStrips returns the resolved list the surface banks over. Holes in
// a custom list are empty ids.
func (s *Surface) VisibleStrips() []StripableID {
	return append([]StripableID(nil), s.strips...)
}

// Link returns the link set id and device slot, both 0 when unlinked
func (s *Surface) Link() (int, int) { return s.linkSet, s.linkID }

func (s *Surface) TempMode() TempMode { return s.tempMode }
func (s *Surface) CustomMode() bool   { return s.customMode }

// Selected returns the stripable the surface's select role follows
func (s *Surface) Selected() StripableID { return s.selected }

// BoundStrip returns the stripable bound to a bank slot, if any
func (s *Surface) BoundStrip(slot int) (StripableID, bool) {
	obs, ok := s.observers[slot]
	if !ok || !obs.live {
		return "", false
	}

	return obs.id, true
}

func (s *Surface) inline() bool { return s.cfg.Feedback.SsidInPath }

func (s *Surface) replyPath() string {
	if s.cfg.Feedback.ReplyCompat {
		return "/reply"
	}

	return "#reply"
}

// SurfaceRegistry owns one Surface per remote endpoint
type SurfaceRegistry struct {
	logger    *zap.SugaredLogger
	transport Transport

	defaults SurfaceConfig
	surfaces map[string]*Surface
}

func NewSurfaceRegistry(logger *zap.SugaredLogger, transport Transport, defaults SurfaceConfig) *SurfaceRegistry {
	logger = logger.Named("registry")

	r := &SurfaceRegistry{
		logger:    logger,
		transport: transport,
		defaults:  defaults.clamped(),
		surfaces:  make(map[string]*Surface),
	}

	logger.Debug("Created surface registry instance")

	return r
}

// GetOrCreate returns the surface for address, creating it with the current
// defaults on first contact
func (r *SurfaceRegistry) GetOrCreate(address string) (*Surface, bool) {
	if s, ok := r.surfaces[address]; ok {
		return s, false
	}

	s := newSurface(address, r.defaults, r.transport)
	r.surfaces[address] = s

	r.logger.Infow("New surface connected",
		"address", address,
		"bankSize", s.cfg.BankSize,
		"stripTypes", s.cfg.StripTypes.Bits(),
		"feedback", s.cfg.Feedback.Bits())

	return s, true
}

func (r *SurfaceRegistry) Lookup(address string) (*Surface, bool) {
	s, ok := r.surfaces[address]
	return s, ok
}

func (r *SurfaceRegistry) Remove(address string) bool {
	if _, ok := r.surfaces[address]; !ok {
		return false
	}

	delete(r.surfaces, address)
	r.logger.Infow("Surface removed", "address", address)

	return true
}

// All returns every surface ordered by address
func (r *SurfaceRegistry) All() []*Surface {
	all := make([]*Surface, 0, len(r.surfaces))
	for _, s := range r.surfaces {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Address < all[j].Address
	})

	return all
}

func (r *SurfaceRegistry) Len() int { return len(r.surfaces) }

func (r *SurfaceRegistry) Defaults() SurfaceConfig { return r.defaults }

// SetDefaults changes the configuration of surfaces created from now on
func (r *SurfaceRegistry) SetDefaults(cfg SurfaceConfig) {
	r.defaults = cfg.clamped()
	r.logger.Debugw("Surface defaults updated",
		"bankSize", r.defaults.BankSize,
		"stripTypes", r.defaults.StripTypes.Bits(),
		"feedback", r.defaults.Feedback.Bits(),
		"gainMode", r.defaults.GainMode)
}

// feedbackSender writes feedback to one surface, suppressing values equal to
// the last one sent on the same path and slot
type feedbackSender struct {
	transport Transport
	address   string

	last map[string]string
}

func newFeedbackSender(transport Transport, address string) *feedbackSender {
	return &feedbackSender{
		transport: transport,
		address:   address,
		last:      make(map[string]string),
	}
}

func (f *feedbackSender) send(key string, msg Message) {
	encoded := fmt.Sprintf("%v", msg.Args)
	if prev, ok := f.last[key]; ok && prev == encoded {
		return
	}

	f.last[key] = encoded
	f.transport.Send(f.address, msg)
}

// value sends an unindexed message
func (f *feedbackSender) value(path string, args ...any) {
	f.send(path, NewMessage(path, args...))
}

// withID sends a slot-addressed value, with the id either in the path or as
// the leading argument
func (f *feedbackSender) withID(path string, id int, inline bool, value any) {
	if inline {
		p := path + "/" + strconv.Itoa(id)
		f.send(p, NewMessage(p, value))
		return
	}

	f.send(path+"#"+strconv.Itoa(id), NewMessage(path, int32(id), value))
}

// reply bypasses the cache
func (f *feedbackSender) reply(msg Message) {
	f.transport.Send(f.address, msg)
}

func (f *feedbackSender) replyWithID(path string, id int, inline bool, value any) {
	switch {
	case id <= 0:
		f.reply(NewMessage(path, value))
	case inline:
		f.reply(NewMessage(path+"/"+strconv.Itoa(id), value))
	default:
		f.reply(NewMessage(path, int32(id), value))
	}
}

// forget drops the cache so the next burst is sent in full
func (f *feedbackSender) forget() {
	f.last = make(map[string]string)
}
