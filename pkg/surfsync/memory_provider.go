package surfsync

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StripableSpec describes a stripable held by the MemoryProvider. It doubles
// as the fixture format of the `strips` config key.
type StripableSpec struct {
	ID      StripableID   `mapstructure:"id"`
	Name    string        `mapstructure:"name"`
	Kind    Kind          `mapstructure:"kind"`
	Hidden  bool          `mapstructure:"hidden"`
	Group   string        `mapstructure:"group"`
	Masters []StripableID `mapstructure:"masters"`
	SendsTo []StripableID `mapstructure:"sends_to"`
	Plugins []PluginSpec  `mapstructure:"plugins"`
}

// PluginSpec describes a plugin and its parameter names
type PluginSpec struct {
	Name   string   `mapstructure:"name"`
	Params []string `mapstructure:"params"`
}

// MemoryProvider is a self-contained Provider keeping the whole session model
// in memory. It is safe for concurrent use.
type MemoryProvider struct {
	logger *zap.SugaredLogger

	mu        sync.Mutex
	strips    map[StripableID]*memStripable
	nextOrder int

	topology  *listeners
	selection *listeners
}

func NewMemoryProvider(logger *zap.SugaredLogger) *MemoryProvider {
	logger = logger.Named("provider")

	p := &MemoryProvider{
		logger:    logger,
		strips:    make(map[StripableID]*memStripable),
		topology:  newListeners(),
		selection: newListeners(),
	}

	logger.Debug("Created memory provider instance")

	return p
}

// Add creates a stripable at the end of the presentation order and returns its id
func (p *MemoryProvider) Add(spec StripableSpec) StripableID {
	p.mu.Lock()

	if spec.ID == "" {
		spec.ID = StripableID(uuid.NewString())
	}
	if spec.Name == "" {
		spec.Name = string(spec.ID)
	}

	s := &memStripable{
		provider: p,
		id:       spec.ID,
		name:     spec.Name,
		kind:     spec.Kind,
		order:    p.nextOrder,
		hidden:   spec.Hidden,
		group:    spec.Group,
		masters:  append([]StripableID(nil), spec.Masters...),
		meter:    noMeter,
		controls: make(map[ControlName]*memControl),
		nameSubs: newListeners(),
	}
	p.nextOrder++

	for _, name := range controlsForKind(spec.Kind) {
		s.controls[name] = newMemControl(s, name)
	}
	for _, target := range spec.SendsTo {
		sendName := string(target)
		if t, ok := p.strips[target]; ok {
			sendName = t.name
		}
		s.sends = append(s.sends, Send{
			Target: target,
			Name:   sendName,
			Gain:   newMemControl(s, ControlGain),
			Enable: newToggle(s, "send_enable", 1),
		})
	}
	for _, ps := range spec.Plugins {
		plugin := Plugin{Name: ps.Name, Active: newToggle(s, "plugin_active", 1)}
		for _, param := range ps.Params {
			ctrl := &memControl{owner: s, name: ControlName(param), lower: 0, upper: 1, subs: newListeners()}
			plugin.Params = append(plugin.Params, PluginParam{Name: param, Control: ctrl})
		}
		s.plugins = append(s.plugins, plugin)
	}

	p.strips[s.id] = s
	p.mu.Unlock()

	p.logger.Debugw("Stripable added", "id", s.id, "name", s.name, "kind", s.kind)
	p.topology.fire()

	return s.id
}

// Remove deletes a stripable. Subscribers of its controls are not notified.
func (p *MemoryProvider) Remove(id StripableID) bool {
	p.mu.Lock()
	_, ok := p.strips[id]
	delete(p.strips, id)
	p.mu.Unlock()

	if ok {
		p.logger.Debugw("Stripable removed", "id", id)
		p.topology.fire()
	}

	return ok
}

// Reorder moves a stripable to the given presentation order
func (p *MemoryProvider) Reorder(id StripableID, order int) {
	p.mu.Lock()
	s, ok := p.strips[id]
	if ok {
		s.order = order
	}
	p.mu.Unlock()

	if ok {
		p.topology.fire()
	}
}

// SetMeter sets the peak level reported by a stripable
func (p *MemoryProvider) SetMeter(id StripableID, dB float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.strips[id]; ok {
		s.meter = dB
	}
}

func (p *MemoryProvider) Stripables() []Stripable {
	p.mu.Lock()
	defer p.mu.Unlock()

	strips := make([]*memStripable, 0, len(p.strips))
	for _, s := range p.strips {
		strips = append(strips, s)
	}
	// order is read under p.mu, so the comparison must not go through Order()
	sort.Slice(strips, func(i, j int) bool {
		if strips[i].order != strips[j].order {
			return strips[i].order < strips[j].order
		}
		return strips[i].id < strips[j].id
	})

	result := make([]Stripable, len(strips))
	for i, s := range strips {
		result[i] = s
	}

	return result
}

func (p *MemoryProvider) Stripable(id StripableID) (Stripable, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.strips[id]
	if !ok {
		return nil, false
	}

	return s, true
}

func (p *MemoryProvider) FirstSelected() (Stripable, bool) {
	for _, s := range p.Stripables() {
		if s.Selected() {
			return s, true
		}
	}

	return nil, false
}

func (p *MemoryProvider) SelectStripable(id StripableID) {
	p.mu.Lock()
	changed := false
	for sid, s := range p.strips {
		want := sid == id
		if s.selected != want {
			s.selected = want
			changed = true
		}
	}
	p.mu.Unlock()

	if changed {
		p.selection.fire()
	}
}

func (p *MemoryProvider) SubscribeTopology(fn func()) Subscription {
	return p.topology.add(fn)
}

func (p *MemoryProvider) SubscribeSelection(fn func()) Subscription {
	return p.selection.add(fn)
}

func (p *MemoryProvider) groupMembers(group string) []*memStripable {
	p.mu.Lock()
	defer p.mu.Unlock()

	var members []*memStripable
	for _, s := range p.strips {
		if s.group == group {
			members = append(members, s)
		}
	}

	return members
}

func controlsForKind(kind Kind) []ControlName {
	names := []ControlName{ControlMute, ControlGain, ControlTrim, ControlPanPosition, ControlPanWidth, ControlPolarity}

	switch kind {
	case KindAudioTrack, KindMidiTrack:
		names = append(names, ControlSolo, ControlSoloIsolate, ControlSoloSafe,
			ControlRecEnable, ControlRecSafe, ControlMonitorInput, ControlMonitorDisk)
	case KindMonitor:
		names = append(names, ControlDim, ControlMono)
	case KindMaster:
	default:
		names = append(names, ControlSolo, ControlSoloIsolate, ControlSoloSafe)
	}

	return names
}

type memStripable struct {
	provider *MemoryProvider

	id       StripableID
	name     string
	kind     Kind
	order    int
	hidden   bool
	selected bool
	group    string
	masters  []StripableID
	sends    []Send
	plugins  []Plugin
	meter    float64

	controls map[ControlName]*memControl
	nameSubs *listeners
}

func (s *memStripable) ID() StripableID { return s.id }

func (s *memStripable) Name() string {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	return s.name
}

func (s *memStripable) SetName(name string) {
	s.provider.mu.Lock()
	changed := s.name != name
	s.name = name
	s.provider.mu.Unlock()

	if changed {
		s.nameSubs.fire()
	}
}

func (s *memStripable) Kind() Kind { return s.kind }

func (s *memStripable) Order() int {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	return s.order
}

func (s *memStripable) Hidden() bool { return s.hidden }

func (s *memStripable) Selected() bool {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	return s.selected
}

func (s *memStripable) Group() string          { return s.group }
func (s *memStripable) Masters() []StripableID { return s.masters }
func (s *memStripable) Sends() []Send          { return s.sends }
func (s *memStripable) Plugins() []Plugin      { return s.plugins }

func (s *memStripable) Control(name ControlName) Control {
	c, ok := s.controls[name]
	if !ok {
		return nil
	}

	return c
}

func (s *memStripable) PeakMeter() float64 {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	return s.meter
}

func (s *memStripable) SubscribeName(fn func()) Subscription {
	return s.nameSubs.add(fn)
}

type memControl struct {
	owner *memStripable
	name  ControlName

	mu       sync.Mutex
	value    float64
	lower    float64
	upper    float64
	auto     AutoState
	touching bool

	subs *listeners
}

func newMemControl(owner *memStripable, name ControlName) *memControl {
	c := &memControl{owner: owner, name: name, lower: 0, upper: 1, subs: newListeners()}

	switch name {
	case ControlGain:
		c.upper = maxGainCoefficient
		c.value = 1
	case ControlTrim:
		c.lower = dBToCoefficient(-20)
		c.upper = dBToCoefficient(20)
		c.value = 1
	case ControlPanPosition:
		c.value = 0.5
	case ControlPanWidth:
		c.lower = -1
		c.value = 1
	}

	return c
}

func newToggle(owner *memStripable, name ControlName, value float64) *memControl {
	return &memControl{owner: owner, name: name, lower: 0, upper: 1, value: value, subs: newListeners()}
}

func (c *memControl) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *memControl) SetValue(value float64, useGroup bool) {
	if useGroup && c.owner != nil && c.owner.group != "" {
		for _, member := range c.owner.provider.groupMembers(c.owner.group) {
			if mc, ok := member.controls[c.name]; ok {
				mc.set(value)
			}
		}
		return
	}

	c.set(value)
}

func (c *memControl) set(value float64) {
	c.mu.Lock()
	if value < c.lower {
		value = c.lower
	}
	if value > c.upper {
		value = c.upper
	}
	changed := c.value != value
	c.value = value
	c.mu.Unlock()

	if changed {
		c.subs.fire()
	}
}

func (c *memControl) Lower() float64 { return c.lower }
func (c *memControl) Upper() float64 { return c.upper }

func (c *memControl) AutomationState() AutoState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auto
}

func (c *memControl) SetAutomationState(state AutoState) {
	c.mu.Lock()
	c.auto = state
	c.mu.Unlock()
}

func (c *memControl) StartTouch() {
	c.mu.Lock()
	c.touching = true
	c.mu.Unlock()
}

func (c *memControl) StopTouch() {
	c.mu.Lock()
	c.touching = false
	c.mu.Unlock()
}

func (c *memControl) Touching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.touching
}

func (c *memControl) Subscribe(fn func()) Subscription {
	return c.subs.add(fn)
}

// listeners is a small callback registry handing out Subscription tokens
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

func newListeners() *listeners {
	return &listeners{fns: make(map[int]func())}
}

func (l *listeners) add(fn func()) Subscription {
	l.mu.Lock()
	id := l.next
	l.next++
	l.fns[id] = fn
	l.mu.Unlock()

	return &funcSubscription{close: func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}}
}

func (l *listeners) fire() {
	l.mu.Lock()
	fns := make([]func(), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
