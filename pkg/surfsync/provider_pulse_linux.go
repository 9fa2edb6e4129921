package surfsync

import (
	"fmt"
	"math"
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

const (
	paVolumeNorm = 0x10000

	paMasterID  StripableID = "pa:master"
	paCaptureID StripableID = "pa:capture"
)

// paProvider exposes a PulseAudio server as stripables: the default sink as
// master, the default source as a capture bus and every sink input as an
// audio track. Only gain and mute are controllable.
type paProvider struct {
	logger *zap.SugaredLogger

	client *proto.Client
	conn   net.Conn

	mu        sync.Mutex
	strips    map[StripableID]*paStrip
	nextOrder int
	selected  StripableID

	topology  *listeners
	selection *listeners

	events chan proto.SubscribeEvent
	done   chan struct{}

	writesMu sync.Mutex
	writes   map[*paControl]struct{}
	wake     chan struct{}
}

func newPulseProvider(logger *zap.SugaredLogger) (Provider, error) {
	logger = logger.Named("provider")

	client, conn, err := proto.Connect("")
	if err != nil {
		logger.Warnw("Failed to establish PulseAudio connection", "error", err)
		return nil, fmt.Errorf("establish PulseAudio connection: %w", err)
	}

	request := proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString("surfsync"),
		},
	}
	reply := proto.SetClientNameReply{}

	if err := client.Request(&request, &reply); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set PulseAudio client name: %w", err)
	}

	p := &paProvider{
		logger:    logger,
		client:    client,
		conn:      conn,
		strips:    make(map[StripableID]*paStrip),
		topology:  newListeners(),
		selection: newListeners(),
		events:    make(chan proto.SubscribeEvent, 64),
		done:      make(chan struct{}),
		writes:    make(map[*paControl]struct{}),
		wake:      make(chan struct{}, 1),
	}

	if err := p.loadAll(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	mask := proto.SubscriptionMaskSink | proto.SubscriptionMaskSource | proto.SubscriptionMaskSinkInput
	if err := client.Request(&proto.Subscribe{Mask: mask}, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe to PulseAudio events: %w", err)
	}

	// requests can't be made from the callback, it runs on the reader goroutine
	client.Callback = func(msg interface{}) {
		if ev, ok := msg.(*proto.SubscribeEvent); ok {
			select {
			case p.events <- *ev:
			default:
				p.logger.Warnw("Dropped PulseAudio event", "event", ev.Event, "index", ev.Index)
			}
		}
	}

	go p.handleEvents()
	go p.applyWrites()

	logger.Debugw("Created PulseAudio provider instance", "strips", len(p.strips))

	return p, nil
}

func (p *paProvider) Close() error {
	close(p.done)

	if err := p.conn.Close(); err != nil {
		p.logger.Warnw("Failed to close PulseAudio connection", "error", err)
		return fmt.Errorf("close PulseAudio connection: %w", err)
	}

	p.logger.Debug("Released PulseAudio provider instance")

	return nil
}

func (p *paProvider) loadAll() error {
	if err := p.refreshMaster(); err != nil {
		p.logger.Warnw("Failed to get master sink", "error", err)
	}
	if err := p.refreshCapture(); err != nil {
		p.logger.Warnw("Failed to get master source", "error", err)
	}

	list := proto.GetSinkInputInfoListReply{}
	if err := p.client.Request(&proto.GetSinkInputInfoList{}, &list); err != nil {
		p.logger.Warnw("Failed to get sink input list", "error", err)
		return fmt.Errorf("get sink input list: %w", err)
	}

	for _, info := range list {
		p.upsertSinkInput(info)
	}

	return nil
}

func (p *paProvider) handleEvents() {
	for {
		select {
		case <-p.done:
			return

		case ev := <-p.events:
			p.handleEvent(ev)
		}
	}
}

func (p *paProvider) handleEvent(ev proto.SubscribeEvent) {
	kind := ev.Event.GetType()

	switch ev.Event & proto.EventFacilityMask {
	case proto.EventSinkSinkInput:
		switch kind {
		case proto.EventNew, proto.EventChange:
			if err := p.refreshSinkInput(ev.Index); err != nil {
				p.logger.Debugw("Failed to refresh sink input", "index", ev.Index, "error", err)
			}
		case proto.EventRemove:
			p.remove(sinkInputID(ev.Index))
		}

	case proto.EventSink:
		if err := p.refreshMaster(); err != nil {
			p.logger.Debugw("Failed to refresh master sink", "error", err)
		}

	case proto.EventSource:
		if err := p.refreshCapture(); err != nil {
			p.logger.Debugw("Failed to refresh master source", "error", err)
		}
	}
}

// queueWrite marks c for sending to the server. Several changes to one
// control before the writer gets to it collapse into one request.
func (p *paProvider) queueWrite(c *paControl) {
	p.writesMu.Lock()
	p.writes[c] = struct{}{}
	p.writesMu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *paProvider) applyWrites() {
	for {
		select {
		case <-p.done:
			return

		case <-p.wake:
			p.writesMu.Lock()
			pending := p.writes
			p.writes = make(map[*paControl]struct{})
			p.writesMu.Unlock()

			for c := range pending {
				value := c.Value()
				if err := p.client.Request(c.request(value), nil); err != nil {
					p.logger.Warnw("Failed to apply control value", "value", value, "error", err)
				}
			}
		}
	}
}

func sinkInputID(index uint32) StripableID {
	return StripableID("pa:input:" + strconv.FormatUint(uint64(index), 10))
}

func (p *paProvider) refreshMaster() error {
	reply := proto.GetSinkInfoReply{}
	if err := p.client.Request(&proto.GetSinkInfo{SinkIndex: proto.Undefined}, &reply); err != nil {
		return fmt.Errorf("get master sink info: %w", err)
	}

	index := reply.SinkIndex
	p.upsert(paMasterID, "Master", KindMaster, reply.ChannelVolumes, reply.Mute,
		func(vols []uint32) proto.RequestArgs {
			return &proto.SetSinkVolume{SinkIndex: index, ChannelVolumes: vols}
		},
		func(mute bool) proto.RequestArgs {
			return &proto.SetSinkMute{SinkIndex: index, Mute: mute}
		})

	return nil
}

func (p *paProvider) refreshCapture() error {
	reply := proto.GetSourceInfoReply{}
	if err := p.client.Request(&proto.GetSourceInfo{SourceIndex: proto.Undefined}, &reply); err != nil {
		return fmt.Errorf("get master source info: %w", err)
	}

	index := reply.SourceIndex
	p.upsert(paCaptureID, "Capture", KindAudioBus, reply.ChannelVolumes, reply.Mute,
		func(vols []uint32) proto.RequestArgs {
			return &proto.SetSourceVolume{SourceIndex: index, ChannelVolumes: vols}
		},
		func(mute bool) proto.RequestArgs {
			return &proto.SetSourceMute{SourceIndex: index, Mute: mute}
		})

	return nil
}

func (p *paProvider) refreshSinkInput(index uint32) error {
	info := proto.GetSinkInputInfoReply{}
	if err := p.client.Request(&proto.GetSinkInputInfo{SinkInputIndex: index}, &info); err != nil {
		return fmt.Errorf("get sink input info: %w", err)
	}

	p.upsertSinkInput(&info)

	return nil
}

func (p *paProvider) upsertSinkInput(info *proto.GetSinkInputInfoReply) {
	name := ""
	if v, ok := info.Properties["application.name"]; ok {
		name = v.String()
	} else if v, ok := info.Properties["application.process.binary"]; ok {
		name = v.String()
	} else {
		p.logger.Debugw("Sink input without a process name", "sinkInputIndex", info.SinkInputIndex)
		name = "Input " + strconv.FormatUint(uint64(info.SinkInputIndex), 10)
	}

	index := info.SinkInputIndex
	p.upsert(sinkInputID(index), name, KindAudioTrack, info.ChannelVolumes, info.Muted,
		func(vols []uint32) proto.RequestArgs {
			return &proto.SetSinkInputVolume{SinkInputIndex: index, ChannelVolumes: vols}
		},
		func(mute bool) proto.RequestArgs {
			return &proto.SetSinkInputMute{SinkInputIndex: index, Mute: mute}
		})
}

// upsert creates a stripable or pushes the server's current volume, mute
// and name into an existing one
func (p *paProvider) upsert(
	id StripableID,
	name string,
	kind Kind,
	volumes []uint32,
	muted bool,
	setVolume func([]uint32) proto.RequestArgs,
	setMute func(bool) proto.RequestArgs,
) {
	gain := volumeToGain(volumes)
	mute := 0.0
	if muted {
		mute = 1
	}

	p.mu.Lock()
	s, exists := p.strips[id]
	if !exists {
		s = &paStrip{
			p:        p,
			id:       id,
			name:     name,
			kind:     kind,
			order:    p.nextOrder,
			nameSubs: newListeners(),
		}
		p.nextOrder++

		channels := max(len(volumes), 1)
		s.gain = newPAControl(p, 0, maxGainCoefficient, gain, func(v float64) proto.RequestArgs {
			return setVolume(gainToVolumes(v, channels))
		})
		s.mute = newPAControl(p, 0, 1, mute, func(v float64) proto.RequestArgs {
			return setMute(v >= 0.5)
		})

		p.strips[id] = s
	}
	renamed := exists && s.name != name
	if renamed {
		s.name = name
	}
	p.mu.Unlock()

	if !exists {
		p.logger.Debugw("Stripable added", "id", id, "name", name, "kind", kind)
		p.topology.fire()
		return
	}

	s.gain.update(gain)
	s.mute.update(mute)
	if renamed {
		s.nameSubs.fire()
	}
}

func (p *paProvider) remove(id StripableID) {
	p.mu.Lock()
	_, ok := p.strips[id]
	delete(p.strips, id)
	p.mu.Unlock()

	if ok {
		p.logger.Debugw("Stripable removed", "id", id)
		p.topology.fire()
	}
}

func (p *paProvider) Stripables() []Stripable {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]Stripable, 0, len(p.strips))
	for _, s := range p.strips {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].(*paStrip).order < result[j].(*paStrip).order
	})

	return result
}

func (p *paProvider) Stripable(id StripableID) (Stripable, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.strips[id]
	if !ok {
		return nil, false
	}

	return s, true
}

func (p *paProvider) FirstSelected() (Stripable, bool) {
	p.mu.Lock()
	id := p.selected
	p.mu.Unlock()

	return p.Stripable(id)
}

// SelectStripable keeps the selection locally, PulseAudio has no such notion
func (p *paProvider) SelectStripable(id StripableID) {
	p.mu.Lock()
	changed := p.selected != id
	p.selected = id
	p.mu.Unlock()

	if changed {
		p.selection.fire()
	}
}

func (p *paProvider) SubscribeTopology(fn func()) Subscription {
	return p.topology.add(fn)
}

func (p *paProvider) SubscribeSelection(fn func()) Subscription {
	return p.selection.add(fn)
}

// volumeToGain maps the loudest channel's cubic PulseAudio volume to a gain
// coefficient
func volumeToGain(volumes []uint32) float64 {
	var loudest uint32
	for _, v := range volumes {
		loudest = max(loudest, v)
	}

	return math.Pow(float64(loudest)/paVolumeNorm, 3)
}

func gainToVolumes(gain float64, channels int) []uint32 {
	v := uint32(math.Cbrt(max(gain, 0)) * paVolumeNorm)

	volumes := make([]uint32, channels)
	for i := range volumes {
		volumes[i] = v
	}

	return volumes
}

type paStrip struct {
	p *paProvider

	id    StripableID
	name  string
	kind  Kind
	order int

	gain *paControl
	mute *paControl

	nameSubs *listeners
}

func (s *paStrip) ID() StripableID { return s.id }

func (s *paStrip) Name() string {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()

	return s.name
}

// SetName renames locally; PulseAudio names belong to the client
func (s *paStrip) SetName(name string) {
	s.p.mu.Lock()
	changed := s.name != name
	s.name = name
	s.p.mu.Unlock()

	if changed {
		s.nameSubs.fire()
	}
}

func (s *paStrip) Kind() Kind { return s.kind }
func (s *paStrip) Order() int { return s.order }
func (s *paStrip) Hidden() bool { return false }

func (s *paStrip) Selected() bool {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()

	return s.p.selected == s.id
}

func (s *paStrip) Group() string          { return "" }
func (s *paStrip) Masters() []StripableID { return nil }
func (s *paStrip) Sends() []Send          { return nil }
func (s *paStrip) Plugins() []Plugin      { return nil }
func (s *paStrip) PeakMeter() float64     { return noMeter }

func (s *paStrip) Control(name ControlName) Control {
	switch name {
	case ControlGain:
		return s.gain
	case ControlMute:
		return s.mute
	}

	return nil
}

func (s *paStrip) SubscribeName(fn func()) Subscription {
	return s.nameSubs.add(fn)
}

// paControl caches a server-side value. Local changes are applied at once
// and written to the server by the provider's writer goroutine.
type paControl struct {
	p *paProvider

	mu       sync.Mutex
	value    float64
	lower    float64
	upper    float64
	auto     AutoState
	touching bool

	request func(v float64) proto.RequestArgs
	subs    *listeners
}

func newPAControl(p *paProvider, lower, upper, value float64, request func(float64) proto.RequestArgs) *paControl {
	return &paControl{
		p:       p,
		lower:   lower,
		upper:   upper,
		value:   value,
		request: request,
		subs:    newListeners(),
	}
}

func (c *paControl) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.value
}

func (c *paControl) SetValue(value float64, _ bool) {
	value = min(max(value, c.lower), c.upper)
	if !c.store(value) {
		return
	}

	c.p.queueWrite(c)
	c.subs.fire()
}

// update takes a value reported by the server
func (c *paControl) update(value float64) {
	if c.store(min(max(value, c.lower), c.upper)) {
		c.subs.fire()
	}
}

func (c *paControl) store(value float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value == value {
		return false
	}
	c.value = value

	return true
}

func (c *paControl) Lower() float64 { return c.lower }
func (c *paControl) Upper() float64 { return c.upper }

func (c *paControl) AutomationState() AutoState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.auto
}

func (c *paControl) SetAutomationState(state AutoState) {
	c.mu.Lock()
	c.auto = state
	c.mu.Unlock()
}

func (c *paControl) StartTouch() {
	c.mu.Lock()
	c.touching = true
	c.mu.Unlock()
}

func (c *paControl) StopTouch() {
	c.mu.Lock()
	c.touching = false
	c.mu.Unlock()
}

func (c *paControl) Touching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.touching
}

func (c *paControl) Subscribe(fn func()) Subscription {
	return c.subs.add(fn)
}
