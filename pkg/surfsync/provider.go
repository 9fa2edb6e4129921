package surfsync

import (
	"fmt"
	"math"
	"strings"
)

// StripableID is the stable identity of a stripable. The engine only ever
// holds ids and resolves them through the Provider on every access.
type StripableID string

// Kind is the presentation kind of a stripable
type Kind int

const (
	KindAudioTrack Kind = iota
	KindMidiTrack
	KindAudioBus
	KindMidiBus
	KindVCA
	KindMaster
	KindMonitor
	KindFoldbackBus
)

func (k Kind) String() string {
	switch k {
	case KindAudioTrack:
		return "AT"
	case KindMidiTrack:
		return "MT"
	case KindAudioBus:
		return "B"
	case KindMidiBus:
		return "MB"
	case KindVCA:
		return "V"
	case KindMaster:
		return "MA"
	case KindMonitor:
		return "MO"
	case KindFoldbackBus:
		return "FB"
	}

	return "?"
}

var kindNames = map[string]Kind{
	"audio_track":  KindAudioTrack,
	"midi_track":   KindMidiTrack,
	"audio_bus":    KindAudioBus,
	"midi_bus":     KindMidiBus,
	"vca":          KindVCA,
	"master":       KindMaster,
	"monitor":      KindMonitor,
	"foldback_bus": KindFoldbackBus,
}

// ParseKind accepts a long kind name ("audio_track") or its short code ("AT")
func ParseKind(name string) (Kind, error) {
	if k, ok := kindNames[strings.ToLower(name)]; ok {
		return k, nil
	}

	for k := KindAudioTrack; k <= KindFoldbackBus; k++ {
		if strings.EqualFold(k.String(), name) {
			return k, nil
		}
	}

	return KindAudioTrack, fmt.Errorf("unknown stripable kind: %q", name)
}

// ControlName names a control on a stripable
type ControlName string

const (
	ControlMute         ControlName = "mute"
	ControlSolo         ControlName = "solo"
	ControlSoloIsolate  ControlName = "solo_iso"
	ControlSoloSafe     ControlName = "solo_safe"
	ControlRecEnable    ControlName = "recenable"
	ControlRecSafe      ControlName = "record_safe"
	ControlMonitorInput ControlName = "monitor_input"
	ControlMonitorDisk  ControlName = "monitor_disk"
	ControlPolarity     ControlName = "polarity"
	ControlGain         ControlName = "gain"
	ControlTrim         ControlName = "trim"
	ControlPanPosition  ControlName = "pan_stereo_position"
	ControlPanWidth     ControlName = "pan_stereo_width"
	ControlDim          ControlName = "dim"
	ControlMono         ControlName = "mono"
)

// AutoState is the automation state of a control
type AutoState int

const (
	AutoOff AutoState = iota
	AutoPlay
	AutoWrite
	AutoTouch
)

// Subscription is a disposable change-notification token. Close must be
// idempotent. A notification already being delivered may still reach the
// callback after Close returns; subscribers ignore such late calls.
type Subscription interface {
	Close()
}

// Control is a single automatable value on a stripable
type Control interface {
	Value() float64
	SetValue(value float64, useGroup bool)
	Lower() float64
	Upper() float64

	AutomationState() AutoState
	SetAutomationState(state AutoState)
	StartTouch()
	StopTouch()
	Touching() bool

	// Subscribe registers fn for value changes. fn may be called from any goroutine.
	Subscribe(fn func()) Subscription
}

// Send is an aux send from one stripable to a bus
type Send struct {
	Target StripableID
	Name   string
	Gain   Control
	Enable Control
}

// PluginParam is a single automatable plugin parameter
type PluginParam struct {
	Name    string
	Control Control
}

// Plugin is a processor on a stripable, exposing paged parameters
type Plugin struct {
	Name   string
	Active Control
	Params []PluginParam
}

// Stripable is a mixing-channel-like entity owned by the session
type Stripable interface {
	ID() StripableID
	Name() string
	SetName(name string)
	Kind() Kind
	Order() int
	Hidden() bool
	Selected() bool

	// Group is the route group name, empty when ungrouped
	Group() string
	// Masters lists the VCAs this stripable is slaved to
	Masters() []StripableID
	Sends() []Send
	Plugins() []Plugin

	// Control returns nil when the stripable has no such control
	Control(name ControlName) Control
	// PeakMeter returns the current peak level in dBFS
	PeakMeter() float64

	SubscribeName(fn func()) Subscription
}

// Provider supplies the live set of stripables. All methods are safe to call
// from the engine goroutine; callbacks may arrive on any goroutine.
type Provider interface {
	Stripables() []Stripable
	Stripable(id StripableID) (Stripable, bool)

	FirstSelected() (Stripable, bool)
	SelectStripable(id StripableID)

	// SubscribeTopology fires on add, remove and reorder
	SubscribeTopology(fn func()) Subscription
	SubscribeSelection(fn func()) Subscription
}

// noMeter is the level reported by stripables without a meter
var noMeter = math.Inf(-1)

func findByKind(p Provider, kind Kind) (Stripable, bool) {
	var found Stripable
	for _, s := range p.Stripables() {
		if s.Kind() != kind {
			continue
		}
		if found == nil || s.Order() < found.Order() {
			found = s
		}
	}

	return found, found != nil
}

func feedsBus(s Stripable, bus StripableID) bool {
	for _, send := range s.Sends() {
		if send.Target == bus {
			return true
		}
	}

	return false
}

func sendTo(s Stripable, bus StripableID) (Send, bool) {
	for _, send := range s.Sends() {
		if send.Target == bus {
			return send, true
		}
	}

	return Send{}, false
}

type funcSubscription struct {
	close func()
}

func (f *funcSubscription) Close() {
	if f.close != nil {
		f.close()
		f.close = nil
	}
}

// subscriptionSet holds the tokens of one binding and disposes them together
type subscriptionSet []Subscription

func (ss *subscriptionSet) add(s Subscription) {
	if s != nil {
		*ss = append(*ss, s)
	}
}

func (ss *subscriptionSet) closeAll() {
	for _, s := range *ss {
		s.Close()
	}
	*ss = nil
}
