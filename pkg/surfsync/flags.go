package surfsync

// StripTypes selects which stripables a surface shows, plus the modifiers
// that change how the list is built. Converted to and from the 12-bit wire
// layout only when talking to a remote.
type StripTypes struct {
	AudioTracks   bool
	MidiTracks    bool
	AudioBuses    bool
	MidiBuses     bool
	VCAs          bool
	Master        bool
	Monitor       bool
	FoldbackBuses bool
	SelectedOnly  bool
	Hidden        bool
	UseGroup      bool
	GlobalExpand  bool
}

// FeedbackFlags selects which categories of unsolicited feedback a surface
// receives. Converted to and from the 15-bit wire layout.
type FeedbackFlags struct {
	StripButtons    bool
	StripValues     bool
	SsidInPath      bool
	Heartbeat       bool
	MasterMonitor   bool
	BarBeat         bool
	Timecode        bool
	MeterLevel      bool
	MeterLEDs       bool
	SignalPresent   bool
	PlayheadSamples bool
	PlayheadMinSec  bool
	PlayheadGUI     bool
	SelectFeedback  bool
	ReplyCompat     bool
}

// GainMode selects how gain is reported and accepted
type GainMode int

const (
	GainDB GainMode = iota
	GainFader
	GainBoth
)

const (
	stripTypeBitCount = 12
	feedbackBitCount  = 15

	maxStripTypeBits = 1<<stripTypeBitCount - 1
	maxFeedbackBits  = 1<<feedbackBitCount - 1

	// DefaultStripTypes shows tracks, buses, VCAs and foldback buses
	DefaultStripTypes = 159
)

func bitsToBools(bits int, fields ...*bool) {
	for i, f := range fields {
		*f = bits&(1<<i) != 0
	}
}

func boolsToBits(fields ...bool) int {
	bits := 0
	for i, f := range fields {
		if f {
			bits |= 1 << i
		}
	}

	return bits
}

// StripTypesFromBits decodes the wire layout, ignoring bits above bit 11
func StripTypesFromBits(bits int) StripTypes {
	var st StripTypes
	bitsToBools(bits&maxStripTypeBits,
		&st.AudioTracks, &st.MidiTracks, &st.AudioBuses, &st.MidiBuses,
		&st.VCAs, &st.Master, &st.Monitor, &st.FoldbackBuses,
		&st.SelectedOnly, &st.Hidden, &st.UseGroup, &st.GlobalExpand)

	return st
}

func (st StripTypes) Bits() int {
	return boolsToBits(
		st.AudioTracks, st.MidiTracks, st.AudioBuses, st.MidiBuses,
		st.VCAs, st.Master, st.Monitor, st.FoldbackBuses,
		st.SelectedOnly, st.Hidden, st.UseGroup, st.GlobalExpand)
}

// includesKind reports whether the per-kind filter admits kind. Master and
// monitor are appended separately and are never admitted here.
func (st StripTypes) includesKind(kind Kind) bool {
	switch kind {
	case KindAudioTrack:
		return st.AudioTracks
	case KindMidiTrack:
		return st.MidiTracks
	case KindAudioBus:
		return st.AudioBuses
	case KindMidiBus:
		return st.MidiBuses
	case KindVCA:
		return st.VCAs
	case KindFoldbackBus:
		return st.FoldbackBuses
	}

	return false
}

// FeedbackFromBits decodes the wire layout, ignoring bits above bit 14
func FeedbackFromBits(bits int) FeedbackFlags {
	var fb FeedbackFlags
	bitsToBools(bits&maxFeedbackBits,
		&fb.StripButtons, &fb.StripValues, &fb.SsidInPath, &fb.Heartbeat,
		&fb.MasterMonitor, &fb.BarBeat, &fb.Timecode, &fb.MeterLevel,
		&fb.MeterLEDs, &fb.SignalPresent, &fb.PlayheadSamples, &fb.PlayheadMinSec,
		&fb.PlayheadGUI, &fb.SelectFeedback, &fb.ReplyCompat)

	return fb
}

func (fb FeedbackFlags) Bits() int {
	return boolsToBits(
		fb.StripButtons, fb.StripValues, fb.SsidInPath, fb.Heartbeat,
		fb.MasterMonitor, fb.BarBeat, fb.Timecode, fb.MeterLevel,
		fb.MeterLEDs, fb.SignalPresent, fb.PlayheadSamples, fb.PlayheadMinSec,
		fb.PlayheadGUI, fb.SelectFeedback, fb.ReplyCompat)
}

// stripFeedback reports whether per-strip observers are needed at all
func (fb FeedbackFlags) stripFeedback() bool {
	return fb.StripButtons || fb.StripValues
}

func (fb FeedbackFlags) meters() bool {
	return fb.MeterLevel || fb.MeterLEDs || fb.SignalPresent
}

// SurfaceConfig is the reconfigurable part of a surface
type SurfaceConfig struct {
	BankSize       int
	StripTypes     StripTypes
	Feedback       FeedbackFlags
	GainMode       GainMode
	SendPageSize   int
	PluginPageSize int
}

// SurfaceConfigFromBits builds a clamped config from wire values
func SurfaceConfigFromBits(bankSize, stripTypes, feedback, gainMode, sendPageSize, pluginPageSize int) SurfaceConfig {
	return SurfaceConfig{
		BankSize:       bankSize,
		StripTypes:     StripTypesFromBits(stripTypes),
		Feedback:       FeedbackFromBits(feedback),
		GainMode:       GainMode(gainMode),
		SendPageSize:   sendPageSize,
		PluginPageSize: pluginPageSize,
	}.clamped()
}

// DefaultSurfaceConfig is used for surfaces created on first contact
func DefaultSurfaceConfig() SurfaceConfig {
	return SurfaceConfigFromBits(0, DefaultStripTypes, 0, int(GainDB), 0, 0)
}

func (c SurfaceConfig) clamped() SurfaceConfig {
	c.BankSize = max(c.BankSize, 0)
	c.SendPageSize = max(c.SendPageSize, 0)
	c.PluginPageSize = max(c.PluginPageSize, 0)
	c.GainMode = GainMode(min(max(int(c.GainMode), int(GainDB)), int(GainBoth)))

	return c
}
