package surfsync

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type sentMessage struct {
	to  string
	msg Message
}

// recordingTransport keeps everything sent, in order
type recordingTransport struct {
	mu   sync.Mutex
	sent []sentMessage
}

var _ Transport = (*recordingTransport)(nil)

func (t *recordingTransport) Send(address string, msg Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sent = append(t.sent, sentMessage{to: address, msg: msg})
}

func (t *recordingTransport) to(address string) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Message
	for _, s := range t.sent {
		if s.to == address {
			out = append(out, s.msg)
		}
	}

	return out
}

func (t *recordingTransport) find(address, path string) []Message {
	var out []Message
	for _, m := range t.to(address) {
		if m.Address == path {
			out = append(out, m)
		}
	}

	return out
}

// last returns the most recent message on path, optionally for one slot
// given as the leading argument
func (t *recordingTransport) last(address, path string, ssid ...int) (Message, bool) {
	msgs := t.find(address, path)
	for i := len(msgs) - 1; i >= 0; i-- {
		if len(ssid) == 0 {
			return msgs[i], true
		}
		if len(msgs[i].Args) > 0 && msgs[i].Args[0] == int32(ssid[0]) {
			return msgs[i], true
		}
	}

	return Message{}, false
}

func (t *recordingTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.sent)
}

func (t *recordingTransport) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sent = nil
}

type testEngine struct {
	*Engine
	provider  *MemoryProvider
	transport *recordingTransport
	logs      *observer.ObservedLogs
}

func newTestEngine(t *testing.T, defaults SurfaceConfig) *testEngine {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core).Sugar()

	provider := NewMemoryProvider(logger)
	transport := &recordingTransport{}

	e, err := NewEngine(logger, provider, transport, EngineConfig{Defaults: defaults})
	require.NoError(t, err)
	require.NoError(t, e.Start())
	t.Cleanup(e.Stop)

	return &testEngine{Engine: e, provider: provider, transport: transport, logs: logs}
}

// send handles one message and runs everything it queued
func (te *testEngine) send(source, address string, args ...any) Outcome {
	outcome := te.Handle(source, NewMessage(address, args...))
	te.Flush()

	return outcome
}

// settle applies pending provider notifications and topology changes
func (te *testEngine) settle() {
	te.Flush()
	te.Tick()
	te.Flush()
}

func (te *testEngine) addTracks(n int) []StripableID {
	ids := make([]StripableID, n)
	for i := range ids {
		ids[i] = te.provider.Add(StripableSpec{
			ID:   StripableID(fmt.Sprintf("t%d", i+1)),
			Name: fmt.Sprintf("Track %d", i+1),
			Kind: KindAudioTrack,
		})
	}

	return ids
}

func (te *testEngine) control(id StripableID, name ControlName) Control {
	strip, ok := te.provider.Stripable(id)
	if !ok {
		return nil
	}

	return strip.Control(name)
}

func (te *testEngine) bound(address string) []StripableID {
	s, ok := te.Registry().Lookup(address)
	if !ok {
		return nil
	}

	var ids []StripableID
	for slot := 1; ; slot++ {
		id, ok := s.BoundStrip(slot)
		if !ok {
			if _, exists := s.observers[slot]; exists {
				ids = append(ids, "")
				continue
			}
			return ids
		}
		ids = append(ids, id)
	}
}

func stripFeedbackConfig(bankSize int) SurfaceConfig {
	cfg := DefaultSurfaceConfig()
	cfg.BankSize = bankSize
	cfg.Feedback.StripButtons = true
	cfg.Feedback.StripValues = true

	return cfg
}

func (te *testEngine) countLogs(message string) int {
	return te.logs.FilterMessage(message).Len()
}
