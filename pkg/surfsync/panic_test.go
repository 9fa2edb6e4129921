package surfsync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// brokenProvider panics on listing once armed
type brokenProvider struct {
	*MemoryProvider
	armed bool
}

func (p *brokenProvider) Stripables() []Stripable {
	if p.armed {
		panic("provider lost its session")
	}

	return p.MemoryProvider.Stripables()
}

func TestPanicLeavesMessageInFlight(t *testing.T) {
	provider := &brokenProvider{MemoryProvider: NewMemoryProvider(zap.NewNop().Sugar())}
	e, err := NewEngine(zap.NewNop().Sugar(), provider, &recordingTransport{}, EngineConfig{})
	require.NoError(t, err)
	require.NoError(t, e.Start())
	t.Cleanup(e.Stop)

	assert.Equal(t, Queried, e.Handle(surfaceA, NewMessage("/strip/list")))
	_, ok := e.InFlight()
	assert.False(t, ok, "cleared after a message is routed")

	provider.armed = true
	t.Cleanup(func() { provider.armed = false })
	assert.Panics(t, func() { e.Handle(surfaceA, NewMessage("/refresh")) })

	in, ok := e.InFlight()
	require.True(t, ok)
	assert.Equal(t, surfaceA, in.Source)
	assert.Equal(t, "/refresh", in.Msg.Address)
}

func TestWriteCrashlog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	at := time.Date(2024, 3, 9, 21, 4, 5, 0, time.UTC)

	path, err := writeCrashlog(dir, crashReport{
		at:       at,
		reason:   "index out of range",
		version:  "v1.2.0",
		provider: providerMemory,
		listen:   3819,
		ticks:    42,
		inFlight: &Inbound{Source: surfaceA, Msg: NewMessage("/strip/fader", int32(3), float32(0.5))},
		surfaces: "Surfaces table",
		stack:    []byte("goroutine 1 [running]:\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "surfsync-crash-2024.03.09-21.04.05.log"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	for _, want := range []string{
		"Version: v1.2.0",
		"Provider: memory",
		"Listen port: 3819",
		"Ticks: 42",
		"Panic: index out of range",
		"/strip/fader ,if 3 0.5 from " + surfaceA,
		"Surfaces table",
		"goroutine 1 [running]:",
	} {
		assert.Contains(t, string(content), want)
	}
}

func TestCrashReportWithoutMessage(t *testing.T) {
	report := crashReport{at: time.Now(), reason: "boom"}.render()

	assert.Contains(t, report, "none, the panic came from a tick or a provider notification")
}
