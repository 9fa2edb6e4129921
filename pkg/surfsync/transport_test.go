package surfsync

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func loopback(t *testing.T, addressOnly bool) (*UDPTransport, string) {
	t.Helper()

	tr, err := NewUDPTransport(zap.NewNop().Sugar(), 0, 9000, addressOnly)
	require.NoError(t, err)
	go tr.Listen()
	t.Cleanup(func() { _ = tr.Close() })

	port := tr.conn.LocalAddr().(*net.UDPAddr).Port

	return tr, net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

func receive(t *testing.T, tr *UDPTransport) Inbound {
	t.Helper()

	select {
	case in := <-tr.Inbound():
		return in
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no message received")
	}

	return Inbound{}
}

func TestUDPTransportRoundTrip(t *testing.T) {
	tr, self := loopback(t, false)

	tr.Send(self, NewMessage("/strip/name", int32(2), "Kick", float32(0.5)))

	in := receive(t, tr)
	assert.Equal(t, self, in.Source)
	assert.Equal(t, "/strip/name", in.Msg.Address)
	assert.Equal(t, []any{int32(2), "Kick", float32(0.5)}, in.Msg.Args)
}

func TestUDPTransportAddressOnlyKey(t *testing.T) {
	tr, self := loopback(t, true)

	tr.Send(self, NewMessage("/refresh"))

	in := receive(t, tr)
	assert.Equal(t, "127.0.0.1:9000", in.Source, "replies go to the configured port")
}

func TestUDPTransportClosesInbound(t *testing.T) {
	tr, _ := loopback(t, false)
	require.NoError(t, tr.Close())

	select {
	case _, ok := <-tr.Inbound():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "inbound channel left open")
	}
}
