package surfsync

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"
)

// Transport sends addressed messages to a surface. Sends are fire-and-forget
// and safe to call from any goroutine.
type Transport interface {
	Send(address string, msg Message)
}

// Inbound is one decoded message together with the surface key of its sender
type Inbound struct {
	Source string
	Msg    Message
}

const maxPacketSize = 65507

// UDPTransport speaks OSC over a single UDP socket
type UDPTransport struct {
	logger *zap.SugaredLogger

	conn        *net.UDPConn
	remotePort  int
	addressOnly bool

	sendLock sync.Mutex
	peers    map[string]*net.UDPAddr

	inbound chan Inbound
}

func NewUDPTransport(logger *zap.SugaredLogger, listenPort int, remotePort int, addressOnly bool) (*UDPTransport, error) {
	logger = logger.Named("transport")

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: listenPort})
	if err != nil {
		logger.Errorw("Failed to open UDP socket", "port", listenPort, "error", err)
		return nil, fmt.Errorf("listen on udp port %d: %w", listenPort, err)
	}

	t := &UDPTransport{
		logger:      logger,
		conn:        conn,
		remotePort:  remotePort,
		addressOnly: addressOnly,
		peers:       make(map[string]*net.UDPAddr),
		inbound:     make(chan Inbound, 64),
	}

	logger.Debugw("Created UDP transport instance", "listen", conn.LocalAddr().String())

	return t, nil
}

// Inbound returns the channel carrying decoded messages. It is closed when
// the listen loop exits.
func (t *UDPTransport) Inbound() <-chan Inbound {
	return t.inbound
}

// Listen reads packets until the socket is closed
func (t *UDPTransport) Listen() {
	defer close(t.inbound)

	buf := make([]byte, maxPacketSize)

	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				t.logger.Debug("Socket closed, leaving listen loop")
				return
			}

			t.logger.Warnw("Failed to read packet", "error", err)
			continue
		}

		packet, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			t.logger.Debugw("Dropping malformed packet", "from", from.String(), "error", err)
			continue
		}

		source := t.surfaceKey(from)
		for _, msg := range flattenPacket(packet) {
			t.inbound <- Inbound{Source: source, Msg: msg}
		}
	}
}

// surfaceKey identifies the sending surface. With address-only keying the
// source port is replaced by the configured reply port.
func (t *UDPTransport) surfaceKey(from *net.UDPAddr) string {
	if t.addressOnly {
		return net.JoinHostPort(from.IP.String(), strconv.Itoa(t.remotePort))
	}

	return from.String()
}

func (t *UDPTransport) Send(address string, msg Message) {
	data, err := msg.packet().MarshalBinary()
	if err != nil {
		t.logger.Warnw("Failed to encode message", "address", msg.Address, "error", err)
		return
	}

	t.sendLock.Lock()
	defer t.sendLock.Unlock()

	peer, ok := t.peers[address]
	if !ok {
		peer, err = net.ResolveUDPAddr("udp", address)
		if err != nil {
			t.logger.Warnw("Failed to resolve surface address", "address", address, "error", err)
			return
		}
		t.peers[address] = peer
	}

	if _, err := t.conn.WriteToUDP(data, peer); err != nil {
		t.logger.Debugw("Failed to send message", "address", address, "message", msg.Address, "error", err)
	}
}

func (t *UDPTransport) Close() error {
	if err := t.conn.Close(); err != nil {
		t.logger.Warnw("Failed to close UDP socket", "error", err)
		return fmt.Errorf("close udp socket: %w", err)
	}

	t.logger.Debug("Released UDP transport instance")

	return nil
}

func flattenPacket(packet osc.Packet) []Message {
	switch p := packet.(type) {
	case *osc.Message:
		return []Message{{Address: p.Address, Args: p.Arguments}}
	case *osc.Bundle:
		var msgs []Message
		for _, m := range p.Messages {
			msgs = append(msgs, Message{Address: m.Address, Args: m.Arguments})
		}
		for _, b := range p.Bundles {
			msgs = append(msgs, flattenPacket(b)...)
		}
		return msgs
	}

	return nil
}
