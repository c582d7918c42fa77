package udp

import (
	"fmt"
	"net"
	"sync"

	applog "beatpulse/internal/log"
)

// UDPSender is a dial-once, write-many UDP socket: every Send writes the
// given packet to the address given at construction, with no per-write
// framing of its own. The osc transport builds its wire format on top of
// it.
type UDPSender struct {
	conn       *net.UDPConn
	targetAddr *net.UDPAddr
	mu         sync.Mutex // protects conn and closed during Close/Send races
	closed     bool
}

// NewUDPSender dials targetAddress ("host:port", e.g. "127.0.0.1:9000")
// once and reuses the connection for every subsequent Send.
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("udp: failed to resolve target address %q: %w", targetAddress, err)
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("udp: failed to dial target %q: %w", targetAddress, err)
	}

	applog.Infof("udp: connection established to %s", conn.RemoteAddr().String())

	return &UDPSender{
		conn:       conn,
		targetAddr: udpAddr,
	}, nil
}

// Send writes data as a single UDP packet. Safe for concurrent use,
// though the osc publisher calls it sequentially.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("udp: sender is closed")
	}
	_, err := s.conn.Write(data)
	s.mu.Unlock()

	if err != nil {
		applog.Errorf("udp: error sending packet: %v", err)
		return fmt.Errorf("udp: failed to send packet: %w", err)
	}
	return nil
}

// Close closes the underlying UDP connection. Safe to call more than
// once.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.conn == nil {
		return nil
	}
	applog.Infof("udp: closing connection to %s", s.conn.RemoteAddr().String())
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		applog.Errorf("udp: error closing connection: %v", err)
		return fmt.Errorf("udp: failed to close connection: %w", err)
	}
	return nil
}
