package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/eenblam/perfectlink/packet"
)

// MemoryNetwork is an in-process, net.Pipe-backed rendezvous between
// Dialers and Binders sharing an address space. It exists so the
// sender/receiver invariants (ACK loss, session death, reconnect) can be
// exercised deterministically in tests, without real sockets or a
// lossy-UDP-style proxy in front of a real listener. Read deadlines are
// still real wall-clock deadlines.
type MemoryNetwork struct {
	mu        sync.Mutex
	listeners map[string]*memListener
	active    map[string]net.Conn // most recent dialer-side conn per addr, for Break
}

// NewMemoryNetwork returns an empty address space.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		listeners: map[string]*memListener{},
		active:    map[string]net.Conn{},
	}
}

// Break simulates the underlying transport session for addr dying (a
// fatal socket fault on both ends): the most recently dialed connection
// to addr is closed out from under both the sender and the receiver.
func (n *MemoryNetwork) Break(addr string) {
	n.mu.Lock()
	conn := n.active[addr]
	n.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// memSessionConfig customizes the behavior of one side of a memory pipe:
// dropping writes (to simulate packet loss) and/or dying after a fixed
// number of writes (to simulate a session crash independent of Break).
type memSessionConfig struct {
	dropWrite        func(packet.Packet) bool
	closeAfterWrites int
}

// MemSessionOption configures a Dialer or Binder returned by
// MemoryNetwork.NewDialer/NewBinder.
type MemSessionOption func(*memSessionConfig)

// WithDropWrite drops (silently discards, as if lost in flight) every
// write for which pred returns true. It only affects writes made by
// sessions created from the Dialer/Binder it's attached to, i.e. it is
// directional: attach it to the Dialer to drop DATA, or to the Binder to
// drop ACK.
func WithDropWrite(pred func(packet.Packet) bool) MemSessionOption {
	return func(c *memSessionConfig) { c.dropWrite = pred }
}

// WithCloseAfterWrites lets the session complete n writes; the next write
// attempt closes the underlying pipe and fails with a SendError,
// simulating a crash independent of an explicit MemoryNetwork.Break call.
func WithCloseAfterWrites(n int) MemSessionOption {
	return func(c *memSessionConfig) { c.closeAfterWrites = n }
}

func buildConfig(opts []MemSessionOption) memSessionConfig {
	var cfg memSessionConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

type memListener struct {
	addr     string
	acceptCh chan net.Conn
	cfg      memSessionConfig
}

func (l *memListener) Accept() (Session, error) {
	conn, ok := <-l.acceptCh
	if !ok {
		return nil, newErr(AcceptError, "accept", errors.New("listener closed"))
	}
	return newMemSession(conn, l.cfg), nil
}

func (l *memListener) Close() error {
	close(l.acceptCh)
	return nil
}

type memBinder struct {
	network *MemoryNetwork
	cfg     memSessionConfig
}

// NewBinder returns a Binder whose accepted sessions apply opts to every
// write they make (e.g. to drop outgoing ACKs and simulate ACK loss).
func (n *MemoryNetwork) NewBinder(opts ...MemSessionOption) Binder {
	return &memBinder{network: n, cfg: buildConfig(opts)}
}

func (b *memBinder) Bind(addr string) (Listener, error) {
	b.network.mu.Lock()
	defer b.network.mu.Unlock()
	if _, exists := b.network.listeners[addr]; exists {
		return nil, newErr(BindError, "bind", fmt.Errorf("address %s already in use", addr))
	}
	l := &memListener{addr: addr, acceptCh: make(chan net.Conn), cfg: b.cfg}
	b.network.listeners[addr] = l
	return l, nil
}

type memDialer struct {
	network *MemoryNetwork
	cfg     memSessionConfig
}

// NewDialer returns a Dialer whose dialed sessions apply opts to every
// write they make (e.g. to drop outgoing DATA and simulate DATA loss).
func (n *MemoryNetwork) NewDialer(opts ...MemSessionOption) Dialer {
	return &memDialer{network: n, cfg: buildConfig(opts)}
}

func (d *memDialer) Connect(addr string) (Session, error) {
	d.network.mu.Lock()
	l, ok := d.network.listeners[addr]
	d.network.mu.Unlock()
	if !ok {
		return nil, newErr(DestinationUnreachable, "connect", fmt.Errorf("no listener bound at %s", addr))
	}

	clientConn, serverConn := net.Pipe()
	d.network.mu.Lock()
	d.network.active[addr] = clientConn
	d.network.mu.Unlock()

	l.acceptCh <- serverConn
	return newMemSession(clientConn, d.cfg), nil
}

// memSession adapts a net.Conn (one end of a net.Pipe) to Session, adding
// the optional write-drop and close-after-N-writes behaviors.
type memSession struct {
	conn   net.Conn
	cfg    memSessionConfig
	writes int
}

func newMemSession(conn net.Conn, cfg memSessionConfig) *memSession {
	return &memSession{conn: conn, cfg: cfg}
}

func (s *memSession) Write(pkt packet.Packet) error {
	s.writes++
	if s.cfg.closeAfterWrites > 0 && s.writes > s.cfg.closeAfterWrites {
		s.conn.Close()
		return newErr(SendError, "write", errors.New("session closed"))
	}
	if s.cfg.dropWrite != nil && s.cfg.dropWrite(pkt) {
		return nil
	}
	buf := packet.Marshal(pkt)
	n, err := s.conn.Write(buf[:])
	if err != nil {
		return newErr(SendError, "write", err)
	}
	if n != packet.Size {
		return newErr(SendError, "write", io.ErrShortWrite)
	}
	return nil
}

func (s *memSession) ReadPacket(deadline time.Time) (packet.Packet, error) {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return packet.Packet{}, newErr(SetTimeoutFailed, "read", err)
	}
	var buf [packet.Size]byte
	if _, err := io.ReadFull(s.conn, buf[:]); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return packet.Packet{}, newErr(Timeout, "read", err)
		}
		return packet.Packet{}, newErr(RecvError, "read", err)
	}
	return packet.Unmarshal(buf), nil
}

func (s *memSession) SetReadDeadline(d time.Time) error {
	if err := s.conn.SetReadDeadline(d); err != nil {
		return newErr(SetTimeoutFailed, "set-read-deadline", err)
	}
	return nil
}

func (s *memSession) RemoteAddr() string {
	return "memory-pipe"
}

func (s *memSession) Close() error {
	return s.conn.Close()
}
