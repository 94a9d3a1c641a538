package transport

import (
	"io"
	"net"
	"time"

	"github.com/eenblam/perfectlink/packet"
)

// tcpDialer implements Dialer over net.Dial("tcp", ...).
type tcpDialer struct{}

// NewTCPDialer returns a Dialer that establishes real TCP connections.
func NewTCPDialer() Dialer {
	return tcpDialer{}
}

func (tcpDialer) Connect(addr string) (Session, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, newErr(DestinationUnreachable, "connect", err)
	}
	return &tcpSession{conn: conn}, nil
}

// tcpBinder implements Binder over net.Listen("tcp", ...).
type tcpBinder struct{}

// NewTCPBinder returns a Binder that listens on real TCP sockets.
func NewTCPBinder() Binder {
	return tcpBinder{}
}

func (tcpBinder) Bind(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, newErr(BindError, "bind", err)
	}
	return &tcpListener{ln: ln}, nil
}

type tcpListener struct {
	ln net.Listener
}

func (l *tcpListener) Accept() (Session, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, newErr(AcceptError, "accept", err)
	}
	return &tcpSession{conn: conn}, nil
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}

type tcpSession struct {
	conn net.Conn
}

func (s *tcpSession) Write(pkt packet.Packet) error {
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

func (s *tcpSession) ReadPacket(deadline time.Time) (packet.Packet, error) {
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

func (s *tcpSession) SetReadDeadline(d time.Time) error {
	if err := s.conn.SetReadDeadline(d); err != nil {
		return newErr(SetTimeoutFailed, "set-read-deadline", err)
	}
	return nil
}

func (s *tcpSession) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

func (s *tcpSession) Close() error {
	return s.conn.Close()
}
