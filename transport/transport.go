// Package transport defines the boundary between the perfect-link state
// machines and the underlying byte-stream connection: connect/bind/accept,
// reads with a deadline, atomic 2-byte writes, and a closed error
// taxonomy that lets the sender state machine distinguish a recoverable
// Timeout from every other, fatal-for-the-session failure.
package transport

import (
	"fmt"
	"time"

	"github.com/eenblam/perfectlink/packet"
)

// Kind enumerates the closed set of transport failure categories.
type Kind int

const (
	_ Kind = iota
	Timeout
	SendError
	RecvError
	DestinationUnreachable
	BindError
	AcceptError
	SetTimeoutFailed
)

func (k Kind) String() string {
	switch k {
	case Timeout:
		return "Timeout"
	case SendError:
		return "SendError"
	case RecvError:
		return "RecvError"
	case DestinationUnreachable:
		return "DestinationUnreachable"
	case BindError:
		return "BindError"
	case AcceptError:
		return "AcceptError"
	case SetTimeoutFailed:
		return "SetTimeoutFailed"
	default:
		return "Unknown"
	}
}

// Error is the single closed error type transport operations return. Kind
// is always one of the enumerated constants above, so callers can switch
// on it directly or use the IsTimeout helper below.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("transport: %s: %s", e.Op, e.Kind)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsTimeout reports whether err is a transport.Error of kind Timeout.
// Timeout must always be distinguishable from every other failure: the
// sender's retransmission policy depends on it.
func IsTimeout(err error) bool {
	te, ok := err.(*Error)
	return ok && te.Kind == Timeout
}

// Session is a single, already-established point-to-point byte-stream
// connection carrying perfect-link packets.
type Session interface {
	// Write sends pkt, writing both bytes atomically from the caller's
	// perspective. A short write is reported as a SendError.
	Write(pkt packet.Packet) error
	// ReadPacket blocks for up to deadline (or indefinitely, if deadline
	// is the zero time.Time) and returns the next packet. It returns a
	// Timeout-kind *Error on deadline expiry and a RecvError-kind *Error
	// on any other socket fault, EOF, or short read.
	ReadPacket(deadline time.Time) (packet.Packet, error)
	// SetReadDeadline sets the read deadline on the underlying
	// connection, mirroring net.Conn.SetReadDeadline. ReadPacket replaces
	// it with its own deadline argument on every call.
	SetReadDeadline(d time.Time) error
	// RemoteAddr returns a human-readable peer address, for logging.
	RemoteAddr() string
	// Close releases the underlying connection.
	Close() error
}

// Dialer establishes outbound Sessions.
type Dialer interface {
	Connect(addr string) (Session, error)
}

// Listener accepts inbound Sessions.
type Listener interface {
	Accept() (Session, error)
	Close() error
}

// Binder creates a Listener bound to a local address.
type Binder interface {
	Bind(addr string) (Listener, error)
}
