// Package packet implements the 2-octet wire format used by the perfect
// link: every message on the wire is exactly [seq, data].
package packet

import "errors"

// Size is the number of bytes every message occupies on the wire.
const Size = 2

// ErrReservedPayload is returned when application code attempts to send a
// DATA packet with payload 0, which is reserved to mean ACK.
var ErrReservedPayload = errors.New("packet: payload 0 is reserved for ACK")

// Packet is a DATA or ACK message. Data == 0 means ACK; any other value
// means DATA carrying that payload octet.
type Packet struct {
	Seq  uint8
	Data uint8
}

// IsAck reports whether p is an ACK packet.
func (p Packet) IsAck() bool {
	return p.Data == 0
}

// NewData constructs a DATA packet, rejecting the reserved payload 0.
func NewData(seq, data uint8) (Packet, error) {
	if data == 0 {
		return Packet{}, ErrReservedPayload
	}
	return Packet{Seq: seq, Data: data}, nil
}

// Ack constructs the ACK packet for the given sequence number.
func Ack(seq uint8) Packet {
	return Packet{Seq: seq, Data: 0}
}

// Marshal encodes p into its 2-byte wire representation.
func Marshal(p Packet) [Size]byte {
	return [Size]byte{p.Seq, p.Data}
}

// Unmarshal decodes a 2-byte wire representation into a Packet. Every
// possible input decodes; there are no error conditions.
func Unmarshal(b [Size]byte) Packet {
	return Packet{Seq: b[0], Data: b[1]}
}

// InWindow reports whether seq is within the receiver's valid window at
// expected: the next-expected sequence number, or the one immediately
// prior (to recognize a retransmission whose ACK was lost). Both
// comparisons wrap modulo 256 via native uint8 arithmetic.
func InWindow(seq, expected uint8) bool {
	return seq == expected || seq == expected-1
}
