// Package sender implements the perfect-link sender state machine: a
// single outstanding DATA packet at a time, acknowledged or
// retransmitted with doubling timeouts, reconnecting on a fatal
// transport fault without losing its place in the sequence.
package sender

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/eenblam/perfectlink/applog"
	"github.com/eenblam/perfectlink/internal/logging"
	"github.com/eenblam/perfectlink/packet"
	"github.com/eenblam/perfectlink/result"
	"github.com/eenblam/perfectlink/transport"
)

type state int

const (
	disconnected state = iota
	ready
	pending
	crashed
)

// ErrReservedPayload is returned by Send when asked to send the octet 0,
// which the wire format reserves for ACK.
var ErrReservedPayload = packet.ErrReservedPayload

var errIllegalState = errors.New("sender: illegal state transition")

type waitOutcome int

const (
	delivered waitOutcome = iota
	timedOut
)

const initialTimeout = time.Second

// Sender drives one outbound perfect link to addr. Not safe for
// concurrent use: a single Sender is meant to be owned by one goroutine,
// matching the one-outstanding-DATA-at-a-time stop-and-wait discipline.
type Sender struct {
	addr   string
	dialer transport.Dialer
	log    *logrus.Logger

	state   state
	session transport.Session
	seq     uint8
	pend    packet.Packet
	sentLog *applog.Log[uint8]
}

// New returns a Sender bound to addr. It performs no I/O; the first call
// to Send establishes the connection.
func New(addr string, dialer transport.Dialer) *Sender {
	return &Sender{
		addr:    addr,
		dialer:  dialer,
		log:     logging.New(logrus.InfoLevel),
		state:   disconnected,
		sentLog: applog.New[uint8](),
	}
}

// connect transitions disconnected -> ready, dialing a fresh session and
// resetting seq to 0.
func (s *Sender) connect() result.Result[struct{}] {
	if s.state != disconnected {
		panic(errIllegalState)
	}
	sess, err := s.dialer.Connect(s.addr)
	if err != nil {
		return result.Err[struct{}](err)
	}
	s.session = sess
	s.seq = 0
	s.state = ready
	return result.Ok(struct{}{})
}

// send transitions ready -> pending, writing DATA{seq, data}. A write
// failure is fatal for the session.
func (s *Sender) send(data uint8) result.Result[struct{}] {
	if s.state != ready {
		panic(errIllegalState)
	}
	pkt := packet.Packet{Seq: s.seq, Data: data}
	if err := s.session.Write(pkt); err != nil {
		s.state = crashed
		return result.Err[struct{}](err)
	}
	s.pend = pkt
	s.state = pending
	return result.Ok(struct{}{})
}

// waitDeliver transitions pending -> ready, consuming stale or
// non-matching arrivals until the ACK for the pending packet shows up or
// timeout elapses.
func (s *Sender) waitDeliver(timeout time.Duration) result.Result[waitOutcome] {
	if s.state != pending {
		panic(errIllegalState)
	}
	deadline := time.Now().Add(timeout)
	for {
		pkt, err := s.session.ReadPacket(deadline)
		if err != nil {
			if transport.IsTimeout(err) {
				s.state = ready
				return result.Ok(timedOut)
			}
			s.state = crashed
			return result.Err[waitOutcome](err)
		}
		if pkt.IsAck() && pkt.Seq == s.pend.Seq {
			s.sentLog.Push(s.seq)
			s.seq++
			s.state = ready
			return result.Ok(delivered)
		}
		s.log.WithFields(logrus.Fields{"got_seq": pkt.Seq, "want_seq": s.pend.Seq}).
			Debug("sender: discarding non-matching arrival")
	}
}

// recover transitions crashed -> ready, handing the machine a freshly
// dialed session while preserving seq and sentLog. The dropped session
// is closed first: a fatal read/write error doesn't always mean the
// underlying socket already tore itself down.
func (s *Sender) recover(sess transport.Session) {
	if s.state != crashed {
		panic(errIllegalState)
	}
	if s.session != nil {
		if err := s.session.Close(); err != nil {
			s.log.WithError(err).Debug("sender: error closing dropped session")
		}
	}
	s.session = sess
	s.state = ready
}

func backoffPolicy() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	return bo
}

// ensureConnected brings the machine to ready, dialing (and redialing,
// with unbounded exponential backoff) from disconnected or crashed. It
// is a no-op if already ready or pending.
func (s *Sender) ensureConnected() error {
	switch s.state {
	case disconnected:
		return backoff.Retry(func() error {
			r := s.connect()
			if r.IsErr() {
				s.log.WithError(r.UnwrapErr()).Warn("sender: connect failed, retrying")
				return r.UnwrapErr()
			}
			return nil
		}, backoffPolicy())
	case crashed:
		return backoff.Retry(func() error {
			sess, err := s.dialer.Connect(s.addr)
			if err != nil {
				s.log.WithError(err).Warn("sender: reconnect failed, retrying")
				return err
			}
			s.recover(sess)
			return nil
		}, backoffPolicy())
	default:
		return nil
	}
}

// Send blocks until data is delivered to the remote Receiver, dialing,
// retransmitting, and reconnecting as needed. The only error it can
// return is ErrReservedPayload.
func (s *Sender) Send(data byte) error {
	if data == 0 {
		return ErrReservedPayload
	}
	if err := s.ensureConnected(); err != nil {
		return pkgerrors.Wrap(err, "sender: connect")
	}

	timeout := initialTimeout
	for {
		if r := s.send(data); r.IsErr() {
			s.log.WithError(r.UnwrapErr()).Warn("sender: send failed, reconnecting")
			if err := s.ensureConnected(); err != nil {
				return pkgerrors.Wrap(err, "sender: reconnect after send failure")
			}
			timeout = initialTimeout
			continue
		}

		wr := s.waitDeliver(timeout)
		if wr.IsErr() {
			s.log.WithError(wr.UnwrapErr()).Warn("sender: wait failed, reconnecting")
			if err := s.ensureConnected(); err != nil {
				return pkgerrors.Wrap(err, "sender: reconnect after wait failure")
			}
			timeout = initialTimeout
			continue
		}

		switch wr.Unwrap() {
		case delivered:
			return nil
		case timedOut:
			timeout *= 2
			s.log.WithFields(logrus.Fields{"seq": s.pend.Seq, "next_timeout": timeout}).
				Debug("sender: timed out waiting for ack, retransmitting")
		}
	}
}
