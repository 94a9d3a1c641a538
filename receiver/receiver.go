// Package receiver implements the perfect-link receiver state machine:
// one instance per accepted session, tracking a sliding two-entry
// receive window so a retransmitted DATA packet is re-acknowledged
// without being delivered twice.
package receiver

import (
	"errors"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/eenblam/perfectlink/applog"
	"github.com/eenblam/perfectlink/internal/logging"
	"github.com/eenblam/perfectlink/packet"
	"github.com/eenblam/perfectlink/result"
	"github.com/eenblam/perfectlink/transport"
)

// zeroDeadline means "block without a deadline", per Session.ReadPacket.
var zeroDeadline time.Time

type state int

const (
	listening state = iota
	acknowledging
	crashed
)

var errIllegalState = errors.New("receiver: illegal state transition")

// machine drives one accepted session to completion.
type machine struct {
	id      string
	log     *logrus.Logger
	session transport.Session

	state        state
	seq          uint8
	pend         packet.Packet
	deliveredLog *applog.Log[uint8]
}

func newMachine(sess transport.Session, log *logrus.Logger) *machine {
	return &machine{
		id:           uuid.NewString(),
		log:          log,
		session:      sess,
		state:        listening,
		deliveredLog: applog.New[uint8](),
	}
}

// recv transitions listening -> acknowledging, discarding any arrival
// outside the window {seq, seq-1} until one is in-window.
func (m *machine) recv() result.Result[packet.Packet] {
	if m.state != listening {
		panic(errIllegalState)
	}
	for {
		pkt, err := m.session.ReadPacket(zeroDeadline)
		if err != nil {
			m.state = crashed
			return result.Err[packet.Packet](err)
		}
		if !packet.InWindow(pkt.Seq, m.seq) {
			m.log.WithFields(logrus.Fields{"session": m.id, "got_seq": pkt.Seq, "expected": m.seq}).
				Debug("receiver: discarding out-of-window packet")
			continue
		}
		m.pend = pkt
		m.state = acknowledging
		return result.Ok(pkt)
	}
}

// ack transitions acknowledging -> listening, writing the ACK for the
// pending packet and advancing seq iff the delivery was fresh. It
// returns whether this was a fresh delivery.
func (m *machine) ack() result.Result[bool] {
	if m.state != acknowledging {
		panic(errIllegalState)
	}
	if err := m.session.Write(packet.Ack(m.pend.Seq)); err != nil {
		m.state = crashed
		return result.Err[bool](err)
	}
	fresh := m.pend.Seq == m.seq
	if fresh {
		m.deliveredLog.Push(m.pend.Seq)
		m.seq++
	}
	m.state = listening
	return result.Ok(fresh)
}

// recover transitions crashed -> listening, preserving seq and
// deliveredLog. runSession never calls it: a crashed receiver session
// simply ends (Open Question 4), so this only matters to a caller
// driving a machine directly instead of through ServerHandle.
func (m *machine) recover(sess transport.Session) {
	if m.state != crashed {
		panic(errIllegalState)
	}
	m.session = sess
	m.state = listening
}

// runSession drives m to completion, invoking onDelivered synchronously
// for every fresh delivery, until a fatal transport error ends it.
func runSession(m *machine, onDelivered func(seq, data byte)) {
	defer m.session.Close()
	for {
		r := m.recv()
		if r.IsErr() {
			m.log.WithFields(logrus.Fields{"session": m.id}).WithError(r.UnwrapErr()).
				Info("receiver: session ended")
			return
		}
		pkt := r.Unwrap()

		ar := m.ack()
		if ar.IsErr() {
			m.log.WithFields(logrus.Fields{"session": m.id}).WithError(ar.UnwrapErr()).
				Info("receiver: session ended")
			return
		}
		if ar.Unwrap() {
			onDelivered(pkt.Seq, pkt.Data)
		}
	}
}

// ServerHandle listens for inbound sessions, spawning an independent
// Receiver state machine per accepted connection.
type ServerHandle struct {
	ln  transport.Listener
	log *logrus.Logger
}

// Bind listens on addr via binder, surfacing a BindError to the caller.
func Bind(binder transport.Binder, addr string) (*ServerHandle, error) {
	ln, err := binder.Bind(addr)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "receiver: bind")
	}
	return &ServerHandle{ln: ln, log: logging.New(logrus.InfoLevel)}, nil
}

// Serve accepts sessions forever, spawning a goroutine per session that
// runs its Receiver state machine to completion and invokes onDelivered
// for every freshly delivered payload. It returns only if the listener
// itself fails.
func (h *ServerHandle) Serve(onDelivered func(seq, data byte)) error {
	for {
		sess, err := h.ln.Accept()
		if err != nil {
			return pkgerrors.Wrap(err, "receiver: accept")
		}
		m := newMachine(sess, h.log)
		h.log.WithFields(logrus.Fields{"session": m.id, "remote": sess.RemoteAddr()}).
			Info("receiver: accepted session")
		go runSession(m, onDelivered)
	}
}

// Close stops accepting new sessions.
func (h *ServerHandle) Close() error {
	return h.ln.Close()
}
