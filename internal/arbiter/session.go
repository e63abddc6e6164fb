package arbiter

import (
	"errors"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/sb-labs/coreclaim/pkg/coreerr"
	"github.com/sb-labs/coreclaim/pkg/wire"
)

// sessionState is the client session state machine of spec §4.1.
type sessionState int

const (
	stateFresh sessionState = iota // before Start
	stateOpen
	stateAwaitingGo
	stateHolding
)

// session drives one client connection's protocol state machine. Each
// session runs in its own goroutine and only ever talks to the Scheduler
// through its message-passing API — never by touching scheduler fields
// directly (spec §5).
type session struct {
	conn *wire.Conn
	nc   net.Conn
	sch  *Scheduler
	log  *zap.SugaredLogger

	state session_
}

// session_ is split out only so the zero value reads as "not yet
// connected"; it mirrors sessionState but keeps the held task separate.
type session_ struct {
	state sessionState
	held  *task // non-nil while HOLDING
}

func newSession(nc net.Conn, sch *Scheduler, log *zap.SugaredLogger) *session {
	return &session{
		conn: wire.NewConn(nc, nc),
		nc:   nc,
		sch:  sch,
		log:  log,
	}
}

// serve runs the session until the connection closes or a protocol error
// occurs. It always calls ClientDisconnected and, if HOLDING, releases the
// held task (spec §4.1 "Failure semantics").
func (s *session) serve() {
	s.sch.ClientConnected()
	defer s.teardown()

	for {
		env, err := s.conn.ReadEnvelope()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debugw("session read error", "err", err)
			}
			return
		}
		if err := s.handle(env); err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Infow("protocol error, closing session", "err", err)
			}
			return
		}
	}
}

func (s *session) teardown() {
	if s.state.held != nil {
		s.sch.MarkDone(s.state.held.id)
		s.state.held = nil
	}
	s.sch.ClientDisconnected()
	s.nc.Close()
}

func (s *session) handle(env wire.Envelope) error {
	switch s.state.state {
	case stateFresh:
		if env.Kind != wire.KindStart {
			return coreerr.ErrProtocol
		}
		s.state.state = stateOpen
		return nil

	case stateOpen:
		switch env.Kind {
		case wire.KindAcquire:
			t := s.sch.Register(env.Job)
			if t == nil {
				s.sch.RecordReject()
				s.state.state = stateOpen
				return s.conn.WriteEnvelope(wire.Envelope{Kind: wire.KindReject})
			}
			s.state.state = stateAwaitingGo
			return s.awaitGo(t)
		case wire.KindStatus:
			ans := s.sch.Status()
			return s.conn.WriteEnvelope(wire.Envelope{Kind: wire.KindStatusAnswer, Status: ans})
		case wire.KindStopAccepting:
			s.sch.StopAccepting()
			return nil
		case wire.KindEnd:
			return io.EOF
		default:
			return coreerr.ErrProtocol
		}

	case stateHolding:
		switch env.Kind {
		case wire.KindRelease:
			s.sch.MarkDone(s.state.held.id)
			s.state.held = nil
			s.state.state = stateOpen
			return nil
		default:
			return coreerr.ErrProtocol
		}

	default:
		return coreerr.ErrProtocol
	}
}

// awaitGo blocks the session goroutine until the task is admitted. Since
// task.ready is only ever closed by the scheduler goroutine and never
// otherwise signaled, this cannot race with a concurrent Release/teardown:
// nothing else can move this task out of "waiting" before it is admitted.
//
// A client that disconnects while still AWAITING_GO is not detected here
// (we are not reading); the task is admitted normally when its turn comes
// and is released as soon as the subsequent Go write fails, via teardown.
func (s *session) awaitGo(t *task) error {
	<-t.ready
	s.state.state = stateHolding
	s.state.held = t
	return s.conn.WriteEnvelope(wire.Envelope{Kind: wire.KindGo})
}
