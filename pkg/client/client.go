// Package client implements the arbiter client side of the wire protocol
// (spec §4.1, §6): connecting to a running daemon, spawning a detached one
// if none answers, and round-tripping framed messages. The request
// construction/response decoding shape mirrors the teacher's
// executeJobOnWorker (build request, apply a deadline, send, decode,
// return), adapted from one-shot HTTP calls to a long-lived framed session.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"time"

	"github.com/sb-labs/coreclaim/pkg/coreerr"
	"github.com/sb-labs/coreclaim/pkg/protocol"
	"github.com/sb-labs/coreclaim/pkg/wire"
)

// DialTimeout bounds a single connection attempt before falling back to
// spawning a daemon.
const DialTimeout = 2 * time.Second

// SpawnWait is how long Dial waits, after spawning a daemon, for it to start
// accepting connections.
const SpawnWait = 5 * time.Second

// Session is an open client session: Start has been sent, and the caller
// drives Acquire/Status/StopAccepting/Release/End explicitly.
type Session struct {
	conn *wire.Conn
	nc   net.Conn
}

// Dial connects to an arbiter on port, spawning one via daemonArgv (the argv
// of "coreclaimd serve ..." or equivalent) if the port is not reachable.
// daemonArgv may be nil to disable auto-spawn.
func Dial(ctx context.Context, port int, daemonArgv []string) (*Session, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	nc, err := tryDial(ctx, addr)
	if err != nil {
		if daemonArgv == nil {
			return nil, fmt.Errorf("%w: %s", coreerr.ErrDaemonUnreachable, addr)
		}
		if serr := spawnDetached(daemonArgv); serr != nil {
			return nil, fmt.Errorf("%w: spawn failed: %v", coreerr.ErrDaemonUnreachable, serr)
		}
		nc, err = waitForDial(ctx, addr, SpawnWait)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", coreerr.ErrDaemonUnreachable, addr)
		}
	}

	s := &Session{conn: wire.NewConn(nc, nc), nc: nc}
	if err := s.conn.WriteEnvelope(wire.Envelope{Kind: wire.KindStart}); err != nil {
		nc.Close()
		return nil, err
	}
	return s, nil
}

func tryDial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: DialTimeout}
	return d.DialContext(ctx, "tcp", addr)
}

func waitForDial(ctx context.Context, addr string, wait time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		nc, err := tryDial(ctx, addr)
		if err == nil {
			return nc, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil, errors.New("timed out waiting for daemon to accept connections")
}

// spawnDetached forks argv[0] with argv[1:], detached from this process's
// controlling terminal, matching §4.1's "fork-and-detach a fresh daemon".
// The new process changes its own working directory and closes its own
// stdio; we only need to not wait on it and not leak our own fds into it
// beyond what exec.Cmd already isolates.
func spawnDetached(argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty daemon argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = detachAttr()
	if err := cmd.Start(); err != nil {
		return err
	}
	// We deliberately do not Wait(); the daemon outlives this client.
	go cmd.Process.Release()
	return nil
}

// Acquire sends an Acquire and blocks until the server answers Go or
// Reject. A non-nil error other than ErrRejected means the connection
// failed outright.
func (s *Session) Acquire(req protocol.JobRequest) error {
	if err := s.conn.WriteEnvelope(wire.Envelope{Kind: wire.KindAcquire, Job: req}); err != nil {
		return err
	}
	env, err := s.conn.ReadEnvelope()
	if err != nil {
		return err
	}
	switch env.Kind {
	case wire.KindGo:
		return nil
	case wire.KindReject:
		return coreerr.ErrRejected
	default:
		return fmt.Errorf("%w: expected Go/Reject, got %s", coreerr.ErrProtocol, env.Kind)
	}
}

// Release tells the server to free whatever this session is holding.
func (s *Session) Release() error {
	return s.conn.WriteEnvelope(wire.Envelope{Kind: wire.KindRelease})
}

// Status requests and returns a point-in-time snapshot of the scheduler
// state.
func (s *Session) Status() (protocol.StatusAnswer, error) {
	if err := s.conn.WriteEnvelope(wire.Envelope{Kind: wire.KindStatus}); err != nil {
		return protocol.StatusAnswer{}, err
	}
	env, err := s.conn.ReadEnvelope()
	if err != nil {
		return protocol.StatusAnswer{}, err
	}
	if env.Kind != wire.KindStatusAnswer {
		return protocol.StatusAnswer{}, fmt.Errorf("%w: expected StatusAnswer, got %s", coreerr.ErrProtocol, env.Kind)
	}
	return env.Status, nil
}

// StopAccepting tells the server to reject future Acquire calls; existing
// holders are unaffected.
func (s *Session) StopAccepting() error {
	return s.conn.WriteEnvelope(wire.Envelope{Kind: wire.KindStopAccepting})
}

// End sends End and closes the underlying connection.
func (s *Session) End() error {
	err := s.conn.WriteEnvelope(wire.Envelope{Kind: wire.KindEnd})
	cerr := s.nc.Close()
	if err != nil {
		return err
	}
	return cerr
}

// Close closes the underlying connection without sending End, for abrupt
// disconnects.
func (s *Session) Close() error {
	return s.nc.Close()
}
