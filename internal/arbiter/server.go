package arbiter

import (
	"context"
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sb-labs/coreclaim/internal/metrics"
)

// Server owns the TCP listener and spawns one session per accepted
// connection. Its Start/accept-loop/logging shape follows the teacher's
// gateway Server (NewServer/Start, a dedicated log line per accepted unit
// of work), adapted from one-shot HTTP handlers to long-lived framed TCP
// sessions.
type Server struct {
	port int
	sch  *Scheduler
	log  *zap.SugaredLogger

	// acceptLimiter throttles the rate of newly accepted connections so a
	// misbehaving or malicious client flood cannot monopolize the
	// scheduler goroutine's attention processing a flood of Register/
	// clientDelta messages (ambient hardening, not a spec requirement).
	acceptLimiter *rate.Limiter
}

// NewServer constructs a Server bound to port, driving sch.
func NewServer(port int, sch *Scheduler, log *zap.SugaredLogger, _ *metrics.Registry) *Server {
	return &Server{
		port:          port,
		sch:           sch,
		log:           log,
		acceptLimiter: rate.NewLimiter(rate.Limit(200), 50),
	}
}

// Start listens on 127.0.0.1:port and serves connections until the
// scheduler auto-shuts-down or ctx is canceled. It returns once the
// listener is closed either way.
//
// If the port is already in use, Start returns immediately with the bind
// error (spec §7 "Daemon bind": "port already in use" — callers should
// assume a live daemon and proceed to connect, which is exactly what
// pkg/client.Dial's connect-before-spawn ordering already does).
func (srv *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", srv.port))
	if err != nil {
		return fmt.Errorf("bind :%d: %w", srv.port, err)
	}
	srv.log.Infow("listening", "port", srv.port, "pid", os.Getpid(), "max_cores", srv.sch.MaxCores())

	go srv.sch.Run()

	go func() {
		select {
		case <-srv.sch.Done():
			ln.Close()
		case <-ctx.Done():
			ln.Close()
		}
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-srv.sch.Done():
				return nil
			case <-ctx.Done():
				return nil
			default:
			}
			// spec §4.1 "Listener accept error: log and continue."
			srv.log.Warnw("accept error", "err", err)
			continue
		}
		if err := srv.acceptLimiter.Wait(ctx); err != nil {
			nc.Close()
			continue
		}
		sess := newSession(nc, srv.sch, srv.log)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					// spec §4.1 "Uncaught exception in a per-client
					// handler: log, close that session."
					srv.log.Errorw("session panic", "recover", r)
				}
			}()
			sess.serve()
		}()
	}
}

