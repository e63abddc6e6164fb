// Package coreerr defines the sentinel error taxonomy shared by the arbiter,
// executor and orchestrator. Callers use errors.Is/errors.As against these
// rather than matching on strings.
package coreerr

import "errors"

var (
	// ErrCapacity means a job could not be admitted because not enough
	// cores are currently free; it is never returned from Acquire (the
	// waiter simply blocks), and the admit loop does not return it either.
	ErrCapacity = errors.New("not enough free cores")

	// ErrProtocol means a session received a message that is not legal in
	// its current state. The session is closed; the scheduler queue is
	// otherwise unaffected beyond releasing whatever that session held.
	ErrProtocol = errors.New("protocol violation")

	// ErrRejected means Acquire was answered Reject because the arbiter
	// has stopped accepting new work.
	ErrRejected = errors.New("arbiter is not accepting new jobs")

	// ErrCacheMiss means no usable (fresh) cached Result exists for a
	// fingerprint.
	ErrCacheMiss = errors.New("no fresh cache entry")

	// ErrNoExpectation means a problem file carries no expect: directive
	// and no default was configured.
	ErrNoExpectation = errors.New("expected result not found")

	// ErrDaemonUnreachable means no arbiter could be reached or spawned
	// on the configured port.
	ErrDaemonUnreachable = errors.New("could not reach or spawn arbiter")

	// ErrClosed means an operation was attempted against an
	// already-shut-down component (cache, session, listener).
	ErrClosed = errors.New("component is closed")
)

// Kind categorizes an error per spec §7, for callers (mainly the CLI) that
// need to pick an exit code or a log level without inspecting error chains
// by hand.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindDiscovery
	KindExecution
	KindProtocol
	KindCache
	KindBind
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindDiscovery:
		return "discovery"
	case KindExecution:
		return "execution"
	case KindProtocol:
		return "protocol"
	case KindCache:
		return "cache"
	case KindBind:
		return "bind"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classified wraps an error with its taxonomy Kind so it can be logged and
// routed consistently (§7) without re-deriving the category from context at
// every call site.
type Classified struct {
	Kind Kind
	Err  error
}

func (c *Classified) Error() string { return c.Kind.String() + ": " + c.Err.Error() }
func (c *Classified) Unwrap() error { return c.Err }

// Wrap annotates err with a Kind. A nil err returns nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Classified{Kind: kind, Err: err}
}
