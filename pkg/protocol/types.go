// Package protocol defines the wire-level data model shared by the arbiter
// and its clients: job requests, queue/run snapshots, and the classified
// results the executor produces. These types are encoded with pkg/wire.
package protocol

import (
	"strings"
	"time"
)

// JobRequest is what a client sends with Acquire. Cores == 0 means
// "exclusive, all cores".
type JobRequest struct {
	Cores     int     `codec:"cores"`
	Priority  int     `codec:"priority"`
	PID       int     `codec:"pid"`
	User      string  `codec:"user,omitempty"`
	Tag       string  `codec:"tag,omitempty"`
	Info      string  `codec:"info,omitempty"`
	QueryTime float64 `codec:"query_time"`
}

// CoresOf returns how many cores a request actually claims: maxCores when
// Cores <= 0, otherwise Cores itself.
func (r JobRequest) CoresOf(maxCores int) int {
	if r.Cores <= 0 {
		return maxCores
	}
	return r.Cores
}

// CurrentJob is a running job as reported by StatusAnswer.
type CurrentJob struct {
	ID        uint64     `codec:"id"`
	Job       JobRequest `codec:"job"`
	StartTime time.Time  `codec:"start_time"`
}

// WaitingJob is a queued task as reported by StatusAnswer, in admission
// order (§4.1 Status).
type WaitingJob struct {
	ID  uint64     `codec:"id"`
	Job JobRequest `codec:"job"`
}

// StatusAnswer is the server's reply to a Status message.
type StatusAnswer struct {
	MaxCores int          `codec:"max_cores"`
	Running  []CurrentJob `codec:"running"`
	Waiting  []WaitingJob `codec:"waiting"`
}

// Classification is the high-level outcome of a single prover invocation.
type Classification int

const (
	Sat Classification = iota
	Unsat
	Unknown
	Timeout
	Error
)

func (c Classification) String() string {
	switch c {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	case Unknown:
		return "unknown"
	case Timeout:
		return "timeout"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ParseClassification parses the case-insensitive expect: directive values
// (§6); "fail" is an alias of Error.
func ParseClassification(s string) (Classification, bool) {
	switch strings.ToLower(s) {
	case "sat":
		return Sat, true
	case "unsat":
		return Unsat, true
	case "unknown":
		return Unknown, true
	case "timeout":
		return Timeout, true
	case "error", "fail":
		return Error, true
	default:
		return 0, false
	}
}

// Prover is the content-addressable descriptor of an external prover
// binary: its invocation template and the regexes used to classify output.
type Prover struct {
	Name         string `codec:"name" toml:"name"`
	Binary       string `codec:"binary" toml:"binary"`
	CommandTmpl  string `codec:"command" toml:"command"`
	RegexSat     string `codec:"regex_sat" toml:"regex_sat"`
	RegexUnsat   string `codec:"regex_unsat" toml:"regex_unsat"`
	RegexUnknown string `codec:"regex_unknown,omitempty" toml:"regex_unknown"`
	RegexTimeout string `codec:"regex_timeout,omitempty" toml:"regex_timeout"`
	RegexMemory  string `codec:"regex_memory,omitempty" toml:"regex_memory"`

	// Image names a container image to run the prover in when the
	// "docker" sandbox backend is selected; empty means the prover only
	// supports the "process" backend.
	Image string `codec:"image,omitempty" toml:"image"`
}

// Problem is a single input file paired with its expected outcome.
type Problem struct {
	Path     string         `codec:"path"`
	Expected Classification `codec:"expected"`
}

// RawMeasurement holds the unclassified, literal process output/timings
// captured by the executor.
type RawMeasurement struct {
	Stdout   string        `codec:"stdout"`
	Stderr   string        `codec:"stderr"`
	ErrCode  int           `codec:"errcode"`
	RealTime time.Duration `codec:"rtime"`
	UserTime time.Duration `codec:"utime"`
	SysTime  time.Duration `codec:"stime"`
}

// Result is what the executor produces for one (prover, problem) run.
type Result struct {
	Prover         Prover         `codec:"prover"`
	Problem        Problem        `codec:"problem"`
	Classification Classification `codec:"classification"`
	Raw            RawMeasurement `codec:"raw"`
}

// Agrees reports whether the result matches the problem's expectation.
func (r Result) Agrees() bool {
	return r.Classification == r.Problem.Expected
}

// Event is the Snapshot-level record of one completed run.
type Event = Result

// Snapshot is an immutable, UUID-identified bundle of Events produced by one
// orchestrator batch (§3, §6).
type Snapshot struct {
	UUID      string  `json:"uuid"`
	Timestamp float64 `json:"timestamp"`
	Meta      string  `json:"meta,omitempty"`
	Events    []Event `json:"events"`
}
