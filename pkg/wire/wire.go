// Package wire implements the arbiter's framed message protocol (spec §6):
// a 4-byte big-endian length prefix followed by a binc-encoded Envelope.
// The encoding mirrors the clientRequest/serverResponse-over-codec.Handle
// pattern used by vrpipe/wr's jobqueue server, adapted from a single
// request/response pair to a small closed message set exchanged over a
// long-lived duplex stream.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ugorji/go/codec"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

// Kind identifies which of the closed set of messages an Envelope carries.
type Kind uint8

const (
	KindStart Kind = iota
	KindEnd
	KindAcquire
	KindRelease
	KindStatus
	KindStopAccepting
	KindGo
	KindReject
	KindStatusAnswer
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "Start"
	case KindEnd:
		return "End"
	case KindAcquire:
		return "Acquire"
	case KindRelease:
		return "Release"
	case KindStatus:
		return "Status"
	case KindStopAccepting:
		return "StopAccepting"
	case KindGo:
		return "Go"
	case KindReject:
		return "Reject"
	case KindStatusAnswer:
		return "StatusAnswer"
	default:
		return "Unknown"
	}
}

// Envelope is the single encoded unit exchanged in both directions. Only the
// field relevant to Kind is populated; the rest are zero values.
type Envelope struct {
	Kind   Kind                   `codec:"kind"`
	Job    protocol.JobRequest    `codec:"job,omitempty"`
	Status protocol.StatusAnswer  `codec:"status,omitempty"`
}

var handle = func() *codec.BincHandle {
	h := &codec.BincHandle{}
	h.Canonical = true
	return h
}()

const maxFrameLen = 16 << 20 // 16MiB; generous for a StatusAnswer with a long queue.

// Conn frames Envelopes over an underlying stream (typically a net.Conn).
// It is not safe for concurrent use by multiple writers or multiple
// readers; the arbiter reads and writes each session's Conn from that
// session's single goroutine.
type Conn struct {
	r *bufio.Reader
	w io.Writer
}

// NewConn wraps rw (read half and write half may be the same net.Conn).
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{r: bufio.NewReader(r), w: w}
}

// WriteEnvelope encodes and frames env, flushing it in one Write call so
// partial frames are never interleaved on a shared connection.
func (c *Conn) WriteEnvelope(env Envelope) error {
	var body []byte
	enc := codec.NewEncoderBytes(&body, handle)
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("wire: encode %s: %w", env.Kind, err)
	}
	if len(body) > maxFrameLen {
		return fmt.Errorf("wire: encoded frame too large (%d bytes)", len(body))
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	_, err := c.w.Write(frame)
	if err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}
	return nil
}

// ReadEnvelope blocks for the next frame and decodes it. io.EOF (wrapped) is
// returned verbatim-checkable via errors.Is when the peer closed cleanly.
func (c *Conn) ReadEnvelope() (Envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return Envelope{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameLen {
		return Envelope{}, fmt.Errorf("wire: frame of %d bytes exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return Envelope{}, fmt.Errorf("wire: read frame body: %w", err)
	}
	var env Envelope
	dec := codec.NewDecoderBytes(body, handle)
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode frame: %w", err)
	}
	return env, nil
}
