// Package arbiter implements the resource-arbitration daemon: a priority
// queue and core accounting protected by a single scheduler goroutine, a
// per-client session state machine, and auto-shutdown when idle (spec §4.1,
// §5). One goroutine owns all mutable state and everyone else talks to it
// over a channel. The teacher's Scheduler instead guarded its routing state
// with a mutex (scheduleMux); here the single-consumer inbox spec §9 calls
// for replaces the lock entirely.
package arbiter

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/sb-labs/coreclaim/internal/metrics"
	"github.com/sb-labs/coreclaim/pkg/protocol"
)

var tracer = otel.Tracer("github.com/sb-labs/coreclaim/internal/arbiter")

// registerMsg asks the scheduler to enqueue req. The scheduler replies on
// reply with the task it created (already carrying its assigned id and
// ready channel) so the calling session can await admission.
type registerMsg struct {
	req   protocol.JobRequest
	reply chan *task
}

// doneMsg tells the scheduler a running task has finished or was released.
type doneMsg struct {
	id uint64
}

// statusMsg asks the scheduler for a consistent snapshot.
type statusMsg struct {
	reply chan protocol.StatusAnswer
}

// clientDeltaMsg adjusts numClients up (connect) or down (disconnect);
// spec §4.1 "Auto-shutdown" needs this tracked so a connected-but-idle
// client blocks shutdown.
type clientDeltaMsg struct {
	delta int
}

// stopAcceptingMsg flips accepting to false (spec §4.1, §6 StopAccepting).
type stopAcceptingMsg struct{}

// schedMsg is the closed set of messages the scheduler goroutine consumes.
// Exactly one goroutine processes schedMsg values, in arrival order; this is
// the central invariant in spec §4.1 and §5.
type schedMsg any

// Scheduler owns all arbiter mutable state. Call Run in its own goroutine;
// every other method just sends on inbox and returns.
type Scheduler struct {
	maxCores int
	inbox    chan schedMsg
	done     chan struct{} // closed when Run returns (auto-shutdown)

	log *zap.SugaredLogger
	met *metrics.Registry

	// state below is only ever touched inside Run's goroutine.
	nextID     uint64
	numClients int
	accepting  bool
	running    []runningJob
	waiting    *waitQueue
	seqCounter uint64
}

// NewScheduler constructs a Scheduler for a pool of maxCores cores. Call Run
// to start it.
func NewScheduler(maxCores int, log *zap.SugaredLogger, met *metrics.Registry) *Scheduler {
	return &Scheduler{
		maxCores:  maxCores,
		inbox:     make(chan schedMsg, 64),
		done:      make(chan struct{}),
		log:       log,
		met:       met,
		accepting: true,
		waiting:   newWaitQueue(maxCores),
	}
}

// Done returns a channel closed once the scheduler has auto-shut-down; the
// listener selects on it to stop accepting connections.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// MaxCores returns the configured pool size.
func (s *Scheduler) MaxCores() int { return s.maxCores }

// Run is the scheduler's single-consumer loop. It returns when the arbiter
// auto-shuts-down (spec §4.1 "Auto-shutdown").
func (s *Scheduler) Run() {
	defer close(s.done)
	for msg := range s.inbox {
		switch m := msg.(type) {
		case registerMsg:
			s.handleRegister(m)
		case doneMsg:
			s.handleDone(m)
		case statusMsg:
			s.handleStatus(m)
		case clientDeltaMsg:
			s.numClients += m.delta
		case stopAcceptingMsg:
			s.accepting = false
		}
		s.admitLoop()
		if s.shouldShutdown() {
			s.log.Infow("auto-shutdown: idle with no clients")
			return
		}
	}
}

// ClientConnected/ClientDisconnected/Register/Done/Status/StopAccepting are
// the external API; each is a blocking send to inbox followed (where
// relevant) by a blocking receive on a per-call reply channel. None of them
// touch scheduler state directly — spec §5 "Client-session tasks never
// touch arbiter state directly."

func (s *Scheduler) ClientConnected()    { s.send(clientDeltaMsg{delta: 1}) }
func (s *Scheduler) ClientDisconnected() { s.send(clientDeltaMsg{delta: -1}) }
func (s *Scheduler) StopAccepting()      { s.send(stopAcceptingMsg{}) }

// Register enqueues req and returns the task the session should await
// admission on via task.ready, or nil if the arbiter has stopped accepting
// new work (spec §4.1: "Acquire is answered immediately with Reject").
func (s *Scheduler) Register(req protocol.JobRequest) *task {
	reply := make(chan *task, 1)
	s.send(registerMsg{req: req, reply: reply})
	return <-reply
}

// MarkDone tells the scheduler task id has finished (released or
// disconnected).
func (s *Scheduler) MarkDone(id uint64) { s.send(doneMsg{id: id}) }

// RecordReject notes a Reject answer for metrics. It is safe to call from
// any goroutine — unlike scheduler state, the metrics registry is its own
// concurrency-safe collector, not the single-consumer state Run owns.
func (s *Scheduler) RecordReject() {
	if s.met != nil {
		s.met.JobRejected()
	}
}

// Status returns a consistent snapshot of the scheduler state.
func (s *Scheduler) Status() protocol.StatusAnswer {
	reply := make(chan protocol.StatusAnswer, 1)
	s.send(statusMsg{reply: reply})
	return <-reply
}

// send delivers msg to the inbox. The inbox is never closed; once Run has
// returned (done is closed, after which the listener is closed too), msg is
// dropped instead, so send never blocks on a scheduler that has shut down.
func (s *Scheduler) send(msg schedMsg) {
	select {
	case s.inbox <- msg:
	case <-s.done:
	}
}

func (s *Scheduler) handleRegister(m registerMsg) {
	if !s.accepting {
		m.reply <- nil
		return
	}
	s.seqCounter++
	t := &task{
		id:      s.nextID,
		request: m.req,
		ready:   make(chan struct{}),
		seq:     s.seqCounter,
	}
	s.nextID++
	s.waiting.push(t)
	m.reply <- t
}

func (s *Scheduler) handleDone(m doneMsg) {
	for i, j := range s.running {
		if j.id == m.id {
			s.running = append(s.running[:i], s.running[i+1:]...)
			if s.met != nil {
				s.met.JobCompleted(time.Since(j.startTime))
				s.met.SetCoresInUse(s.coresInUse())
			}
			return
		}
	}
	// spec §9 Open Questions: the scheduler's Done message may not find
	// its task (already released, or a stale disconnect). Log and
	// continue; do not attempt to reconstruct state.
	s.log.Warnw("Done for unknown task id", "id", m.id)
}

func (s *Scheduler) handleStatus(m statusMsg) {
	running := make([]protocol.CurrentJob, len(s.running))
	for i, j := range s.running {
		running[i] = protocol.CurrentJob{ID: j.id, Job: j.request, StartTime: j.startTime}
	}
	waitingTasks := s.waiting.snapshot()
	waiting := make([]protocol.WaitingJob, len(waitingTasks))
	for i, t := range waitingTasks {
		waiting[i] = protocol.WaitingJob{ID: t.id, Job: t.request}
	}
	m.reply <- protocol.StatusAnswer{MaxCores: s.maxCores, Running: running, Waiting: waiting}
}

// admitLoop implements spec §4.1's admission algorithm: repeatedly admit the
// highest-priority waiter while there is capacity for it.
func (s *Scheduler) admitLoop() {
	_, span := tracer.Start(context.Background(), "arbiter.admit_tick")
	defer span.End()

	for {
		t := s.waiting.peek()
		if t == nil {
			break
		}
		need := t.request.CoresOf(s.maxCores)
		used := s.coresInUse()
		if need > s.maxCores-used {
			break
		}
		s.waiting.pop()
		job := runningJob{id: t.id, request: t.request, startTime: time.Now()}
		s.running = append(s.running, job)
		close(t.ready)
		if s.met != nil {
			s.met.JobAdmitted(job.coresOf(s.maxCores))
			s.met.SetCoresInUse(s.coresInUse())
		}
		s.log.Infow("admitted task", "id", t.id, "cores", need, "priority", t.request.Priority)
	}
	if s.met != nil {
		s.met.SetQueueDepth(s.waiting.Len())
	}
}

func (s *Scheduler) coresInUse() int {
	used := 0
	for _, j := range s.running {
		used += j.coresOf(s.maxCores)
	}
	return used
}

// shouldShutdown implements spec §4.1 "Auto-shutdown".
func (s *Scheduler) shouldShutdown() bool {
	return len(s.running) == 0 && s.waiting.Len() == 0 && s.numClients == 0
}
