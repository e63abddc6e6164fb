package arbiter

import (
	"time"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

// task is a queued acquire request, owned exclusively by the scheduler
// goroutine (spec §3 "Queued task"). ready is a one-shot signal: the
// scheduler closes it exactly once, when the task is admitted.
type task struct {
	id      uint64
	request protocol.JobRequest
	ready   chan struct{}
	seq     uint64 // registration order, for priority-tie stability
}

// runningJob is an admitted task, owned exclusively by the scheduler
// goroutine (spec §3 "Running job").
type runningJob struct {
	id        uint64
	request   protocol.JobRequest
	startTime time.Time
}

// coresOf returns how many cores j actually holds against maxCores.
func (j runningJob) coresOf(maxCores int) int {
	return j.request.CoresOf(maxCores)
}
