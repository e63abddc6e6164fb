package arbiter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

func mkTask(id, seq uint64, cores, priority int) *task {
	return &task{
		id:      id,
		seq:     seq,
		request: protocol.JobRequest{Cores: cores, Priority: priority},
		ready:   make(chan struct{}),
	}
}

// TestWaitQueueOrder is property 2 in isolation: (priority DESC, cores ASC,
// registration-order ASC), independent of any scheduler timing.
func TestWaitQueueOrder(t *testing.T) {
	q := newWaitQueue(4)
	x := mkTask(1, 1, 3, 0)
	y := mkTask(2, 2, 2, 0)
	z := mkTask(3, 3, 1, 5)
	q.push(x)
	q.push(y)
	q.push(z)

	assert.Same(t, z, q.pop(), "highest priority pops first")
	assert.Same(t, y, q.pop(), "equal priority: smaller cores first")
	assert.Same(t, x, q.pop())
}

func TestWaitQueueStableAtEqualPriorityAndCores(t *testing.T) {
	q := newWaitQueue(4)
	a := mkTask(1, 1, 1, 0)
	b := mkTask(2, 2, 1, 0)
	c := mkTask(3, 3, 1, 0)
	q.push(c)
	q.push(a)
	q.push(b)

	assert.Same(t, a, q.pop(), "earlier registration order wins ties")
	assert.Same(t, b, q.pop())
	assert.Same(t, c, q.pop())
}

func TestWaitQueueSnapshotDoesNotMutate(t *testing.T) {
	q := newWaitQueue(4)
	q.push(mkTask(1, 1, 1, 0))
	q.push(mkTask(2, 2, 1, 5))

	snap := q.snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, 5, snap[0].request.Priority, "snapshot is priority-ordered")
	assert.Equal(t, 2, q.Len(), "snapshot must not remove items")
}
