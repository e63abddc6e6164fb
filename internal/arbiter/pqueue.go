package arbiter

import (
	"container/heap"
	"sort"
)

// waitQueue orders queued tasks by (priority DESC, cores ASC, seq ASC) —
// spec §4.1 "Priority order is strict". maxCores is needed to resolve
// cores == 0 ("exclusive, all cores") to a concrete value for the cores-ASC
// tie-break.
type waitQueue struct {
	items    []*task
	maxCores int
}

func newWaitQueue(maxCores int) *waitQueue {
	wq := &waitQueue{maxCores: maxCores}
	heap.Init(wq)
	return wq
}

func (q *waitQueue) Len() int { return len(q.items) }

func (q *waitQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.request.Priority != b.request.Priority {
		return a.request.Priority > b.request.Priority // priority DESC
	}
	ac, bc := a.request.CoresOf(q.maxCores), b.request.CoresOf(q.maxCores)
	if ac != bc {
		return ac < bc // cores ASC
	}
	return a.seq < b.seq // registration order ASC
}

func (q *waitQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *waitQueue) Push(x any) { q.items = append(q.items, x.(*task)) }

func (q *waitQueue) Pop() any {
	old := q.items
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return t
}

// push inserts t preserving heap order.
func (q *waitQueue) push(t *task) { heap.Push(q, t) }

// peek returns the highest-priority waiter without removing it, or nil if
// empty.
func (q *waitQueue) peek() *task {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// pop removes and returns the highest-priority waiter.
func (q *waitQueue) pop() *task {
	return heap.Pop(q).(*task)
}

// snapshot returns the queue in priority order without mutating it, for
// Status (spec §4.1 "Status").
func (q *waitQueue) snapshot() []*task {
	cp := make([]*task, len(q.items))
	copy(cp, q.items)
	// items is already heap-ordered, but heap order is only a partial
	// order (it guarantees the root, not a fully sorted slice); Status
	// must report strict priority order, so sort a copy explicitly.
	sortTasks(cp, q.maxCores)
	return cp
}

func sortTasks(ts []*task, maxCores int) {
	sort.Slice(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if a.request.Priority != b.request.Priority {
			return a.request.Priority > b.request.Priority
		}
		ac, bc := a.request.CoresOf(maxCores), b.request.CoresOf(maxCores)
		if ac != bc {
			return ac < bc
		}
		return a.seq < b.seq
	})
}
