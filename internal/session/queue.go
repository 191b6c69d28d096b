package session

import "sync"

// pendingQueue is a FIFO of monitor IDs that holds each ID at most once.
//
// An ID announced again while still queued is coalesced into the existing
// entry: the later fetch already reads the newest stored value.
type pendingQueue struct {
	mu    sync.Mutex
	order []string
	set   map[string]struct{}
	limit int
}

func newPendingQueue(limit int) *pendingQueue {
	return &pendingQueue{
		set:   make(map[string]struct{}),
		limit: limit,
	}
}

// pushResult describes what push did with an ID.
type pushResult int

const (
	pushed pushResult = iota
	coalesced
	full
)

func (q *pendingQueue) push(id string) pushResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.set[id]; ok {
		return coalesced
	}
	if q.limit > 0 && len(q.order) >= q.limit {
		return full
	}
	q.set[id] = struct{}{}
	q.order = append(q.order, id)
	return pushed
}

// pop removes and returns the oldest ID.
func (q *pendingQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.order) == 0 {
		return "", false
	}
	id := q.order[0]
	q.order[0] = ""
	q.order = q.order[1:]
	delete(q.set, id)
	return id, true
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

func (q *pendingQueue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.order = nil
	q.set = make(map[string]struct{})
}
