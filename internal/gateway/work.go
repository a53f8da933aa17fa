package gateway

import "sync"

// workQueueSize bounds the side effects pending per session.
const workQueueSize = 64

// workQueue runs one session's side effects in order on a single goroutine.
type workQueue struct {
	jobs      chan func()
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func newWorkQueue(size int) *workQueue {
	return &workQueue{jobs: make(chan func(), size)}
}

// enqueue adds a job without blocking. Returns false if the queue is full
// or closed.
func (q *workQueue) enqueue(job func()) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}
	select {
	case q.jobs <- job:
		return true
	default:
		return false
	}
}

// run executes jobs until the queue is closed and drained.
func (q *workQueue) run() {
	for job := range q.jobs {
		job()
	}
}

// close stops accepting jobs; run returns after draining what is queued.
func (q *workQueue) close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.jobs)
		q.mu.Unlock()
	})
}
