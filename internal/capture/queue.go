// Package capture holds captured images waiting to be described. The queue
// lives in memory only; pending captures are lost when the process exits.
package capture

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/visnote/internal/note"
)

// Job is one queued capture.
type Job struct {
	ID         string
	Image      note.Image
	EnqueuedAt time.Time
}

// Queue is an unbounded FIFO of capture jobs. Enqueue never blocks; it wakes a
// waiting consumer through the Ready channel.
type Queue struct {
	mu    sync.Mutex
	jobs  []Job
	ready chan struct{}
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Enqueue appends img to the tail and returns the created job.
func (q *Queue) Enqueue(img note.Image) Job {
	job := Job{
		ID:         uuid.New().String(),
		Image:      img,
		EnqueuedAt: time.Now(),
	}

	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return job
}

// Peek returns the head job without removing it.
func (q *Queue) Peek() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	return q.jobs[0], true
}

// Dequeue removes and returns the head job.
func (q *Queue) Dequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	job := q.jobs[0]
	q.jobs[0] = Job{}
	q.jobs = q.jobs[1:]
	return job, true
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Ready receives a value after one or more Enqueue calls. A receive does not
// guarantee the queue is still non-empty.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}
