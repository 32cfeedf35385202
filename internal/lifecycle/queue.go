package lifecycle

import (
	"errors"
	"sync"
)

var (
	ErrQueueFull   = errors.New("processing queue is full")
	ErrQueueClosed = errors.New("processing queue is closed")
)

// Queue runs tasks on a fixed pool of workers fed by a buffered channel.
type Queue struct {
	mu     sync.RWMutex
	tasks  chan func()
	closed bool
	wg     sync.WaitGroup
	depth  func(int)
}

// NewQueue starts workers goroutines. onDepth, when set, observes the number
// of waiting tasks after every change.
func NewQueue(workers, size int, onDepth func(int)) *Queue {
	if onDepth == nil {
		onDepth = func(int) {}
	}
	q := &Queue{
		tasks: make(chan func(), size),
		depth: onDepth,
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.work()
	}
	return q
}

func (q *Queue) work() {
	defer q.wg.Done()
	for task := range q.tasks {
		q.depth(len(q.tasks))
		task()
	}
}

// Submit enqueues task without blocking.
func (q *Queue) Submit(task func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		q.depth(len(q.tasks))
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops intake and waits for queued and running tasks to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
}
