package orchestration

import "sync"

// TODO: Tasks are popped from the front of a slice; a ring buffer would keep
// the backing array from growing under a sustained burst of level samples.

// taskQueue is an unbounded FIFO of closures. Add never blocks, so device,
// recognizer and timer callbacks can post into it while its consumer is busy
// stopping the very component that is calling back.
type taskQueue struct {
	mu           sync.Mutex
	tasks        []func()
	closed       bool
	updateSignal chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		updateSignal: make(chan struct{}, 1),
	}
}

// Add appends a task. It reports false once the queue is closed.
func (q *taskQueue) Add(task func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
	q.signalUpdate()
	return true
}

// Tasks yields queued tasks in order, waiting for new ones. After Close the
// tasks already queued are still yielded before the sequence ends.
func (q *taskQueue) Tasks(yield func(func()) bool) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks[0] = nil
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			if !yield(task) {
				return
			}
			continue
		}

		if q.closed {
			q.mu.Unlock()
			return
		}

		q.mu.Unlock()
		<-q.updateSignal
	}
}

func (q *taskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signalUpdate()
}

func (q *taskQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
