package bridge

import "sync"

// EventQueue hands backend events to a single reader without blocking the publisher
// Every LoadFinished is kept; a run of DOMMutated collapses into the latest one
type EventQueue struct {
	mu        sync.Mutex
	pending   []Event
	wake      chan struct{}
	out       chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewEventQueue starts the delivery goroutine
func NewEventQueue() *EventQueue {
	q := &EventQueue{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Publish queues ev for delivery
func (q *EventQueue) Publish(ev Event) {
	q.mu.Lock()
	n := len(q.pending)
	if _, ok := ev.(DOMMutated); ok && n > 0 {
		if _, last := q.pending[n-1].(DOMMutated); last {
			q.pending[n-1] = ev
			q.mu.Unlock()
			return
		}
	}
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Events returns the delivery channel
func (q *EventQueue) Events() <-chan Event {
	return q.out
}

func (q *EventQueue) run() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			}
		}
		ev := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		select {
		case q.out <- ev:
		case <-q.done:
			return
		}
	}
}

// Close stops delivery; queued events are discarded
func (q *EventQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
