package dispatch

import "sync"

// queue is a bounded FIFO for one channel. Status messages sit ahead of
// normal ones (FIFO among themselves). When full, the oldest normal
// message is shed; status messages are never shed and are admitted over
// capacity if the queue holds nothing else.
type queue struct {
	mu       sync.Mutex
	items    []*Message
	nStatus  int // items[:nStatus] are status messages
	capacity int
	closed   bool
	notify   chan struct{}
}

func newQueue(capacity int) *queue {
	if capacity < 1 {
		capacity = 1
	}
	return &queue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// push appends m and returns the message that was shed to make room, if
// any. The shed message may be m itself when a normal message meets a
// queue full of status messages.
func (q *queue) push(m *Message) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	var shed *Message
	if len(q.items) >= q.capacity {
		if q.nStatus < len(q.items) {
			shed = q.items[q.nStatus]
			q.items = append(q.items[:q.nStatus], q.items[q.nStatus+1:]...)
		} else if m.Priority != PriorityStatus {
			return m, nil
		}
	}

	if m.Priority == PriorityStatus {
		q.items = append(q.items, nil)
		copy(q.items[q.nStatus+1:], q.items[q.nStatus:])
		q.items[q.nStatus] = m
		q.nStatus++
	} else {
		q.items = append(q.items, m)
	}

	q.signal()
	return shed, nil
}

// pop removes the head of the queue. ok is false when the queue is empty.
func (q *queue) pop() (m *Message, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	m = q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if q.nStatus > 0 {
		q.nStatus--
	}
	return m, true
}

// done reports whether the queue is closed and fully drained.
func (q *queue) done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
}

// drain removes and returns every pending message.
func (q *queue) drain() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	q.nStatus = 0
	return items
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// signal wakes the worker without blocking. Caller holds q.mu.
func (q *queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
