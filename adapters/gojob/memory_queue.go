package gojob

import (
	"context"
	"errors"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/google/uuid"
)

var (
	ErrQueueFull   = errors.New("gojob: queue is full")
	ErrQueueClosed = errors.New("gojob: queue is closed")
)

const defaultMaxDeadLetters = 1024

// DeadLetter is a message whose delivery was nacked.
type DeadLetter struct {
	Message     *job.ExecutionMessage
	DispatchID  string
	Attempt     int
	Disposition queue.NackDisposition
	Reason      string
	FailedAt    time.Time
}

// MemoryQueue is a bounded in-process queue. Enqueue never blocks; a full
// queue rejects the message. Nothing is rescheduled: every nack, whatever its
// disposition, ends in the dead letter list.
type MemoryQueue struct {
	ready   chan memoryEnvelope
	closeCh chan struct{}

	mu             sync.Mutex
	closed         bool
	deadLetters    []DeadLetter
	maxDeadLetters int
}

type memoryEnvelope struct {
	msg        *job.ExecutionMessage
	dispatchID string
	attempt    int
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryQueue{
		ready:          make(chan memoryEnvelope, capacity),
		closeCh:        make(chan struct{}),
		maxDeadLetters: defaultMaxDeadLetters,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if msg == nil {
		return queue.EnqueueReceipt{}, errors.New("gojob: execution message is required")
	}
	if err := ctx.Err(); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	receipt := queue.EnqueueReceipt{
		DispatchID: uuid.NewString(),
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.push(memoryEnvelope{msg: copyMessage(msg), dispatchID: receipt.DispatchID, attempt: 1}); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	return receipt, nil
}

func (q *MemoryQueue) push(envelope memoryEnvelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ready <- envelope:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until a message is ready. After Close it drains what is
// left and then returns ErrQueueClosed.
func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	select {
	case envelope := <-q.ready:
		return q.delivery(envelope), nil
	default:
	}
	select {
	case envelope := <-q.ready:
		return q.delivery(envelope), nil
	case <-q.closeCh:
		select {
		case envelope := <-q.ready:
			return q.delivery(envelope), nil
		default:
			return nil, ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.closeCh)
}

func (q *MemoryQueue) Len() int {
	return len(q.ready)
}

func (q *MemoryQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.deadLetters))
	copy(out, q.deadLetters)
	return out
}

func (q *MemoryQueue) deadLetter(envelope memoryEnvelope, opts queue.NackOptions) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.deadLetters) >= q.maxDeadLetters {
		q.deadLetters = q.deadLetters[1:]
	}
	q.deadLetters = append(q.deadLetters, DeadLetter{
		Message:     envelope.msg,
		DispatchID:  envelope.dispatchID,
		Attempt:     envelope.attempt,
		Disposition: opts.Disposition,
		Reason:      opts.Reason,
		FailedAt:    time.Now().UTC(),
	})
}

func (q *MemoryQueue) delivery(envelope memoryEnvelope) *memoryDelivery {
	return &memoryDelivery{queue: q, envelope: envelope}
}

type memoryDelivery struct {
	queue    *MemoryQueue
	envelope memoryEnvelope
	once     sync.Once
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return copyMessage(d.envelope.msg)
}

// Attempts is 1 for the first delivery of a message. The worker reads it for
// its retry decision.
func (d *memoryDelivery) Attempts() int {
	return d.envelope.attempt
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.once.Do(func() {})
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	if err := queue.ValidateNackOptions(opts); err != nil {
		return err
	}
	d.once.Do(func() {
		d.queue.deadLetter(d.envelope, opts)
	})
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
