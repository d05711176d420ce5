package audit

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jwalitptl/care-scheduler/internal/model"
)

var (
	ErrQueueFull = errors.New("audit queue full")
	ErrClosed    = errors.New("audit dispatcher closed")
)

// WriteFunc persists one record.
type WriteFunc func(ctx context.Context, log *model.AuditLog) error

// FailureFunc is told about every record that could not be persisted.
type FailureFunc func(log *model.AuditLog, err error)

type job struct {
	log     *model.AuditLog
	barrier chan struct{}
}

// Dispatcher writes records in the background. Records sharing a sequence
// key always land on the same shard, so they are persisted in the order
// they were enqueued.
type Dispatcher struct {
	shards         []chan job
	write          WriteFunc
	onFailure      FailureFunc
	enqueueTimeout time.Duration
	writeTimeout   time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(shards, queueSize int, enqueueTimeout, writeTimeout time.Duration, write WriteFunc, onFailure FailureFunc) *Dispatcher {
	if shards < 1 {
		shards = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		shards:         make([]chan job, shards),
		write:          write,
		onFailure:      onFailure,
		enqueueTimeout: enqueueTimeout,
		writeTimeout:   writeTimeout,
	}
	for i := range d.shards {
		d.shards[i] = make(chan job, queueSize)
		d.wg.Add(1)
		go d.run(d.shards[i])
	}
	return d
}

func (d *Dispatcher) shardFor(key string) chan job {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return d.shards[h.Sum32()%uint32(len(d.shards))]
}

func (d *Dispatcher) run(queue chan job) {
	defer d.wg.Done()
	for j := range queue {
		if j.barrier != nil {
			close(j.barrier)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), d.writeTimeout)
		if err := d.write(ctx, j.log); err != nil {
			d.onFailure(j.log, err)
		}
		cancel()
	}
}

// Enqueue hands the record to its shard, waiting at most the enqueue timeout.
func (d *Dispatcher) Enqueue(log *model.AuditLog) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	queue := d.shardFor(log.SequenceKey())
	select {
	case queue <- job{log: log}:
		return nil
	default:
	}

	timer := time.NewTimer(d.enqueueTimeout)
	defer timer.Stop()
	select {
	case queue <- job{log: log}:
		return nil
	case <-timer.C:
		return ErrQueueFull
	}
}

// Flush returns once every record enqueued before the call has been handled.
func (d *Dispatcher) Flush(ctx context.Context) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil
	}
	barriers := make([]chan struct{}, 0, len(d.shards))
	for _, queue := range d.shards {
		b := make(chan struct{})
		select {
		case queue <- job{barrier: b}:
			barriers = append(barriers, b)
		case <-ctx.Done():
			d.mu.RUnlock()
			return ctx.Err()
		}
	}
	d.mu.RUnlock()

	for _, b := range barriers {
		select {
		case <-b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Depth is the number of records waiting across all shards.
func (d *Dispatcher) Depth() int {
	n := 0
	for _, queue := range d.shards {
		n += len(queue)
	}
	return n
}

// Close stops accepting records and drains what is queued.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, queue := range d.shards {
		close(queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
