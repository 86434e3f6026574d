package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyjia/expedition-settlement/internal/domain/event"
)

var (
	// ErrClosed is returned by Publish after Close
	ErrClosed = errors.New("dispatcher is closed")
	// ErrQueueFull is returned by Publish when no queue slot is free
	ErrQueueFull = errors.New("event queue is full")
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Stats is a point-in-time view of the dispatcher
type Stats struct {
	Queued    int
	Delivered int64
	Failed    int64
}

type delivery struct {
	ctx context.Context
	evt *event.Event
}

// Dispatcher delivers events to subscribed handlers on a fixed pool of
// workers. Publish only queues; a handler that fails is retried with an
// exponential backoff before the delivery is counted as failed.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	closed   bool

	queue   chan delivery
	quit    chan struct{}
	wg      sync.WaitGroup
	workers int

	attempts    int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	delivered atomic.Int64
	failed    atomic.Int64

	logger Logger
}

// Option configures the dispatcher
type Option func(*Dispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithWorkers sets how many deliveries run concurrently
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets how many events may wait for a worker
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan delivery, n)
		}
	}
}

// WithRetry sets the attempts per handler and the first backoff. The backoff
// doubles after every failed attempt up to eight times its first value.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		if attempts > 0 {
			d.attempts = attempts
		}
		if backoff >= 0 {
			d.baseBackoff = backoff
			d.maxBackoff = 8 * backoff
		}
	}
}

// NewDispatcher creates a dispatcher and starts its workers
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers:    make(map[event.Type][]HandlerInfo),
		queue:       make(chan delivery, 64),
		quit:        make(chan struct{}),
		workers:     2,
		attempts:    3,
		baseBackoff: time.Second,
		maxBackoff:  8 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Subscribe registers a named handler for an event type
func (d *Dispatcher) Subscribe(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	d.handlers[eventType] = append(d.handlers[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})
	d.mu.Unlock()

	d.info("Handler registered", "event_type", eventType, "handler_name", name)
}

// Publish queues evt for delivery. ctx is handed to the handlers, so callers
// serving a request should detach it from the request's cancellation.
func (d *Dispatcher) Publish(ctx context.Context, evt *event.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- delivery{ctx: ctx, evt: evt}:
		return nil
	default:
		d.failed.Add(1)
		d.error("Event dropped, queue full",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"package_id", evt.PackageID,
		)
		return ErrQueueFull
	}
}

// Handlers returns the registered handlers for an event type, without their
// functions
func (d *Dispatcher) Handlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]HandlerInfo, len(d.handlers[eventType]))
	for i, h := range d.handlers[eventType] {
		out[i] = HandlerInfo{Name: h.Name, EventType: h.EventType}
	}
	return out
}

// Stats returns the queue length and delivery counters
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:    len(d.queue),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
	}
}

// Close stops accepting events, delivers what is already queued and waits for
// the workers. Pending retries give up at once.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	close(d.quit)
	close(d.queue)
	d.mu.Unlock()

	d.info("Closing dispatcher", "queued", len(d.queue))
	d.wg.Wait()
	d.info("Dispatcher closed", "delivered", d.delivered.Load(), "failed", d.failed.Load())
	return nil
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job delivery) {
	d.mu.RLock()
	handlers := d.handlers[job.evt.Type]
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := d.retry(job, h); err != nil {
			d.failed.Add(1)
			d.error("Event delivery failed",
				"event_type", job.evt.Type,
				"event_id", job.evt.ID,
				"package_id", job.evt.PackageID,
				"handler_name", h.Name,
				"error", err,
			)
			continue
		}
		d.delivered.Add(1)
	}
}

func (d *Dispatcher) retry(job delivery, h HandlerInfo) error {
	backoff := d.baseBackoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = d.safeExecute(job, h); err == nil {
			return nil
		}
		if attempt >= d.attempts {
			return fmt.Errorf("after %d attempt(s): %w", attempt, err)
		}

		select {
		case <-time.After(backoff):
		case <-job.ctx.Done():
			return fmt.Errorf("%w (last error: %v)", job.ctx.Err(), err)
		case <-d.quit:
			return fmt.Errorf("dispatcher closed (last error: %w)", err)
		}
		if backoff *= 2; backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
	}
}

// safeExecute runs a handler with panic recovery
func (d *Dispatcher) safeExecute(job delivery, h HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handler(job.ctx, job.evt)
}

func (d *Dispatcher) info(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *Dispatcher) error(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}
