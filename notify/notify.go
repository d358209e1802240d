/*
Package notify delivers notifications without blocking the caller.

PURPOSE:
  Enrollment tells the course owner that a learner joined. Delivery is
  best effort: it must never slow down or fail the enrollment. The
  Dispatcher puts notifications on a bounded queue drained by one worker;
  when the queue is full the notification is dropped and logged.

KEY TYPES:
  - Notifier: Anything that can deliver a notification
  - Dispatcher: Bounded async front for a Notifier
  - StoreSink: Persists notifications in the document store
  - LogSink: Writes notifications to the log

LIFECYCLE:
  d := notify.NewDispatcher(sink, 256, logger)
  d.Start()
  defer d.Stop() // drains queued notifications
*/
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/enrollment-engine/core"
)

type Notifier interface {
	Notify(ctx context.Context, n core.Notification) error
}

// =============================================================================
// DISPATCHER
// =============================================================================

const DefaultQueueSize = 256

// deliveryTimeout bounds a single sink call made by the worker.
const deliveryTimeout = 5 * time.Second

type Dispatcher struct {
	sink   Notifier
	queue  chan core.Notification
	logger *log.Logger

	mu      sync.Mutex
	running bool
	stopped bool
	done    chan struct{}

	dropped int64
}

func NewDispatcher(sink Notifier, size int, logger *log.Logger) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		sink:   sink,
		queue:  make(chan core.Notification, size),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start launches the worker. Calling Start twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running || d.stopped {
		return
	}
	d.running = true
	go d.run()
	d.logger.Printf("[Notify] Dispatcher started (queue %d)", cap(d.queue))
}

// Stop closes the queue and waits for queued notifications to be delivered.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	running := d.running
	close(d.queue)
	d.mu.Unlock()

	if running {
		<-d.done
	}
	d.logger.Println("[Notify] Dispatcher stopped")
}

// Notify enqueues n and returns immediately. It implements Notifier so the
// dispatcher can stand in for a sink; the returned error is always nil.
func (d *Dispatcher) Notify(_ context.Context, n core.Notification) error {
	d.Dispatch(n)
	return nil
}

// Dispatch enqueues n without blocking. It reports whether n was accepted.
func (d *Dispatcher) Dispatch(n core.Notification) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		d.dropped++
		d.logger.Printf("[Notify] dropped %q for %s: dispatcher stopped", n.Title, n.RecipientID)
		return false
	}
	select {
	case d.queue <- n:
		return true
	default:
		d.dropped++
		d.logger.Printf("[Notify] dropped %q for %s: queue full", n.Title, n.RecipientID)
		return false
	}
}

// Dropped returns how many notifications were discarded.
func (d *Dispatcher) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		if err := d.sink.Notify(ctx, n); err != nil {
			d.logger.Printf("[Notify] delivery to %s failed: %v", n.RecipientID, err)
		}
		cancel()
	}
}

// =============================================================================
// SINKS
// =============================================================================

// StoreSink persists notifications.
type StoreSink struct {
	Store core.NotificationStore
}

func (s StoreSink) Notify(ctx context.Context, n core.Notification) error {
	return s.Store.SaveNotification(ctx, n)
}

// LogSink writes notifications to a logger.
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) Notify(_ context.Context, n core.Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("[Notify] to=%s title=%q message=%q", n.RecipientID, n.Title, n.Message)
	return nil
}

// Multi fans a notification out to every sink and returns the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n core.Notification) error {
	var first error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
