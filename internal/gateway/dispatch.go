package gateway

import (
	"context"
	"log/slog"
	"sync"
)

// Delivery is one unit of agent output handed to a reply sink. Incremental
// deliveries carry a delta to append; otherwise Text replaces the whole
// accumulated reply. Final marks the end of the reply.
type Delivery struct {
	Text        string
	Incremental bool
	Final       bool
}

// Dispatcher decouples reply production from platform delivery through a
// bounded queue. Deliveries are handed to the deliver callback in order;
// delivery errors go to onError and do not stop the loop.
type Dispatcher struct {
	queue   chan Delivery
	deliver func(context.Context, Delivery) error
	onError func(error)
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewDispatcher builds a dispatcher with the given queue capacity.
func NewDispatcher(capacity int, deliver func(context.Context, Delivery) error, onError func(error), logger *slog.Logger) *Dispatcher {
	if capacity <= 0 {
		capacity = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &Dispatcher{
		queue:   make(chan Delivery, capacity),
		deliver: deliver,
		onError: onError,
		logger:  logger.With(slog.String("component", "dispatcher")),
		done:    make(chan struct{}),
	}
}

// Enqueue offers a delivery without blocking. It reports false when the queue
// is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(delivery Delivery) bool {
	select {
	case <-d.done:
		return false
	default:
	}
	select {
	case d.queue <- delivery:
		return true
	default:
		d.logger.Warn("dispatch queue full, delivery dropped")
		return false
	}
}

// Run consumes the queue until ctx is cancelled or Close is called. Queued
// deliveries are drained before returning on Close.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery := <-d.queue:
			if err := d.deliver(ctx, delivery); err != nil {
				d.onError(err)
			}
		case <-d.done:
			for {
				select {
				case delivery := <-d.queue:
					if err := d.deliver(ctx, delivery); err != nil {
						d.onError(err)
					}
				default:
					return
				}
			}
		}
	}
}

// Close stops the dispatcher. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}
