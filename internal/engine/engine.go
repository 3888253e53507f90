package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ringtrail/internal/ping"
	"github.com/roach88/ringtrail/internal/presence"
)

// Observer is told the outcome of every processed item. It runs on the Run
// goroutine and must not block.
type Observer func(it Item, delta presence.Delta, err error)

// Engine owns one contract replica and applies queued work to it.
//
// Thread-safety model:
//   - Enqueue(), Touch(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	contract  *ping.Contract
	queue     *itemQueue
	logger    *slog.Logger
	heartbeat string
	observer  Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithHeartbeat makes Run stamp name every Options.Frequency, starting
// immediately.
func WithHeartbeat(name string) Option {
	return func(e *Engine) {
		e.heartbeat = name
	}
}

// WithObserver registers fn to receive processing outcomes.
func WithObserver(fn Observer) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// New creates an engine for c.
func New(c *ping.Contract, opts ...Option) *Engine {
	e := &Engine{
		contract: c,
		queue:    newItemQueue(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue submits a delivery. Returns false once the engine has stopped.
func (e *Engine) Enqueue(d ping.Delivery) bool {
	return e.queue.Enqueue(Item{Type: ItemDelivery, Delivery: d})
}

// Touch submits a presence stamp for name. Returns false once the engine
// has stopped.
func (e *Engine) Touch(name string) bool {
	return e.queue.Enqueue(Item{Type: ItemPresence, Name: name})
}

// Pending returns the number of queued items.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// Run applies queued work until ctx is cancelled or Stop is called.
// Items queued before Stop are drained first.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "contract", e.contract.Key())

	var tick <-chan time.Time
	if e.heartbeat != "" {
		t := time.NewTicker(e.contract.Options().Frequency)
		defer t.Stop()
		tick = t.C
		e.process(ctx, Item{Type: ItemPresence, Name: e.heartbeat})
	}

	for {
		if it, ok := e.queue.TryDequeue(); ok {
			e.process(ctx, it)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-tick:
			e.process(ctx, Item{Type: ItemPresence, Name: e.heartbeat})

		case _, open := <-e.queue.Wait():
			if !open && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the remaining items are applied.
func (e *Engine) Stop() {
	e.queue.Close()
}

// process applies one item. Failures are logged and processing continues:
// the merge itself has already happened and a retry would only duplicate the
// lifecycle event.
func (e *Engine) process(ctx context.Context, it Item) {
	var (
		delta presence.Delta
		err   error
	)

	switch it.Type {
	case ItemDelivery:
		delta, err = e.contract.Apply(ctx, it.Delivery)
		if err != nil {
			e.logger.Error("delivery processing failed",
				"error", err,
				"transaction", it.Delivery.Transaction,
				"from", it.Delivery.From,
			)
		} else {
			e.logger.Debug("delivery merged",
				"transaction", it.Delivery.Transaction,
				"from", it.Delivery.From,
				"changed", delta.Names(),
			)
		}

	case ItemPresence:
		e.contract.RecordPresence(it.Name)
		e.logger.Debug("presence recorded", "name", it.Name)

	default:
		err = fmt.Errorf("unknown item type: %d", it.Type)
		e.logger.Error("item processing failed", "error", err)
	}

	if e.observer != nil {
		e.observer(it, delta, err)
	}
}
