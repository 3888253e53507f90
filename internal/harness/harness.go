package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/ringtrail/internal/engine"
	"github.com/roach88/ringtrail/internal/journal"
	"github.com/roach88/ringtrail/internal/lifecycle"
	"github.com/roach88/ringtrail/internal/ping"
	"github.com/roach88/ringtrail/internal/presence"
	"github.com/roach88/ringtrail/internal/ring"
	"github.com/roach88/ringtrail/internal/testutil"
	"github.com/roach88/ringtrail/internal/txn"
)

// Harness executes scenario steps against a set of replicas.
type Harness struct {
	journal  *journal.Journal
	clock    *testutil.ManualClock
	start    time.Time
	replicas map[string]*ping.Contract
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory journal. Replica owned by
// name X is identified by the peer id of the bytes of X and draws its
// transactions from "X-1", "X-2", ...
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	start, err := scenario.StartTime()
	if err != nil {
		return nil, err
	}
	opts, err := scenario.PingOptions()
	if err != nil {
		return nil, err
	}

	j, err := journal.Open(ctx, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer j.Close()

	h := &Harness{
		journal:  j,
		clock:    testutil.NewManualClock(start),
		start:    start,
		replicas: make(map[string]*ping.Contract, len(scenario.Replicas)),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, name := range scenario.Replicas {
		rec := lifecycle.NewRecorder(testutil.NewSequentialGenerator(name), h.clock, j)
		c, err := ping.NewContract(opts, h.clock, rec, ring.MustPeerID([]byte(name)))
		if err != nil {
			return nil, fmt.Errorf("replica %s: %w", name, err)
		}
		h.replicas[name] = c
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		sr, err := h.execute(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		result.Steps = append(result.Steps, sr)
	}

	for name, c := range h.replicas {
		result.States[name] = c.Snapshot()
	}

	entries, err := j.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	for _, e := range entries {
		result.Trace = append(result.Trace, TraceEvent{
			Seq:         e.Seq,
			Variant:     e.Variant,
			Transaction: e.Transaction,
		})
	}

	actx := &AssertionContext{Ctx: ctx, Journal: j, Start: start}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, i int, step Step) (StepResult, error) {
	sr := StepResult{Index: i}

	switch {
	case step.Touch != nil:
		sr.Kind, sr.Replica, sr.Name = StepTouch, step.Touch.Replica, step.Touch.Name
		h.replicas[step.Touch.Replica].RecordPresence(step.Touch.Name)

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return sr, err
		}
		sr.Kind, sr.Advance = StepAdvance, d
		h.clock.Advance(d)

	case step.Deliver != nil:
		sr.Kind, sr.Replica, sr.From = StepDeliver, step.Deliver.To, step.Deliver.From
		entries, err := ParseEntries(h.start, step.Deliver.State)
		if err != nil {
			return sr, err
		}
		sr.Transaction = txn.Transaction(step.Deliver.Transaction)
		if sr.Transaction == "" {
			sr.Transaction = txn.Transaction(fmt.Sprintf("tx-%d", i))
		}
		sr.Delta, sr.Err = h.apply(ctx, h.replicas[sr.Replica], ping.Delivery{
			Transaction: sr.Transaction,
			From:        sr.From,
			State:       presence.FromMap(entries),
		})

	case step.Publish != nil:
		sr.Kind, sr.Replica, sr.From = StepPublish, step.Publish.To, step.Publish.From
		to := h.replicas[sr.Replica]
		upd, err := h.replicas[sr.From].Publish(ctx, to.Self().String())
		if err != nil {
			return sr, fmt.Errorf("publish: %w", err)
		}
		d, err := upd.Delivery()
		if err != nil {
			return sr, fmt.Errorf("decode published state: %w", err)
		}
		sr.Transaction = upd.Transaction
		sr.Delta, sr.Err = h.apply(ctx, to, d)

	default:
		return sr, fmt.Errorf("empty step")
	}
	return sr, nil
}

// apply runs one delivery through an engine owning c and returns the
// merge outcome.
func (h *Harness) apply(ctx context.Context, c *ping.Contract, d ping.Delivery) (presence.Delta, error) {
	var (
		delta    presence.Delta
		applyErr error
	)
	eng := engine.New(c,
		engine.WithLogger(h.logger),
		engine.WithObserver(func(_ engine.Item, dl presence.Delta, err error) {
			delta, applyErr = dl, err
		}),
	)
	eng.Enqueue(d)
	eng.Stop()
	if err := eng.Run(ctx); err != nil {
		return nil, err
	}
	return delta, applyErr
}
