package projector

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stableMirror/internal/event"
	"stableMirror/internal/metrics"
	"stableMirror/internal/model"
	"stableMirror/internal/storage"
)

// Status is the outcome of one Apply.
type Status string

const (
	StatusApplied   Status = "applied"
	StatusDuplicate Status = "duplicate"
	StatusRejected  Status = "rejected"
)

// Outcome of applying one envelope.
type Outcome struct {
	Status     Status
	Conditions []Condition
}

// Config configures a Dispatcher.
type Config struct {
	// Contracts, when not empty, pins every kind to its emitting contract.
	Contracts event.Contracts
	// Workers bounds concurrent streams in ApplyBatch.
	Workers int
}

// Dispatcher routes envelopes to projection rules and applies each event at
// most once, in emission order per contract stream.
type Dispatcher struct {
	cfg      Config
	store    storage.EntityStore
	reporter Reporter
	logger   *zap.Logger
	metrics  *metrics.Projector
	locks    *keyLocker
}

func NewDispatcher(cfg Config, store storage.EntityStore, reporter Reporter, logger *zap.Logger, m *metrics.Projector) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reporter == nil {
		reporter = NewLogReporter(logger)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Dispatcher{
		cfg:      cfg,
		store:    store,
		reporter: reporter,
		logger:   logger,
		metrics:  m,
		locks:    newKeyLocker(),
	}
}

// Apply projects one envelope. Only storage failures and context errors are
// returned; in that case nothing of the event was written.
func (d *Dispatcher) Apply(ctx context.Context, env event.Envelope) (Outcome, error) {
	start := time.Now()
	out, err := d.apply(ctx, env)
	if err != nil {
		return Outcome{}, err
	}

	for _, c := range out.Conditions {
		d.reporter.Report(c)
		d.metrics.ObserveCondition(string(c.Kind), string(c.Severity))
	}
	d.metrics.ObserveEvent(string(env.Kind), string(out.Status), time.Since(start))
	if out.Status == StatusDuplicate {
		d.logger.Debug("duplicate event skipped", zap.String("event_key", env.Key()), zap.String("kind", string(env.Kind)))
	}
	return out, nil
}

func (d *Dispatcher) apply(ctx context.Context, env event.Envelope) (Outcome, error) {
	streamRef := model.Ref{Type: model.TypeStreamCursor, Key: env.Stream()}

	if !d.cfg.Contracts.Empty() {
		role, ok := d.cfg.Contracts.Role(env.Contract)
		if !ok || role != env.Kind.Role() {
			return rejected(newCondition(ConditionUnexpectedSource, env, streamRef,
				fmt.Sprintf("%s is not emitted by %s (role %q)", env.Kind, env.Stream(), role))), nil
		}
	}

	p, err := d.plan(env)
	if err != nil {
		return rejected(newCondition(ConditionMalformed, env, streamRef, err.Error())), nil
	}

	keys := make([]string, 0, len(p.refs)+1)
	keys = append(keys, streamRef.String())
	for _, ref := range p.refs {
		keys = append(keys, ref.String())
	}
	unlock := d.locks.Lock(keys)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	var out Outcome
	err = d.store.Update(ctx, func(tx storage.Tx) error {
		out = Outcome{}

		applied, err := tx.Exists(ctx, model.TypeAppliedEvent, env.Key())
		if err != nil {
			return err
		}
		if applied {
			out.Status = StatusDuplicate
			return nil
		}

		cursor, err := loadCursor(ctx, tx, streamRef.Key)
		if err != nil {
			return err
		}
		if cursor != nil {
			last := event.Position{BlockNumber: cursor.BlockNumber, LogIndex: cursor.LogIndex}
			if !last.Less(env.Position()) {
				out = rejected(newCondition(ConditionOutOfOrder, env, streamRef,
					fmt.Sprintf("position %d/%d not after cursor %d/%d", env.BlockNumber, env.LogIndex, cursor.BlockNumber, cursor.LogIndex)))
				return nil
			}
		}

		eff, err := p.run(ctx, tx)
		if err != nil {
			return err
		}
		for _, e := range eff.Inserts {
			if err := tx.Insert(ctx, e); err != nil {
				return err
			}
		}
		for _, e := range eff.Upserts {
			if err := tx.Upsert(ctx, e); err != nil {
				return err
			}
		}
		if err := tx.Insert(ctx, &model.AppliedEvent{
			Key:         env.Key(),
			Stream:      streamRef.Key,
			Kind:        string(env.Kind),
			BlockNumber: env.BlockNumber,
			LogIndex:    env.LogIndex,
		}); err != nil {
			return err
		}
		if err := tx.Upsert(ctx, &model.StreamCursor{
			Stream:      streamRef.Key,
			BlockNumber: env.BlockNumber,
			LogIndex:    env.LogIndex,
		}); err != nil {
			return err
		}

		out.Status = StatusApplied
		out.Conditions = eff.Conditions
		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("apply %s %s: %w", env.Kind, env.Key(), err)
	}
	return out, nil
}

func (d *Dispatcher) plan(env event.Envelope) (plan, error) {
	planFor, ok := planners[env.Kind]
	if !ok {
		return plan{}, fmt.Errorf("no rule for kind %q", env.Kind)
	}
	p, err := planFor(env)
	if err != nil {
		if errors.Is(err, event.ErrMissingParam) || errors.Is(err, event.ErrParamType) {
			return plan{}, err
		}
		return plan{}, fmt.Errorf("%s: %w", env.Kind, err)
	}
	return p, nil
}

func rejected(c Condition) Outcome {
	return Outcome{Status: StatusRejected, Conditions: []Condition{c}}
}

func loadCursor(ctx context.Context, view View, stream string) (*model.StreamCursor, error) {
	e, ok, err := view.Load(ctx, model.TypeStreamCursor, stream)
	if err != nil || !ok {
		return nil, err
	}
	cursor, ok := e.(*model.StreamCursor)
	if !ok {
		return nil, fmt.Errorf("stream cursor %s: unexpected entity %T", stream, e)
	}
	return cursor, nil
}

// BatchResult summarizes an ApplyBatch.
type BatchResult struct {
	Applied    int
	Duplicate  int
	Rejected   int
	Conditions []Condition
}

func (r *BatchResult) add(out Outcome) {
	switch out.Status {
	case StatusApplied:
		r.Applied++
	case StatusDuplicate:
		r.Duplicate++
	case StatusRejected:
		r.Rejected++
	}
	r.Conditions = append(r.Conditions, out.Conditions...)
}

// ApplyBatch applies envelopes, each stream in emission order and different
// streams concurrently. The first storage failure cancels the remaining work
// and is returned; events committed before it stay committed.
func (d *Dispatcher) ApplyBatch(ctx context.Context, envs []event.Envelope) (BatchResult, error) {
	streams := partitionByStream(envs)

	results := make([]BatchResult, len(streams))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for i, stream := range streams {
		i, stream := i, stream
		g.Go(func() error {
			for _, env := range stream {
				out, err := d.Apply(gctx, env)
				if err != nil {
					return err
				}
				results[i].add(out)
			}
			return nil
		})
	}
	err := g.Wait()

	var total BatchResult
	for _, r := range results {
		total.Applied += r.Applied
		total.Duplicate += r.Duplicate
		total.Rejected += r.Rejected
		total.Conditions = append(total.Conditions, r.Conditions...)
	}
	if err != nil {
		return total, err
	}

	d.metrics.ObserveBatch()
	d.logger.Info("batch projected",
		zap.Int("events", len(envs)),
		zap.Int("streams", len(streams)),
		zap.Int("applied", total.Applied),
		zap.Int("duplicate", total.Duplicate),
		zap.Int("rejected", total.Rejected),
		zap.Int("conditions", len(total.Conditions)),
	)
	return total, nil
}

// partitionByStream groups envelopes by stream, each group sorted by
// position, groups ordered by stream key.
func partitionByStream(envs []event.Envelope) [][]event.Envelope {
	byStream := make(map[string][]event.Envelope)
	for _, env := range envs {
		byStream[env.Stream()] = append(byStream[env.Stream()], env)
	}

	keys := make([]string, 0, len(byStream))
	for key := range byStream {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([][]event.Envelope, 0, len(keys))
	for _, key := range keys {
		stream := byStream[key]
		sort.SliceStable(stream, func(i, j int) bool {
			return stream[i].Position().Less(stream[j].Position())
		})
		out = append(out, stream)
	}
	return out
}
