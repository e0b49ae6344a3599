package projector

import (
	"context"
	"fmt"
	"math/big"

	"stableMirror/internal/event"
	"stableMirror/internal/model"
)

// View is the read side a rule sees: the open store transaction.
type View interface {
	Load(ctx context.Context, typ model.EntityType, key string) (model.Entity, bool, error)
	Exists(ctx context.Context, typ model.EntityType, key string) (bool, error)
}

// Effect is what one rule application writes, plus the conditions it raised.
type Effect struct {
	Upserts    []model.Entity
	Inserts    []model.Entity
	Conditions []Condition
}

func (e *Effect) upsert(entity model.Entity) { e.Upserts = append(e.Upserts, entity) }
func (e *Effect) insert(entity model.Entity) { e.Inserts = append(e.Inserts, entity) }

func (e *Effect) report(kind ConditionKind, env event.Envelope, ref model.Ref, format string, args ...any) {
	e.Conditions = append(e.Conditions, newCondition(kind, env, ref, fmt.Sprintf(format, args...)))
}

// plan is a validated rule application: the aggregates it may mutate,
// known before any lock is taken, and the function that computes it.
type plan struct {
	refs []model.Ref
	run  func(ctx context.Context, view View) (*Effect, error)
}

// planner validates an envelope's params. Its errors mean a malformed event.
type planner func(env event.Envelope) (plan, error)

var planners = map[event.Kind]planner{
	event.KindSwapObserved:        planSwap,
	event.KindRouteUpdated:        planRouteUpdated,
	event.KindAllocatorMint:       planAllocatorMint,
	event.KindAllocatorRepay:      planAllocatorRepay,
	event.KindLineUpdated:         planLineUpdated,
	event.KindSavingsDeposit:      planSavingsDeposit,
	event.KindSavingsWithdraw:     planSavingsWithdraw,
	event.KindTokenTransfer:       planTokenTransfer,
	event.KindAddressParamUpdated: planParamUpdated,
	event.KindUintParamUpdated:    planParamUpdated,
	event.KindBoolParamUpdated:    planParamUpdated,
}

// recordKey returns the tx-hash key for a record, or tx-hash + log index when
// an earlier log of the same transaction already took it.
func recordKey(ctx context.Context, view View, typ model.EntityType, env event.Envelope) (string, error) {
	key := model.TxKey(env.TxHash)
	taken, err := view.Exists(ctx, typ, key)
	if err != nil {
		return "", err
	}
	if taken {
		return model.LogKey(env.TxHash, env.LogIndex), nil
	}
	return key, nil
}

func loadAllocator(ctx context.Context, view View, key string) (*model.Allocator, bool, error) {
	e, ok, err := view.Load(ctx, model.TypeAllocator, key)
	if err != nil || !ok {
		return nil, false, err
	}
	alloc, ok := e.(*model.Allocator)
	if !ok {
		return nil, false, fmt.Errorf("allocator %s: unexpected entity %T", key, e)
	}
	return alloc, true, nil
}

func loadUser(ctx context.Context, view View, key string) (*model.User, bool, error) {
	e, ok, err := view.Load(ctx, model.TypeUser, key)
	if err != nil || !ok {
		return nil, false, err
	}
	user, ok := e.(*model.User)
	if !ok {
		return nil, false, fmt.Errorf("user %s: unexpected entity %T", key, e)
	}
	return user, true, nil
}

// subtract returns a-b, or false when the result would be negative.
func subtract(a, b *big.Int) (*big.Int, bool) {
	if a.Cmp(b) < 0 {
		return nil, false
	}
	return new(big.Int).Sub(a, b), true
}
