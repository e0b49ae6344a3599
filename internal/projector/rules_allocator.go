package projector

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stableMirror/internal/event"
	"stableMirror/internal/model"
)

type allocatorParams struct {
	allocator    common.Address
	counterparty common.Address
	amount       *big.Int
}

func parseAllocatorParams(env event.Envelope, counterparty string) (allocatorParams, error) {
	var p allocatorParams
	var err error
	if p.allocator, err = env.Address("allocator"); err != nil {
		return p, err
	}
	if p.counterparty, err = env.Address(counterparty); err != nil {
		return p, err
	}
	if p.amount, err = env.Uint("amount"); err != nil {
		return p, err
	}
	return p, nil
}

func allocatorRef(addr common.Address) model.Ref {
	return model.Ref{Type: model.TypeAllocator, Key: model.AddressKey(addr)}
}

func newAllocatorAction(env event.Envelope, id string, typ model.AllocatorActionType, p allocatorParams) *model.AllocatorAction {
	return &model.AllocatorAction{
		ID:           id,
		Type:         typ,
		Allocator:    model.AddressKey(p.allocator),
		Counterparty: model.AddressKey(p.counterparty),
		Amount:       p.amount,
		BlockNumber:  env.BlockNumber,
		LogIndex:     env.LogIndex,
		Timestamp:    env.Timestamp,
	}
}

// planAllocatorMint raises debt of a known allocator. A mint against an
// allocator without a line is recorded but not attributed.
func planAllocatorMint(env event.Envelope) (plan, error) {
	p, err := parseAllocatorParams(env, "to")
	if err != nil {
		return plan{}, err
	}
	ref := allocatorRef(p.allocator)

	return plan{refs: []model.Ref{ref}, run: func(ctx context.Context, view View) (*Effect, error) {
		eff := &Effect{}
		alloc, ok, err := loadAllocator(ctx, view, ref.Key)
		if err != nil {
			return nil, err
		}
		if ok {
			alloc.Debt = new(big.Int).Add(alloc.Debt, p.amount)
			eff.upsert(alloc)
		} else {
			eff.report(ConditionEntityNotFound, env, ref, "mint of %s against unknown allocator", p.amount)
		}

		id, err := recordKey(ctx, view, model.TypeAllocatorAction, env)
		if err != nil {
			return nil, err
		}
		eff.insert(newAllocatorAction(env, id, model.AllocatorMint, p))
		return eff, nil
	}}, nil
}

// planAllocatorRepay lowers debt of a known allocator. A repay larger than
// the debt is rejected and the prior debt kept.
func planAllocatorRepay(env event.Envelope) (plan, error) {
	p, err := parseAllocatorParams(env, "repayer")
	if err != nil {
		return plan{}, err
	}
	ref := allocatorRef(p.allocator)

	return plan{refs: []model.Ref{ref}, run: func(ctx context.Context, view View) (*Effect, error) {
		eff := &Effect{}
		alloc, ok, err := loadAllocator(ctx, view, ref.Key)
		if err != nil {
			return nil, err
		}
		switch {
		case !ok:
			eff.report(ConditionEntityNotFound, env, ref, "repay of %s against unknown allocator", p.amount)
		default:
			debt, nonNegative := subtract(alloc.Debt, p.amount)
			if !nonNegative {
				eff.report(ConditionNegativeResult, env, ref, "repay %s exceeds debt %s", p.amount, alloc.Debt)
				break
			}
			alloc.Debt = debt
			eff.upsert(alloc)
		}

		id, err := recordKey(ctx, view, model.TypeAllocatorAction, env)
		if err != nil {
			return nil, err
		}
		eff.insert(newAllocatorAction(env, id, model.AllocatorRepay, p))
		return eff, nil
	}}, nil
}

func planLineUpdated(env event.Envelope) (plan, error) {
	addr, err := env.Address("allocator")
	if err != nil {
		return plan{}, err
	}
	ceiling, err := env.Uint("ceiling")
	if err != nil {
		return plan{}, err
	}
	dailyCap, err := env.Uint("dailyCap")
	if err != nil {
		return plan{}, err
	}
	ref := allocatorRef(addr)

	return plan{refs: []model.Ref{ref}, run: func(ctx context.Context, view View) (*Effect, error) {
		alloc, ok, err := loadAllocator(ctx, view, ref.Key)
		if err != nil {
			return nil, err
		}
		if !ok {
			alloc = model.NewAllocator(ref.Key)
		}
		alloc.Ceiling = ceiling
		alloc.DailyCap = dailyCap

		eff := &Effect{}
		eff.upsert(alloc)
		return eff, nil
	}}, nil
}
