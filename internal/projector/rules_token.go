package projector

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stableMirror/internal/event"
	"stableMirror/internal/model"
)

var systemStateRef = model.Ref{Type: model.TypeSystemState, Key: model.SystemStateID}

// planTokenTransfer keeps totalSupply from mint and burn transfers. Transfers
// between two non-zero accounts do nothing.
func planTokenTransfer(env event.Envelope) (plan, error) {
	from, err := env.Address("from")
	if err != nil {
		return plan{}, err
	}
	to, err := env.Address("to")
	if err != nil {
		return plan{}, err
	}
	value, err := env.Uint("value")
	if err != nil {
		return plan{}, err
	}

	mint := from == (common.Address{})
	burn := to == (common.Address{})
	if !mint && !burn {
		return plan{run: func(context.Context, View) (*Effect, error) {
			return &Effect{}, nil
		}}, nil
	}

	return plan{refs: []model.Ref{systemStateRef}, run: func(ctx context.Context, view View) (*Effect, error) {
		state, err := loadSystemState(ctx, view)
		if err != nil {
			return nil, err
		}

		eff := &Effect{}
		id := model.LogKey(env.TxHash, env.LogIndex)
		changed := false
		if mint {
			state.TotalSupply = new(big.Int).Add(state.TotalSupply, value)
			changed = true
			eff.insert(newSupplyChange(env, id, model.SupplyMint, to, value))
		}
		if burn {
			if mint {
				id += "-burn"
			}
			if next, nonNegative := subtract(state.TotalSupply, value); nonNegative {
				state.TotalSupply = next
				changed = true
			} else {
				eff.report(ConditionNegativeResult, env, systemStateRef, "burn %s exceeds supply %s", value, state.TotalSupply)
			}
			eff.insert(newSupplyChange(env, id, model.SupplyBurn, from, value))
		}
		if changed {
			eff.upsert(state)
		}
		return eff, nil
	}}, nil
}

func loadSystemState(ctx context.Context, view View) (*model.SystemState, error) {
	e, ok, err := view.Load(ctx, model.TypeSystemState, model.SystemStateID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return model.NewSystemState(), nil
	}
	state, ok := e.(*model.SystemState)
	if !ok {
		return nil, fmt.Errorf("system state: unexpected entity %T", e)
	}
	return state, nil
}

func newSupplyChange(env event.Envelope, id string, dir model.SupplyDirection, account common.Address, value *big.Int) *model.SupplyChange {
	return &model.SupplyChange{
		ID:          id,
		Direction:   dir,
		Account:     model.AddressKey(account),
		Value:       value,
		BlockNumber: env.BlockNumber,
		LogIndex:    env.LogIndex,
		Timestamp:   env.Timestamp,
	}
}
