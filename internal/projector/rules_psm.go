package projector

import (
	"context"
	"fmt"

	"stableMirror/internal/event"
	"stableMirror/internal/model"
)

// planSwap records the swap. Routes are left alone: buffer movement is only
// taken from route events and route sync.
func planSwap(env event.Envelope) (plan, error) {
	user, err := env.Address("user")
	if err != nil {
		return plan{}, err
	}
	stable, err := env.Address("stable")
	if err != nil {
		return plan{}, err
	}
	amountIn, err := env.Uint("amountIn")
	if err != nil {
		return plan{}, err
	}
	amountOut, err := env.Uint("amountOut")
	if err != nil {
		return plan{}, err
	}
	fee, err := env.Uint("feeAmount")
	if err != nil {
		return plan{}, err
	}

	return plan{run: func(ctx context.Context, view View) (*Effect, error) {
		id, err := recordKey(ctx, view, model.TypeSwap, env)
		if err != nil {
			return nil, err
		}
		eff := &Effect{}
		eff.insert(&model.Swap{
			ID:          id,
			User:        model.AddressKey(user),
			Stable:      model.AddressKey(stable),
			AmountIn:    amountIn,
			AmountOut:   amountOut,
			FeeAmount:   fee,
			BlockNumber: env.BlockNumber,
			LogIndex:    env.LogIndex,
			Timestamp:   env.Timestamp,
		})
		return eff, nil
	}}, nil
}

func planRouteUpdated(env event.Envelope) (plan, error) {
	stable, err := env.Address("stable")
	if err != nil {
		return plan{}, err
	}
	maxDepth, err := env.Uint("maxDepth")
	if err != nil {
		return plan{}, err
	}
	spread, err := env.Small("spreadBps")
	if err != nil {
		return plan{}, err
	}
	ref := model.Ref{Type: model.TypePSMRoute, Key: model.AddressKey(stable)}

	return plan{refs: []model.Ref{ref}, run: func(ctx context.Context, view View) (*Effect, error) {
		eff := &Effect{}
		if spread < 0 || spread > model.MaxSpreadBps || maxDepth.Sign() < 0 {
			eff.report(ConditionOutOfRange, env, ref, "spreadBps=%d maxDepth=%s", spread, maxDepth)
			return eff, nil
		}

		var route *model.PSMRoute
		e, ok, err := view.Load(ctx, model.TypePSMRoute, ref.Key)
		if err != nil {
			return nil, err
		}
		if ok {
			if route, ok = e.(*model.PSMRoute); !ok {
				return nil, fmt.Errorf("route %s: unexpected entity %T", ref.Key, e)
			}
		} else {
			route = model.NewPSMRoute(ref.Key)
		}

		route.MaxDepth = maxDepth
		route.SpreadBps = spread
		route.UpdatedBlock = env.BlockNumber
		eff.upsert(route)
		return eff, nil
	}}, nil
}
