package projector

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stableMirror/internal/event"
	"stableMirror/internal/model"
)

type savingsParams struct {
	sender   common.Address
	owner    common.Address
	receiver common.Address
	assets   *big.Int
	shares   *big.Int
}

func parseSavingsParams(env event.Envelope, withReceiver bool) (savingsParams, error) {
	var p savingsParams
	var err error
	if p.sender, err = env.Address("sender"); err != nil {
		return p, err
	}
	if p.owner, err = env.Address("owner"); err != nil {
		return p, err
	}
	if withReceiver {
		if p.receiver, err = env.Address("receiver"); err != nil {
			return p, err
		}
	}
	if p.assets, err = env.Uint("assets"); err != nil {
		return p, err
	}
	if p.shares, err = env.Uint("shares"); err != nil {
		return p, err
	}
	return p, nil
}

// Balances are tracked per sender, the account that called the vault.
func userRef(p savingsParams) model.Ref {
	return model.Ref{Type: model.TypeUser, Key: model.AddressKey(p.sender)}
}

func newSavingsAction(env event.Envelope, typ model.SavingsActionType, p savingsParams) *model.SavingsAction {
	action := &model.SavingsAction{
		ID:          model.LogKey(env.TxHash, env.LogIndex),
		Type:        typ,
		User:        model.AddressKey(p.sender),
		Owner:       model.AddressKey(p.owner),
		Assets:      p.assets,
		Shares:      p.shares,
		BlockNumber: env.BlockNumber,
		LogIndex:    env.LogIndex,
		Timestamp:   env.Timestamp,
	}
	if p.receiver != (common.Address{}) {
		action.Receiver = model.AddressKey(p.receiver)
	}
	return action
}

func planSavingsDeposit(env event.Envelope) (plan, error) {
	p, err := parseSavingsParams(env, false)
	if err != nil {
		return plan{}, err
	}
	ref := userRef(p)

	return plan{refs: []model.Ref{ref}, run: func(ctx context.Context, view View) (*Effect, error) {
		user, ok, err := loadUser(ctx, view, ref.Key)
		if err != nil {
			return nil, err
		}
		if !ok {
			user = model.NewUser(ref.Key)
		}
		user.SharesBalance = new(big.Int).Add(user.SharesBalance, p.shares)

		eff := &Effect{}
		eff.upsert(user)
		eff.insert(newSavingsAction(env, model.SavingsDeposit, p))
		return eff, nil
	}}, nil
}

func planSavingsWithdraw(env event.Envelope) (plan, error) {
	p, err := parseSavingsParams(env, true)
	if err != nil {
		return plan{}, err
	}
	ref := userRef(p)

	return plan{refs: []model.Ref{ref}, run: func(ctx context.Context, view View) (*Effect, error) {
		eff := &Effect{}
		user, ok, err := loadUser(ctx, view, ref.Key)
		if err != nil {
			return nil, err
		}
		if !ok {
			eff.report(ConditionEntityNotFound, env, ref, "withdraw of %s shares by unknown user", p.shares)
		} else if balance, nonNegative := subtract(user.SharesBalance, p.shares); !nonNegative {
			eff.report(ConditionNegativeResult, env, ref, "withdraw %s exceeds balance %s", p.shares, user.SharesBalance)
		} else {
			user.SharesBalance = balance
			eff.upsert(user)
		}

		eff.insert(newSavingsAction(env, model.SavingsWithdraw, p))
		return eff, nil
	}}, nil
}
