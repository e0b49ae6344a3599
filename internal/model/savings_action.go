package model

import "math/big"

// SavingsActionType is DEPOSIT or WITHDRAW.
type SavingsActionType string

const (
	SavingsDeposit  SavingsActionType = "DEPOSIT"
	SavingsWithdraw SavingsActionType = "WITHDRAW"
)

// SavingsAction is an append-only record of one vault deposit or withdraw,
// keyed by tx hash and log index.
type SavingsAction struct {
	ID          string            `json:"id"`
	Type        SavingsActionType `json:"type"`
	User        string            `json:"user"`
	Owner       string            `json:"owner"`
	Receiver    string            `json:"receiver,omitempty"`
	Assets      *big.Int          `json:"assets"`
	Shares      *big.Int          `json:"shares"`
	BlockNumber uint64            `json:"block_number"`
	LogIndex    uint64            `json:"log_index"`
	Timestamp   uint64            `json:"timestamp"`
}

func (a *SavingsAction) EntityType() EntityType { return TypeSavingsAction }
func (a *SavingsAction) EntityKey() string      { return a.ID }

func (a *SavingsAction) Clone() Entity {
	c := *a
	c.Assets = cloneInt(a.Assets)
	c.Shares = cloneInt(a.Shares)
	return &c
}
