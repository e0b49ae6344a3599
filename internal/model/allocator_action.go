package model

import "math/big"

// AllocatorActionType is MINT or REPAY.
type AllocatorActionType string

const (
	AllocatorMint  AllocatorActionType = "MINT"
	AllocatorRepay AllocatorActionType = "REPAY"
)

// AllocatorAction is an append-only record of one mint or repay.
// Counterparty is the mint recipient or the repayer.
type AllocatorAction struct {
	ID           string              `json:"id"`
	Type         AllocatorActionType `json:"type"`
	Allocator    string              `json:"allocator"`
	Counterparty string              `json:"counterparty"`
	Amount       *big.Int            `json:"amount"`
	BlockNumber  uint64              `json:"block_number"`
	LogIndex     uint64              `json:"log_index"`
	Timestamp    uint64              `json:"timestamp"`
}

func (a *AllocatorAction) EntityType() EntityType { return TypeAllocatorAction }
func (a *AllocatorAction) EntityKey() string      { return a.ID }

func (a *AllocatorAction) Clone() Entity {
	c := *a
	c.Amount = cloneInt(a.Amount)
	return &c
}
