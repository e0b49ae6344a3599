package model

import "math/big"

// Swap is an append-only record of one PSM swap.
type Swap struct {
	ID          string   `json:"id"`
	User        string   `json:"user"`
	Stable      string   `json:"stable"`
	AmountIn    *big.Int `json:"amount_in"`
	AmountOut   *big.Int `json:"amount_out"`
	FeeAmount   *big.Int `json:"fee_amount"`
	BlockNumber uint64   `json:"block_number"`
	LogIndex    uint64   `json:"log_index"`
	Timestamp   uint64   `json:"timestamp"`
}

func (s *Swap) EntityType() EntityType { return TypeSwap }
func (s *Swap) EntityKey() string      { return s.ID }

func (s *Swap) Clone() Entity {
	c := *s
	c.AmountIn = cloneInt(s.AmountIn)
	c.AmountOut = cloneInt(s.AmountOut)
	c.FeeAmount = cloneInt(s.FeeAmount)
	return &c
}
