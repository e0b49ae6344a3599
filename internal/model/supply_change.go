package model

import "math/big"

// SupplyDirection is MINT or BURN.
type SupplyDirection string

const (
	SupplyMint SupplyDirection = "MINT"
	SupplyBurn SupplyDirection = "BURN"
)

// SupplyChange is an append-only record of one mint or burn transfer.
type SupplyChange struct {
	ID          string          `json:"id"`
	Direction   SupplyDirection `json:"direction"`
	Account     string          `json:"account"`
	Value       *big.Int        `json:"value"`
	BlockNumber uint64          `json:"block_number"`
	LogIndex    uint64          `json:"log_index"`
	Timestamp   uint64          `json:"timestamp"`
}

func (s *SupplyChange) EntityType() EntityType { return TypeSupplyChange }
func (s *SupplyChange) EntityKey() string      { return s.ID }

func (s *SupplyChange) Clone() Entity {
	c := *s
	c.Value = cloneInt(s.Value)
	return &c
}
