package model

import "math/big"

// SystemStateID is the well-known key of the SystemState singleton.
const SystemStateID = "0xUSD"

// SystemState holds protocol-wide totals.
type SystemState struct {
	ID          string   `json:"id"`
	TotalSupply *big.Int `json:"total_supply"`
}

// NewSystemState returns the identity value of the singleton.
func NewSystemState() *SystemState {
	return &SystemState{ID: SystemStateID, TotalSupply: new(big.Int)}
}

func (s *SystemState) EntityType() EntityType { return TypeSystemState }
func (s *SystemState) EntityKey() string      { return s.ID }

func (s *SystemState) Clone() Entity {
	c := *s
	c.TotalSupply = cloneInt(zeroIfNil(s.TotalSupply))
	return &c
}
