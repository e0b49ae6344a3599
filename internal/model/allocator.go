package model

import "math/big"

// Allocator is an address holding a mint line against the stablecoin.
type Allocator struct {
	Address  string   `json:"address"`
	Ceiling  *big.Int `json:"ceiling"`
	DailyCap *big.Int `json:"daily_cap"`
	Debt     *big.Int `json:"debt"`
}

// NewAllocator returns an allocator with zero line and zero debt.
func NewAllocator(address string) *Allocator {
	return &Allocator{
		Address:  address,
		Ceiling:  new(big.Int),
		DailyCap: new(big.Int),
		Debt:     new(big.Int),
	}
}

func (a *Allocator) EntityType() EntityType { return TypeAllocator }
func (a *Allocator) EntityKey() string      { return a.Address }

func (a *Allocator) Clone() Entity {
	c := *a
	c.Ceiling = cloneInt(zeroIfNil(a.Ceiling))
	c.DailyCap = cloneInt(zeroIfNil(a.DailyCap))
	c.Debt = cloneInt(zeroIfNil(a.Debt))
	return &c
}
