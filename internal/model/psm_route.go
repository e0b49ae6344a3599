package model

import "math/big"

// MaxSpreadBps is the upper bound of a route spread in basis points.
const MaxSpreadBps = 10_000

// PSMRoute is the per-stablecoin PSM configuration.
// Buffer, Decimals and Halted are only known once read from chain.
type PSMRoute struct {
	Stable       string   `json:"stable"`
	MaxDepth     *big.Int `json:"max_depth"`
	SpreadBps    int64    `json:"spread_bps"`
	Buffer       *big.Int `json:"buffer,omitempty"`
	Decimals     *uint8   `json:"decimals,omitempty"`
	Halted       bool     `json:"halted"`
	UpdatedBlock uint64   `json:"updated_block"`
}

// NewPSMRoute returns an unconfigured route for stable.
func NewPSMRoute(stable string) *PSMRoute {
	return &PSMRoute{Stable: stable, MaxDepth: new(big.Int)}
}

func (r *PSMRoute) EntityType() EntityType { return TypePSMRoute }
func (r *PSMRoute) EntityKey() string      { return r.Stable }

func (r *PSMRoute) Clone() Entity {
	c := *r
	c.MaxDepth = cloneInt(zeroIfNil(r.MaxDepth))
	c.Buffer = cloneInt(r.Buffer)
	if r.Decimals != nil {
		d := *r.Decimals
		c.Decimals = &d
	}
	return &c
}
