package model

import "math/big"

// User holds savings vault share balances.
type User struct {
	Address       string   `json:"address"`
	SharesBalance *big.Int `json:"s0xusd_balance"`
}

// NewUser returns a user with a zero balance.
func NewUser(address string) *User {
	return &User{Address: address, SharesBalance: new(big.Int)}
}

func (u *User) EntityType() EntityType { return TypeUser }
func (u *User) EntityKey() string      { return u.Address }

func (u *User) Clone() Entity {
	c := *u
	c.SharesBalance = cloneInt(zeroIfNil(u.SharesBalance))
	return &c
}
