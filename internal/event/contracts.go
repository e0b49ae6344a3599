package event

import (
	"github.com/ethereum/go-ethereum/common"
)

// Contracts is the set of protocol contract addresses being mirrored.
// A zero address means the role is not mirrored.
type Contracts struct {
	Token          common.Address
	PSM            common.Address
	AllocatorVault common.Address
	SavingsVault   common.Address
	ParamRegistry  common.Address
}

// Role returns the role held by address.
func (c Contracts) Role(address common.Address) (Role, bool) {
	if address == (common.Address{}) {
		return RoleUnknown, false
	}
	switch address {
	case c.Token:
		return RoleToken, true
	case c.PSM:
		return RolePSM, true
	case c.AllocatorVault:
		return RoleAllocatorVault, true
	case c.SavingsVault:
		return RoleSavingsVault, true
	case c.ParamRegistry:
		return RoleParamRegistry, true
	default:
		return RoleUnknown, false
	}
}

// Addresses returns the configured (non-zero) contract addresses.
func (c Contracts) Addresses() []common.Address {
	all := []common.Address{c.Token, c.PSM, c.AllocatorVault, c.SavingsVault, c.ParamRegistry}
	out := make([]common.Address, 0, len(all))
	for _, addr := range all {
		if addr != (common.Address{}) {
			out = append(out, addr)
		}
	}
	return out
}

// Empty reports whether no contract is configured.
func (c Contracts) Empty() bool {
	return len(c.Addresses()) == 0
}
