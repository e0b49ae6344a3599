package event

// Kind identifies the projection rule an envelope is routed to.
type Kind string

const (
	KindSwapObserved        Kind = "SwapObserved"
	KindRouteUpdated        Kind = "RouteUpdated"
	KindAllocatorMint       Kind = "AllocatorMint"
	KindAllocatorRepay      Kind = "AllocatorRepay"
	KindLineUpdated         Kind = "LineUpdated"
	KindSavingsDeposit      Kind = "SavingsDeposit"
	KindSavingsWithdraw     Kind = "SavingsWithdraw"
	KindTokenTransfer       Kind = "TokenTransfer"
	KindAddressParamUpdated Kind = "AddressParamUpdated"
	KindUintParamUpdated    Kind = "UintParamUpdated"
	KindBoolParamUpdated    Kind = "BoolParamUpdated"
)

// Role is the protocol contract a kind is emitted by.
type Role string

const (
	RoleUnknown        Role = ""
	RoleToken          Role = "token"
	RolePSM            Role = "psm"
	RoleAllocatorVault Role = "allocator-vault"
	RoleSavingsVault   Role = "savings-vault"
	RoleParamRegistry  Role = "param-registry"
)

var kindRoles = map[Kind]Role{
	KindSwapObserved:        RolePSM,
	KindRouteUpdated:        RolePSM,
	KindAllocatorMint:       RoleAllocatorVault,
	KindAllocatorRepay:      RoleAllocatorVault,
	KindLineUpdated:         RoleAllocatorVault,
	KindSavingsDeposit:      RoleSavingsVault,
	KindSavingsWithdraw:     RoleSavingsVault,
	KindTokenTransfer:       RoleToken,
	KindAddressParamUpdated: RoleParamRegistry,
	KindUintParamUpdated:    RoleParamRegistry,
	KindBoolParamUpdated:    RoleParamRegistry,
}

// Role returns the contract role expected to emit k.
func (k Kind) Role() Role {
	return kindRoles[k]
}

// Known reports whether k is a kind the projector understands.
func (k Kind) Known() bool {
	_, ok := kindRoles[k]
	return ok
}

// Kinds returns every known kind.
func Kinds() []Kind {
	return []Kind{
		KindSwapObserved,
		KindRouteUpdated,
		KindAllocatorMint,
		KindAllocatorRepay,
		KindLineUpdated,
		KindSavingsDeposit,
		KindSavingsWithdraw,
		KindTokenTransfer,
		KindAddressParamUpdated,
		KindUintParamUpdated,
		KindBoolParamUpdated,
	}
}
