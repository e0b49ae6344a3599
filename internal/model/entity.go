package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// EntityType names a kind of projected entity.
type EntityType string

const (
	TypeSystemState     EntityType = "system_state"
	TypeSwap            EntityType = "swap"
	TypePSMRoute        EntityType = "psm_route"
	TypeAllocator       EntityType = "allocator"
	TypeAllocatorAction EntityType = "allocator_action"
	TypeUser            EntityType = "user"
	TypeSavingsAction   EntityType = "savings_action"
	TypeSupplyChange    EntityType = "supply_change"
	TypeProtocolParam   EntityType = "protocol_param"
	TypeAppliedEvent    EntityType = "applied_event"
	TypeStreamCursor    EntityType = "stream_cursor"
)

// EntityTypes lists every entity type in dependency-free order.
var EntityTypes = []EntityType{
	TypeSystemState,
	TypeSwap,
	TypePSMRoute,
	TypeAllocator,
	TypeAllocatorAction,
	TypeUser,
	TypeSavingsAction,
	TypeSupplyChange,
	TypeProtocolParam,
	TypeAppliedEvent,
	TypeStreamCursor,
}

// AppendOnly reports whether entities of t are inserted once and never mutated.
func (t EntityType) AppendOnly() bool {
	switch t {
	case TypeSwap, TypeAllocatorAction, TypeSavingsAction, TypeSupplyChange, TypeAppliedEvent:
		return true
	default:
		return false
	}
}

// Entity is a keyed, persisted projection record.
type Entity interface {
	EntityType() EntityType
	EntityKey() string
	Clone() Entity
}

// Ref identifies an entity without loading it.
type Ref struct {
	Type EntityType
	Key  string
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.Key)
}

// AddressKey is the canonical key for address-keyed entities.
func AddressKey(address common.Address) string {
	return strings.ToLower(address.Hex())
}

// TxKey is the canonical key for tx-hash-keyed records.
func TxKey(hash common.Hash) string {
	return strings.ToLower(hash.Hex())
}

// LogKey is the canonical key for tx-hash + log-index records.
func LogKey(hash common.Hash, logIndex uint64) string {
	return fmt.Sprintf("%s-%d", TxKey(hash), logIndex)
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// zeroIfNil returns v, or a new zero when v is nil.
func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
