package event

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrMissingParam = errors.New("missing param")
	ErrParamType    = errors.New("param type mismatch")
)

// ParamType is the schema type of an envelope param.
type ParamType uint8

const (
	ParamAddress ParamType = iota + 1
	ParamUint
	ParamSmall
	ParamBool
	ParamBytes32
)

func (t ParamType) String() string {
	switch t {
	case ParamAddress:
		return "address"
	case ParamUint:
		return "uint"
	case ParamSmall:
		return "small"
	case ParamBool:
		return "bool"
	case ParamBytes32:
		return "bytes32"
	default:
		return "unknown"
	}
}

// Value is one typed envelope param.
type Value struct {
	typ     ParamType
	address common.Address
	uint    *big.Int
	small   int64
	flag    bool
	bytes32 common.Hash
}

func AddressValue(a common.Address) Value { return Value{typ: ParamAddress, address: a} }

// UintValue copies v; nil is treated as zero.
func UintValue(v *big.Int) Value {
	n := new(big.Int)
	if v != nil {
		n.Set(v)
	}
	return Value{typ: ParamUint, uint: n}
}

func SmallValue(v int64) Value         { return Value{typ: ParamSmall, small: v} }
func BoolValue(v bool) Value           { return Value{typ: ParamBool, flag: v} }
func Bytes32Value(h common.Hash) Value { return Value{typ: ParamBytes32, bytes32: h} }

func (v Value) Type() ParamType { return v.typ }

// String renders the value in its canonical text form.
func (v Value) String() string {
	switch v.typ {
	case ParamAddress:
		return strings.ToLower(v.address.Hex())
	case ParamUint:
		return v.uint.String()
	case ParamSmall:
		return fmt.Sprintf("%d", v.small)
	case ParamBool:
		return fmt.Sprintf("%t", v.flag)
	case ParamBytes32:
		return v.bytes32.Hex()
	default:
		return ""
	}
}

// Meta is the delivery metadata of one on-chain log.
type Meta struct {
	Contract    common.Address
	BlockNumber uint64
	LogIndex    uint64
	TxHash      common.Hash
	Timestamp   uint64
}

// Envelope is one delivered blockchain event. It is immutable: params are
// copied in and accessors return copies.
type Envelope struct {
	Meta
	Kind   Kind
	params map[string]Value
}

// New builds an envelope, copying params.
func New(meta Meta, kind Kind, params map[string]Value) Envelope {
	copied := make(map[string]Value, len(params))
	for name, value := range params {
		copied[name] = value
	}
	return Envelope{Meta: meta, Kind: kind, params: copied}
}

// Key is the natural unique key of the event: tx hash and log index.
func (e Envelope) Key() string {
	return fmt.Sprintf("%s-%d", e.TxHash.Hex(), e.LogIndex)
}

// Stream is the ordering partition of the event: its emitting contract.
func (e Envelope) Stream() string {
	return strings.ToLower(e.Contract.Hex())
}

// Position is the emission position within the stream.
func (e Envelope) Position() Position {
	return Position{BlockNumber: e.BlockNumber, LogIndex: e.LogIndex}
}

// ParamNames returns the sorted param names.
func (e Envelope) ParamNames() []string {
	names := make([]string, 0, len(e.params))
	for name := range e.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Params returns a copy of every param.
func (e Envelope) Params() map[string]Value {
	out := make(map[string]Value, len(e.params))
	for name, value := range e.params {
		out[name] = value
	}
	return out
}

// Param returns the raw param value.
func (e Envelope) Param(name string) (Value, bool) {
	v, ok := e.params[name]
	return v, ok
}

func (e Envelope) typed(name string, want ParamType) (Value, error) {
	v, ok := e.params[name]
	if !ok {
		return Value{}, fmt.Errorf("%s %q: %w", e.Kind, name, ErrMissingParam)
	}
	if v.typ != want {
		return Value{}, fmt.Errorf("%s %q is %s, want %s: %w", e.Kind, name, v.typ, want, ErrParamType)
	}
	return v, nil
}

func (e Envelope) Address(name string) (common.Address, error) {
	v, err := e.typed(name, ParamAddress)
	if err != nil {
		return common.Address{}, err
	}
	return v.address, nil
}

// Uint returns a copy of an unsigned big-integer param.
func (e Envelope) Uint(name string) (*big.Int, error) {
	v, err := e.typed(name, ParamUint)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(v.uint), nil
}

func (e Envelope) Small(name string) (int64, error) {
	v, err := e.typed(name, ParamSmall)
	if err != nil {
		return 0, err
	}
	return v.small, nil
}

func (e Envelope) Bool(name string) (bool, error) {
	v, err := e.typed(name, ParamBool)
	if err != nil {
		return false, err
	}
	return v.flag, nil
}

func (e Envelope) Bytes32(name string) (common.Hash, error) {
	v, err := e.typed(name, ParamBytes32)
	if err != nil {
		return common.Hash{}, err
	}
	return v.bytes32, nil
}

// Position orders events within one stream.
type Position struct {
	BlockNumber uint64
	LogIndex    uint64
}

// Less reports whether p was emitted before o.
func (p Position) Less(o Position) bool {
	if p.BlockNumber != o.BlockNumber {
		return p.BlockNumber < o.BlockNumber
	}
	return p.LogIndex < o.LogIndex
}
