package protocol

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"stableMirror/internal/event"
	"stableMirror/internal/model"
)

var (
	ErrUnknownTopic = errors.New("unknown topic0")
	ErrRemovedLog   = errors.New("removed log")
)

type boundEvent struct {
	role event.Role
	kind event.Kind
	abi  abi.Event
}

// Decoder turns raw protocol logs into event envelopes.
type Decoder struct {
	byTopic map[string]boundEvent
}

// NewDecoder builds a decoder covering every protocol event.
func NewDecoder() (*Decoder, error) {
	all, err := ABIs()
	if err != nil {
		return nil, err
	}

	byTopic := make(map[string]boundEvent)
	for role, parsed := range all {
		for name, kind := range eventKinds[role] {
			ev, ok := parsed.Events[name]
			if !ok {
				return nil, fmt.Errorf("abi for %s has no event %s", role, name)
			}
			topic := strings.ToLower(ev.ID.Hex())
			if prev, dup := byTopic[topic]; dup {
				return nil, fmt.Errorf("topic0 %s bound to both %s and %s", topic, prev.kind, kind)
			}
			byTopic[topic] = boundEvent{role: role, kind: kind, abi: ev}
		}
	}
	return &Decoder{byTopic: byTopic}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *Decoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.byTopic[strings.ToLower(topic0)]
	return ok
}

// Topic0s returns every supported topic0, sorted.
func (d *Decoder) Topic0s() []common.Hash {
	out := make([]common.Hash, 0, len(d.byTopic))
	for topic := range d.byTopic {
		out = append(out, common.HexToHash(topic))
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].Hex(), out[j].Hex()) < 0
	})
	return out
}

// Decode converts a LogRecord into an Envelope.
func (d *Decoder) Decode(log model.LogRecord) (event.Envelope, error) {
	if log.Removed {
		return event.Envelope{}, ErrRemovedLog
	}
	if len(log.Topics) == 0 {
		return event.Envelope{}, fmt.Errorf("missing topics")
	}
	bound, ok := d.byTopic[strings.ToLower(log.Topics[0])]
	if !ok {
		return event.Envelope{}, fmt.Errorf("%w: %s", ErrUnknownTopic, log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return event.Envelope{}, fmt.Errorf("invalid contract address: %s", log.Address)
	}

	raw := make(map[string]interface{}, len(bound.abi.Inputs))

	topics, err := parseIndexedTopics(bound.abi, log.Topics)
	if err != nil {
		return event.Envelope{}, fmt.Errorf("%s topics: %w", bound.abi.Name, err)
	}
	if err := abi.ParseTopicsIntoMap(raw, indexedArguments(bound.abi.Inputs), topics); err != nil {
		return event.Envelope{}, fmt.Errorf("%s topics: %w", bound.abi.Name, err)
	}

	data, err := hexutil.Decode(normalizeData(log.Data))
	if err != nil {
		return event.Envelope{}, fmt.Errorf("invalid data: %w", err)
	}
	if err := bound.abi.Inputs.NonIndexed().UnpackIntoMap(raw, data); err != nil {
		return event.Envelope{}, fmt.Errorf("unpack %s: %w", bound.abi.Name, err)
	}

	params := make(map[string]event.Value, len(bound.abi.Inputs))
	for _, arg := range bound.abi.Inputs {
		value, ok := raw[arg.Name]
		if !ok {
			return event.Envelope{}, fmt.Errorf("%s: missing %s", bound.abi.Name, arg.Name)
		}
		converted, err := toValue(arg.Type, value)
		if err != nil {
			return event.Envelope{}, fmt.Errorf("%s %s: %w", bound.abi.Name, arg.Name, err)
		}
		params[arg.Name] = converted
	}

	meta := event.Meta{
		Contract:    common.HexToAddress(log.Address),
		BlockNumber: log.BlockNumber,
		LogIndex:    log.LogIndex,
		TxHash:      common.HexToHash(log.TxHash),
		Timestamp:   log.Timestamp,
	}
	return event.New(meta, bound.kind, params), nil
}

// RoleOf reports the contract role that emits topic0.
func (d *Decoder) RoleOf(topic0 string) (event.Role, bool) {
	bound, ok := d.byTopic[strings.ToLower(topic0)]
	if !ok {
		return event.RoleUnknown, false
	}
	return bound.role, true
}

func toValue(typ abi.Type, value interface{}) (event.Value, error) {
	switch typ.T {
	case abi.AddressTy:
		addr, err := asAddress(value)
		if err != nil {
			return event.Value{}, err
		}
		return event.AddressValue(addr), nil
	case abi.UintTy:
		n, err := asBigInt(value)
		if err != nil {
			return event.Value{}, err
		}
		if typ.Size > 63 {
			return event.UintValue(n), nil
		}
		return event.SmallValue(n.Int64()), nil
	case abi.BoolTy:
		flag, ok := value.(bool)
		if !ok {
			return event.Value{}, fmt.Errorf("unsupported bool type %T", value)
		}
		return event.BoolValue(flag), nil
	case abi.FixedBytesTy:
		if typ.Size != 32 {
			return event.Value{}, fmt.Errorf("unsupported bytes%d", typ.Size)
		}
		switch v := value.(type) {
		case [32]byte:
			return event.Bytes32Value(common.Hash(v)), nil
		case common.Hash:
			return event.Bytes32Value(v), nil
		default:
			return event.Value{}, fmt.Errorf("unsupported bytes32 type %T", value)
		}
	default:
		return event.Value{}, fmt.Errorf("unsupported abi type %s", typ.String())
	}
}

func normalizeData(data string) string {
	if data == "" {
		return "0x"
	}
	return data
}

func parseIndexedTopics(ev abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(ev.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported uint type %T", value)
	}
}
