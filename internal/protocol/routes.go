package protocol

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// ContractCaller performs eth_call.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// RouteState is the live PSM route as returned by routes(stable).
type RouteState struct {
	MaxDepth  *big.Int
	Buffer    *big.Int
	SpreadBps uint16
	Decimals  uint8
	Halted    bool
}

// ReadRoute calls routes(stable) on the PSM. A nil block reads latest state.
func ReadRoute(ctx context.Context, caller ContractCaller, psm, stable common.Address, block *big.Int) (RouteState, error) {
	if caller == nil {
		return RouteState{}, fmt.Errorf("contract caller is nil")
	}
	psmABI, err := PSMABI()
	if err != nil {
		return RouteState{}, err
	}

	data, err := psmABI.Pack("routes", stable)
	if err != nil {
		return RouteState{}, fmt.Errorf("pack routes: %w", err)
	}
	resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &psm, Data: data}, block)
	if err != nil {
		return RouteState{}, fmt.Errorf("call routes: %w", err)
	}
	values, err := psmABI.Unpack("routes", resp)
	if err != nil {
		return RouteState{}, fmt.Errorf("unpack routes: %w", err)
	}
	if len(values) != 5 {
		return RouteState{}, fmt.Errorf("routes returned %d values", len(values))
	}

	var state RouteState
	if state.MaxDepth, err = asBigInt(values[0]); err != nil {
		return RouteState{}, fmt.Errorf("maxDepth: %w", err)
	}
	if state.Buffer, err = asBigInt(values[1]); err != nil {
		return RouteState{}, fmt.Errorf("buffer: %w", err)
	}
	spread, ok := values[2].(uint16)
	if !ok {
		return RouteState{}, fmt.Errorf("spreadBps: unsupported type %T", values[2])
	}
	decimals, ok := values[3].(uint8)
	if !ok {
		return RouteState{}, fmt.Errorf("decimals: unsupported type %T", values[3])
	}
	halted, ok := values[4].(bool)
	if !ok {
		return RouteState{}, fmt.Errorf("halted: unsupported type %T", values[4])
	}
	state.SpreadBps, state.Decimals, state.Halted = spread, decimals, halted
	return state, nil
}
