package projector

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"stableMirror/internal/event"
	"stableMirror/internal/model"
	"stableMirror/internal/storage"
	"stableMirror/internal/storage/memory"
)

var (
	tokenAddr     = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	psmAddr       = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	vaultAddr     = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	savingsAddr   = common.HexToAddress("0x0000000000000000000000000000000000000a04")
	registryAddr  = common.HexToAddress("0x0000000000000000000000000000000000000a05")
	allocatorA    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	allocatorB    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	userAddr      = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	stableAddr    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	holderAddr    = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	testContracts = event.Contracts{
		Token:          tokenAddr,
		PSM:            psmAddr,
		AllocatorVault: vaultAddr,
		SavingsVault:   savingsAddr,
		ParamRegistry:  registryAddr,
	}
)

type collector struct {
	mu    sync.Mutex
	items []Condition
}

func (c *collector) Report(cond Condition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, cond)
}

func (c *collector) kinds() []ConditionKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ConditionKind, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, item.Kind)
	}
	return out
}

func newTestDispatcher(store storage.EntityStore, contracts event.Contracts) (*Dispatcher, *collector) {
	reports := &collector{}
	return NewDispatcher(Config{Contracts: contracts, Workers: 4}, store, reports, nil, nil), reports
}

// envAt builds an envelope whose tx hash is unique per (block, logIndex).
func envAt(contract common.Address, kind event.Kind, block, logIndex uint64, params map[string]event.Value) event.Envelope {
	return event.New(event.Meta{
		Contract:    contract,
		BlockNumber: block,
		LogIndex:    logIndex,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*10_000 + logIndex)),
		Timestamp:   1_700_000_000 + block,
	}, kind, params)
}

func lineUpdated(block, idx uint64, allocator common.Address, ceiling int64) event.Envelope {
	return envAt(vaultAddr, event.KindLineUpdated, block, idx, map[string]event.Value{
		"allocator": event.AddressValue(allocator),
		"ceiling":   event.UintValue(big.NewInt(ceiling)),
		"dailyCap":  event.UintValue(big.NewInt(ceiling / 10)),
	})
}

func allocatorMint(block, idx uint64, allocator common.Address, amount int64) event.Envelope {
	return envAt(vaultAddr, event.KindAllocatorMint, block, idx, map[string]event.Value{
		"allocator": event.AddressValue(allocator),
		"to":        event.AddressValue(holderAddr),
		"amount":    event.UintValue(big.NewInt(amount)),
	})
}

func allocatorRepay(block, idx uint64, allocator common.Address, amount int64) event.Envelope {
	return envAt(vaultAddr, event.KindAllocatorRepay, block, idx, map[string]event.Value{
		"allocator": event.AddressValue(allocator),
		"repayer":   event.AddressValue(holderAddr),
		"amount":    event.UintValue(big.NewInt(amount)),
	})
}

func transfer(block, idx uint64, from, to common.Address, value int64) event.Envelope {
	return envAt(tokenAddr, event.KindTokenTransfer, block, idx, map[string]event.Value{
		"from":  event.AddressValue(from),
		"to":    event.AddressValue(to),
		"value": event.UintValue(big.NewInt(value)),
	})
}

func deposit(block, idx uint64, user common.Address, assets, shares int64) event.Envelope {
	return envAt(savingsAddr, event.KindSavingsDeposit, block, idx, map[string]event.Value{
		"sender": event.AddressValue(user),
		"owner":  event.AddressValue(user),
		"assets": event.UintValue(big.NewInt(assets)),
		"shares": event.UintValue(big.NewInt(shares)),
	})
}

func withdraw(block, idx uint64, user common.Address, assets, shares int64) event.Envelope {
	return envAt(savingsAddr, event.KindSavingsWithdraw, block, idx, map[string]event.Value{
		"sender":   event.AddressValue(user),
		"receiver": event.AddressValue(user),
		"owner":    event.AddressValue(user),
		"assets":   event.UintValue(big.NewInt(assets)),
		"shares":   event.UintValue(big.NewInt(shares)),
	})
}

func routeUpdated(block, idx uint64, stable common.Address, depth, spread int64) event.Envelope {
	return envAt(psmAddr, event.KindRouteUpdated, block, idx, map[string]event.Value{
		"stable":    event.AddressValue(stable),
		"maxDepth":  event.UintValue(big.NewInt(depth)),
		"spreadBps": event.SmallValue(spread),
	})
}

func mustApply(t *testing.T, d *Dispatcher, env event.Envelope) Outcome {
	t.Helper()
	out, err := d.Apply(context.Background(), env)
	if err != nil {
		t.Fatalf("apply %s: %v", env.Kind, err)
	}
	return out
}

func loadAllocatorT(t *testing.T, store storage.Reader, addr common.Address) (*model.Allocator, bool) {
	t.Helper()
	e, ok, err := store.Load(context.Background(), model.TypeAllocator, model.AddressKey(addr))
	if err != nil {
		t.Fatalf("load allocator: %v", err)
	}
	if !ok {
		return nil, false
	}
	return e.(*model.Allocator), true
}

func countOf(t *testing.T, store storage.Reader, typ model.EntityType) int {
	t.Helper()
	n := 0
	if err := store.Each(context.Background(), typ, func(model.Entity) error {
		n++
		return nil
	}); err != nil {
		t.Fatalf("each %s: %v", typ, err)
	}
	return n
}

var errInjected = errors.New("injected storage failure")

// failingStore fails every Upsert of failType inside Update.
type failingStore struct {
	*memory.Store
	failType model.EntityType
}

func (s *failingStore) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.Store.Update(ctx, func(tx storage.Tx) error {
		return fn(&failingTx{Tx: tx, failType: s.failType})
	})
}

type failingTx struct {
	storage.Tx
	failType model.EntityType
}

func (t *failingTx) Upsert(ctx context.Context, e model.Entity) error {
	if e.EntityType() == t.failType {
		return errInjected
	}
	return t.Tx.Upsert(ctx, e)
}
