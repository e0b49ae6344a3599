package projector

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"stableMirror/internal/event"
	"stableMirror/internal/model"
	"stableMirror/internal/storage/memory"
)

func TestApplyIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, testContracts)

	mustApply(t, d, lineUpdated(1, 0, allocatorA, 1_000))
	mint := allocatorMint(2, 0, allocatorA, 100)

	if out := mustApply(t, d, mint); out.Status != StatusApplied {
		t.Fatalf("first apply status: %s", out.Status)
	}
	if out := mustApply(t, d, mint); out.Status != StatusDuplicate {
		t.Fatalf("second apply status: %s", out.Status)
	}

	alloc, ok := loadAllocatorT(t, store, allocatorA)
	if !ok || alloc.Debt.Int64() != 100 {
		t.Fatalf("debt mismatch after replay: %+v", alloc)
	}
	if n := countOf(t, store, model.TypeAllocatorAction); n != 1 {
		t.Fatalf("expected one action record, got %d", n)
	}
}

func TestMintThenRepay(t *testing.T) {
	store := memory.NewStore()
	d, reports := newTestDispatcher(store, testContracts)

	mustApply(t, d, lineUpdated(1, 0, allocatorA, 1_000))
	mustApply(t, d, allocatorMint(2, 0, allocatorA, 100))
	mustApply(t, d, allocatorRepay(3, 0, allocatorA, 40))

	alloc, _ := loadAllocatorT(t, store, allocatorA)
	if alloc.Debt.Int64() != 60 {
		t.Fatalf("debt = %s, want 60", alloc.Debt)
	}
	if alloc.Ceiling.Int64() != 1_000 || alloc.DailyCap.Int64() != 100 {
		t.Fatalf("line mismatch: %+v", alloc)
	}
	if len(reports.kinds()) != 0 {
		t.Fatalf("unexpected conditions: %v", reports.kinds())
	}
}

func TestRepayBeforeAnyAllocator(t *testing.T) {
	store := memory.NewStore()
	d, reports := newTestDispatcher(store, testContracts)

	out := mustApply(t, d, allocatorRepay(1, 0, allocatorA, 40))
	if out.Status != StatusApplied {
		t.Fatalf("status: %s", out.Status)
	}
	if len(out.Conditions) != 1 || out.Conditions[0].Kind != ConditionEntityNotFound || out.Conditions[0].Severity != SeverityWarning {
		t.Fatalf("expected entity_not_found warning, got %+v", out.Conditions)
	}
	if !reflect.DeepEqual(reports.kinds(), []ConditionKind{ConditionEntityNotFound}) {
		t.Fatalf("reporter mismatch: %v", reports.kinds())
	}
	if _, ok := loadAllocatorT(t, store, allocatorA); ok {
		t.Fatalf("repay must not create an allocator")
	}
	if n := countOf(t, store, model.TypeAllocatorAction); n != 1 {
		t.Fatalf("action must still be recorded, got %d", n)
	}
}

func TestRepayExceedingDebtIsRejected(t *testing.T) {
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, testContracts)

	mustApply(t, d, lineUpdated(1, 0, allocatorA, 1_000))
	mustApply(t, d, allocatorMint(2, 0, allocatorA, 30))
	out := mustApply(t, d, allocatorRepay(3, 0, allocatorA, 40))

	if len(out.Conditions) != 1 || out.Conditions[0].Kind != ConditionNegativeResult || out.Conditions[0].Severity != SeverityError {
		t.Fatalf("expected negative_result error, got %+v", out.Conditions)
	}
	alloc, _ := loadAllocatorT(t, store, allocatorA)
	if alloc.Debt.Int64() != 30 {
		t.Fatalf("prior debt must be kept, got %s", alloc.Debt)
	}
	if n := countOf(t, store, model.TypeAllocatorAction); n != 2 {
		t.Fatalf("repay record must be appended, got %d", n)
	}
}

func TestMintWithoutLineIsUnattributed(t *testing.T) {
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, testContracts)

	out := mustApply(t, d, allocatorMint(1, 0, allocatorA, 100))
	if len(out.Conditions) != 1 || out.Conditions[0].Kind != ConditionEntityNotFound {
		t.Fatalf("expected entity_not_found, got %+v", out.Conditions)
	}
	if _, ok := loadAllocatorT(t, store, allocatorA); ok {
		t.Fatalf("mint must not create an allocator")
	}

	mustApply(t, d, lineUpdated(2, 0, allocatorA, 500))
	alloc, _ := loadAllocatorT(t, store, allocatorA)
	if alloc.Debt.Sign() != 0 {
		t.Fatalf("new line starts at zero debt, got %s", alloc.Debt)
	}
}

func TestSupplyReconciliation(t *testing.T) {
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, testContracts)

	zero := common.Address{}
	mustApply(t, d, transfer(1, 0, zero, holderAddr, 1_000))
	mustApply(t, d, transfer(2, 0, holderAddr, zero, 300))
	mustApply(t, d, transfer(3, 0, holderAddr, userAddr, 50))

	e, ok, err := store.Load(context.Background(), model.TypeSystemState, model.SystemStateID)
	if err != nil || !ok {
		t.Fatalf("system state missing: %v", err)
	}
	if supply := e.(*model.SystemState).TotalSupply; supply.Int64() != 700 {
		t.Fatalf("totalSupply = %s, want 700", supply)
	}
	if n := countOf(t, store, model.TypeSupplyChange); n != 2 {
		t.Fatalf("expected 2 supply changes, got %d", n)
	}
	if n := countOf(t, store, model.TypeAppliedEvent); n != 3 {
		t.Fatalf("every transfer is marked applied, got %d", n)
	}
}

func TestBurnExceedingSupplyIsRejected(t *testing.T) {
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, testContracts)

	mustApply(t, d, transfer(1, 0, common.Address{}, holderAddr, 10))
	out := mustApply(t, d, transfer(2, 0, holderAddr, common.Address{}, 11))
	if len(out.Conditions) != 1 || out.Conditions[0].Kind != ConditionNegativeResult {
		t.Fatalf("expected negative_result, got %+v", out.Conditions)
	}
	e, _, _ := store.Load(context.Background(), model.TypeSystemState, model.SystemStateID)
	if e.(*model.SystemState).TotalSupply.Int64() != 10 {
		t.Fatalf("supply must keep prior value")
	}
}

func TestSavingsRoundTrip(t *testing.T) {
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, testContracts)

	mustApply(t, d, deposit(1, 0, userAddr, 1_000, 1_000))
	mustApply(t, d, withdraw(2, 0, userAddr, 500, 500))

	e, ok, err := store.Load(context.Background(), model.TypeUser, model.AddressKey(userAddr))
	if err != nil || !ok {
		t.Fatalf("user missing: %v", err)
	}
	if bal := e.(*model.User).SharesBalance; bal.Int64() != 500 {
		t.Fatalf("balance = %s, want 500", bal)
	}

	var types []model.SavingsActionType
	_ = store.Each(context.Background(), model.TypeSavingsAction, func(e model.Entity) error {
		types = append(types, e.(*model.SavingsAction).Type)
		return nil
	})
	if len(types) != 2 {
		t.Fatalf("expected 2 savings actions, got %v", types)
	}
}

func TestWithdrawUnknownUser(t *testing.T) {
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, testContracts)

	out := mustApply(t, d, withdraw(1, 0, userAddr, 5, 5))
	if len(out.Conditions) != 1 || out.Conditions[0].Kind != ConditionEntityNotFound {
		t.Fatalf("expected entity_not_found, got %+v", out.Conditions)
	}
	if ok, _ := store.Exists(context.Background(), model.TypeUser, model.AddressKey(userAddr)); ok {
		t.Fatalf("withdraw must not create a user")
	}
	if n := countOf(t, store, model.TypeSavingsAction); n != 1 {
		t.Fatalf("withdraw record must be appended, got %d", n)
	}
}

func TestRouteLastWriteWins(t *testing.T) {
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, testContracts)

	mustApply(t, d, routeUpdated(1, 0, stableAddr, 5_000, 10))
	mustApply(t, d, routeUpdated(2, 0, stableAddr, 6_000, 25))

	e, ok, _ := store.Load(context.Background(), model.TypePSMRoute, model.AddressKey(stableAddr))
	if !ok {
		t.Fatalf("route missing")
	}
	route := e.(*model.PSMRoute)
	if route.SpreadBps != 25 || route.MaxDepth.Int64() != 6_000 || route.UpdatedBlock != 2 {
		t.Fatalf("route mismatch: %+v", route)
	}

	out := mustApply(t, d, routeUpdated(3, 0, stableAddr, 7_000, 10_001))
	if len(out.Conditions) != 1 || out.Conditions[0].Kind != ConditionOutOfRange {
		t.Fatalf("expected out_of_range, got %+v", out.Conditions)
	}
	e, _, _ = store.Load(context.Background(), model.TypePSMRoute, model.AddressKey(stableAddr))
	if e.(*model.PSMRoute).SpreadBps != 25 {
		t.Fatalf("out of range update must not be applied")
	}
}

func TestSwapDoesNotTouchRoute(t *testing.T) {
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, testContracts)

	mustApply(t, d, routeUpdated(1, 0, stableAddr, 5_000, 10))
	swapParams := map[string]event.Value{
		"user":      event.AddressValue(userAddr),
		"stable":    event.AddressValue(stableAddr),
		"amountIn":  event.UintValue(big.NewInt(100)),
		"amountOut": event.UintValue(big.NewInt(99)),
		"feeAmount": event.UintValue(big.NewInt(1)),
	}
	first := envAt(psmAddr, event.KindSwapObserved, 2, 0, swapParams)
	second := first
	second.LogIndex = 1
	second = event.New(second.Meta, second.Kind, swapParams)

	mustApply(t, d, first)
	mustApply(t, d, second)

	var ids []string
	_ = store.Each(context.Background(), model.TypeSwap, func(e model.Entity) error {
		ids = append(ids, e.EntityKey())
		return nil
	})
	want := []string{model.TxKey(first.TxHash), model.LogKey(first.TxHash, 1)}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("swap keys = %v, want %v", ids, want)
	}

	e, _, _ := store.Load(context.Background(), model.TypePSMRoute, model.AddressKey(stableAddr))
	route := e.(*model.PSMRoute)
	if route.Buffer != nil || route.MaxDepth.Int64() != 5_000 {
		t.Fatalf("swap must not mutate the route: %+v", route)
	}
}

func TestProtocolParams(t *testing.T) {
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, testContracts)

	key := common.BytesToHash([]byte("FEE_RECIPIENT"))
	mustApply(t, d, envAt(registryAddr, event.KindAddressParamUpdated, 1, 0, map[string]event.Value{
		"key":   event.Bytes32Value(key),
		"value": event.AddressValue(holderAddr),
	}))

	e, ok, _ := store.Load(context.Background(), model.TypeProtocolParam, model.TxKey(key))
	if !ok {
		t.Fatalf("param missing")
	}
	param := e.(*model.ProtocolParam)
	if param.Kind != "address" || param.Value != model.AddressKey(holderAddr) {
		t.Fatalf("param mismatch: %+v", param)
	}

	out := mustApply(t, d, envAt(registryAddr, event.KindUintParamUpdated, 2, 0, map[string]event.Value{
		"key":   event.Bytes32Value(key),
		"value": event.BoolValue(true),
	}))
	if out.Status != StatusRejected || out.Conditions[0].Kind != ConditionMalformed {
		t.Fatalf("mistyped value must be malformed, got %+v", out)
	}
}

func TestOutOfOrderIsRejected(t *testing.T) {
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, testContracts)

	mustApply(t, d, lineUpdated(1, 0, allocatorA, 1_000))
	mustApply(t, d, allocatorMint(5, 2, allocatorA, 100))

	out := mustApply(t, d, allocatorMint(5, 1, allocatorA, 7))
	if out.Status != StatusRejected || out.Conditions[0].Kind != ConditionOutOfOrder {
		t.Fatalf("expected out_of_order, got %+v", out)
	}
	alloc, _ := loadAllocatorT(t, store, allocatorA)
	if alloc.Debt.Int64() != 100 {
		t.Fatalf("rejected event must not apply, debt %s", alloc.Debt)
	}
	if ok, _ := store.Exists(context.Background(), model.TypeAppliedEvent, allocatorMint(5, 1, allocatorA, 7).Key()); ok {
		t.Fatalf("rejected event must not be marked applied")
	}

	if out := mustApply(t, d, allocatorMint(5, 2, allocatorA, 100)); out.Status != StatusDuplicate {
		t.Fatalf("replay of the cursor event must be a duplicate, got %s", out.Status)
	}
}

func TestUnexpectedSourceAndMalformed(t *testing.T) {
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, testContracts)

	foreign := envAt(psmAddr, event.KindAllocatorMint, 1, 0, allocatorMint(1, 0, allocatorA, 1).Params())
	out := mustApply(t, d, foreign)
	if out.Status != StatusRejected || out.Conditions[0].Kind != ConditionUnexpectedSource {
		t.Fatalf("expected unexpected_source, got %+v", out)
	}

	missing := envAt(vaultAddr, event.KindAllocatorMint, 1, 1, map[string]event.Value{
		"allocator": event.AddressValue(allocatorA),
	})
	out = mustApply(t, d, missing)
	if out.Status != StatusRejected || out.Conditions[0].Kind != ConditionMalformed {
		t.Fatalf("expected malformed, got %+v", out)
	}

	unknown := envAt(vaultAddr, event.Kind("mystery"), 1, 2, nil)
	if out := mustApply(t, d, unknown); out.Status != StatusRejected {
		t.Fatalf("unknown kind must be rejected, got %s", out.Status)
	}

	if n := countOf(t, store, model.TypeAppliedEvent); n != 0 {
		t.Fatalf("rejected events must not be marked applied, got %d", n)
	}
}

func TestStorageFailureLeavesNothingVisible(t *testing.T) {
	inner := memory.NewStore()
	d, _ := newTestDispatcher(inner, testContracts)
	mustApply(t, d, lineUpdated(1, 0, allocatorA, 1_000))

	broken := &failingStore{Store: inner, failType: model.TypeAllocator}
	failing, _ := newTestDispatcher(broken, testContracts)

	mint := allocatorMint(2, 0, allocatorA, 100)
	if _, err := failing.Apply(context.Background(), mint); !errors.Is(err, errInjected) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if n := countOf(t, inner, model.TypeAllocatorAction); n != 0 {
		t.Fatalf("partial write visible: %d actions", n)
	}
	if ok, _ := inner.Exists(context.Background(), model.TypeAppliedEvent, mint.Key()); ok {
		t.Fatalf("failed event must stay unprocessed")
	}

	if out := mustApply(t, d, mint); out.Status != StatusApplied {
		t.Fatalf("redelivery must apply, got %s", out.Status)
	}
	alloc, _ := loadAllocatorT(t, inner, allocatorA)
	if alloc.Debt.Int64() != 100 {
		t.Fatalf("debt = %s, want 100", alloc.Debt)
	}
}

func TestConcurrentIndependentAllocators(t *testing.T) {
	vaultB := common.HexToAddress("0x0000000000000000000000000000000000000b03")
	onVault := func(contract common.Address, env event.Envelope) event.Envelope {
		meta := env.Meta
		meta.Contract = contract
		return event.New(meta, env.Kind, env.Params())
	}

	streamA := []event.Envelope{
		lineUpdated(1, 0, allocatorA, 1_000),
		allocatorMint(2, 0, allocatorA, 300),
		allocatorRepay(3, 0, allocatorA, 120),
		allocatorMint(4, 0, allocatorA, 5),
	}
	var streamB []event.Envelope
	for i, amount := range []int64{0, 70, 20, 1} {
		var env event.Envelope
		switch i {
		case 0:
			env = lineUpdated(1, 1, allocatorB, 500)
		case 2:
			env = allocatorRepay(uint64(i+1), 1, allocatorB, amount)
		default:
			env = allocatorMint(uint64(i+1), 1, allocatorB, amount)
		}
		streamB = append(streamB, onVault(vaultB, env))
	}

	open := event.Contracts{}
	want := map[string]int64{model.AddressKey(allocatorA): 185, model.AddressKey(allocatorB): 51}

	// Batch path: interleaved and reversed input, streams fanned out.
	var batch []event.Envelope
	for i := len(streamA) - 1; i >= 0; i-- {
		batch = append(batch, streamB[i], streamA[i])
	}
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, open)
	res, err := d.ApplyBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	if res.Applied != 8 || res.Rejected != 0 {
		t.Fatalf("batch result mismatch: %+v", res)
	}
	assertDebts(t, store, want)

	// Direct path: one goroutine per stream.
	store = memory.NewStore()
	d, _ = newTestDispatcher(store, open)
	var wg sync.WaitGroup
	for _, stream := range [][]event.Envelope{streamA, streamB} {
		wg.Add(1)
		go func(stream []event.Envelope) {
			defer wg.Done()
			for _, env := range stream {
				if _, err := d.Apply(context.Background(), env); err != nil {
					t.Errorf("apply: %v", err)
				}
			}
		}(stream)
	}
	wg.Wait()
	assertDebts(t, store, want)

	if d.locks.size() != 0 {
		t.Fatalf("locks leaked: %d", d.locks.size())
	}
}

func assertDebts(t *testing.T, store *memory.Store, want map[string]int64) {
	t.Helper()
	got := map[string]int64{}
	_ = store.Each(context.Background(), model.TypeAllocator, func(e model.Entity) error {
		alloc := e.(*model.Allocator)
		got[alloc.Address] = alloc.Debt.Int64()
		return nil
	})
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("debts = %v, want %v", got, want)
	}
}

func TestApplyBatchStopsOnStorageFailure(t *testing.T) {
	broken := &failingStore{Store: memory.NewStore(), failType: model.TypeStreamCursor}
	d, _ := newTestDispatcher(broken, testContracts)

	_, err := d.ApplyBatch(context.Background(), []event.Envelope{
		lineUpdated(1, 0, allocatorA, 10),
		deposit(1, 0, userAddr, 1, 1),
	})
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if n := broken.Count(model.TypeAppliedEvent); n != 0 {
		t.Fatalf("nothing must be committed, got %d", n)
	}
}
