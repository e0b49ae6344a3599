package reconcile

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"stableMirror/internal/event"
	"stableMirror/internal/model"
	"stableMirror/internal/projector"
	"stableMirror/internal/storage/memory"
)

func TestCheckAfterProjection(t *testing.T) {
	vault := common.HexToAddress("0x0000000000000000000000000000000000000a03")
	allocator := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	meta := func(block uint64) event.Meta {
		return event.Meta{
			Contract:    vault,
			BlockNumber: block,
			TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
		}
	}
	amount := func(kind event.Kind, block uint64, party string, v int64) event.Envelope {
		return event.New(meta(block), kind, map[string]event.Value{
			"allocator": event.AddressValue(allocator),
			party:       event.AddressValue(vault),
			"amount":    event.UintValue(big.NewInt(v)),
		})
	}

	store := memory.NewStore()
	d := projector.NewDispatcher(projector.Config{}, store, nil, nil, nil)
	_, err := d.ApplyBatch(context.Background(), []event.Envelope{
		event.New(meta(1), event.KindLineUpdated, map[string]event.Value{
			"allocator": event.AddressValue(allocator),
			"ceiling":   event.UintValue(big.NewInt(1_000)),
			"dailyCap":  event.UintValue(big.NewInt(100)),
		}),
		amount(event.KindAllocatorMint, 2, "to", 100),
		amount(event.KindAllocatorRepay, 3, "repayer", 40),
	})
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}

	report, err := Check(context.Background(), store)
	if err != nil || !report.OK() {
		t.Fatalf("consistent projection reported %v %+v", err, report.Violations)
	}

	// A rejected over-repay keeps the debt but appends its record.
	if _, err := d.Apply(context.Background(), amount(event.KindAllocatorRepay, 4, "repayer", 500)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	report, err = Check(context.Background(), store)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(report.Violations) != 1 || report.Violations[0].Check != CheckAllocatorDebt {
		t.Fatalf("expected allocator_debt violation, got %+v", report.Violations)
	}
	if report.Violations[0].Entity.Key != model.AddressKey(allocator) {
		t.Fatalf("violation entity mismatch: %+v", report.Violations[0])
	}
}
