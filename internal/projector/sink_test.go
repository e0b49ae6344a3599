package projector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"stableMirror/internal/event"
	"stableMirror/internal/model"
	"stableMirror/internal/storage/memory"
)

const knownTopic = "0xfeed"

type fakeDecoder struct {
	byKey map[string]event.Envelope
}

func (f fakeDecoder) CanDecode(topic0 string) bool { return topic0 == knownTopic }

func (f fakeDecoder) Decode(log model.LogRecord) (event.Envelope, error) {
	env, ok := f.byKey[log.Key()]
	if !ok {
		return event.Envelope{}, errors.New("bad payload")
	}
	return env, nil
}

type errorLines struct {
	items []model.DecodeError
}

func (e *errorLines) Write(value interface{}) error {
	e.items = append(e.items, value.(model.DecodeError))
	return nil
}

func recordFor(env event.Envelope, topic0 string) model.LogRecord {
	return model.LogRecord{
		BlockNumber: env.BlockNumber,
		TxHash:      env.TxHash.Hex(),
		LogIndex:    env.LogIndex,
		Address:     strings.ToLower(env.Contract.Hex()),
		Topics:      []string{topic0},
	}
}

func TestSinkDecodesAndProjects(t *testing.T) {
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, testContracts)

	line := lineUpdated(1, 0, allocatorA, 1000)
	mint := allocatorMint(2, 0, allocatorA, 300)
	dec := fakeDecoder{byKey: map[string]event.Envelope{}}
	for _, env := range []event.Envelope{line, mint} {
		dec.byKey[recordFor(env, knownTopic).Key()] = env
	}

	errs := &errorLines{}
	sink := NewSink(dec, d, errs, nil)

	broken := recordFor(allocatorMint(3, 0, allocatorA, 1), knownTopic)
	other := recordFor(allocatorMint(4, 0, allocatorA, 1), "0xother")
	logs := []model.LogRecord{recordFor(mint, knownTopic), recordFor(line, knownTopic), broken, other}

	if err := sink.PutLogBatch(context.Background(), logs); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := sink.PutLogBatch(context.Background(), logs[:2]); err != nil {
		t.Fatalf("replay: %v", err)
	}

	got := sink.Stats()
	want := SinkStats{Logs: 6, Decoded: 4, Skipped: 1, Failed: 1, Applied: 2, Duplicate: 2}
	if got != want {
		t.Fatalf("stats mismatch: %+v != %+v", got, want)
	}
	if len(errs.items) != 1 || errs.items[0].TxHash != broken.TxHash || errs.items[0].Error != "bad payload" {
		t.Fatalf("decode errors mismatch: %+v", errs.items)
	}

	alloc, _ := loadAllocatorT(t, store, allocatorA)
	if alloc.Debt.Int64() != 300 || alloc.Ceiling.Int64() != 1000 {
		t.Fatalf("allocator mismatch: debt=%s ceiling=%s", alloc.Debt, alloc.Ceiling)
	}
}

func TestSinkDecodeFailedCounts(t *testing.T) {
	store := memory.NewStore()
	d, _ := newTestDispatcher(store, testContracts)
	errs := &errorLines{}
	sink := NewSink(fakeDecoder{}, d, errs, nil)

	if err := sink.DecodeFailed(model.DecodeError{Error: "unexpected end of JSON input"}); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got := sink.Stats(); got.Logs != 1 || got.Failed != 1 {
		t.Fatalf("stats mismatch: %+v", got)
	}
	if len(errs.items) != 1 {
		t.Fatalf("expected one error line, got %d", len(errs.items))
	}
}
