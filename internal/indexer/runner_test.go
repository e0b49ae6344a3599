package indexer

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"stableMirror/internal/model"
)

var testPSM = common.HexToAddress("0x0000000000000000000000000000000000000a02")

type fakeSource struct {
	latest uint64
	logs   []types.Log
	ranges []BlockRange
}

func (f *fakeSource) GetChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (f *fakeSource) LatestBlockNumber(context.Context) (uint64, error) {
	return f.latest, nil
}
func (f *fakeSource) BlockTimestamp(_ context.Context, n uint64) (uint64, error) {
	return 1_700_000_000 + n, nil
}

func (f *fakeSource) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	f.ranges = append(f.ranges, BlockRange{From: from, To: to})
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

type recordingSink struct {
	batches [][]model.LogRecord
	failAt  int
}

func (s *recordingSink) PutLogBatch(_ context.Context, logs []model.LogRecord) error {
	if s.failAt > 0 && len(s.batches)+1 == s.failAt {
		return errors.New("sink down")
	}
	s.batches = append(s.batches, logs)
	return nil
}

func testLog(block uint64, index uint) types.Log {
	return types.Log{
		Address:     testPSM,
		Topics:      []common.Hash{common.HexToHash("0x01")},
		BlockNumber: block,
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(block)),
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*100 + uint64(index))),
		Index:       index,
	}
}

func TestRunnerHonorsConfirmationsAndDedup(t *testing.T) {
	dup := testLog(3, 0)
	source := &fakeSource{latest: 20, logs: []types.Log{testLog(1, 0), dup, dup, testLog(8, 1), testLog(15, 0)}}
	sink := &recordingSink{}

	runner, err := NewRunner(RunConfig{
		FromBlock:     1,
		Confirmations: 10,
		Addresses:     []common.Address{testPSM},
		BatchSize:     5,
	}, source, sink, nil)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(source.ranges) != 2 || source.ranges[1].To != 10 {
		t.Fatalf("ranges must stop at the safe head: %+v", source.ranges)
	}
	total := 0
	for _, batch := range sink.batches {
		total += len(batch)
	}
	if total != 3 {
		t.Fatalf("expected 3 unique logs, got %d", total)
	}
	first := sink.batches[0][0]
	if first.Timestamp != 1_700_000_001 || first.Address != "0x0000000000000000000000000000000000000a02" {
		t.Fatalf("record mismatch: %+v", first)
	}
}

func TestRunnerCheckpointAfterSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	source := &fakeSource{logs: []types.Log{testLog(2, 0), testLog(7, 0)}}
	sink := &recordingSink{failAt: 2}
	cfg := RunConfig{
		FromBlock:         1,
		ToBlock:           10,
		Addresses:         []common.Address{testPSM},
		BatchSize:         5,
		CheckpointPath:    path,
		CheckpointEnabled: true,
	}

	runner, _ := NewRunner(cfg, source, sink, nil)
	if err := runner.Run(context.Background()); err == nil {
		t.Fatalf("expected sink failure")
	}
	cp, ok, err := NewCheckpointStore(path, true).Load(1)
	if err != nil || !ok || cp.LastProcessedBlock != 5 {
		t.Fatalf("checkpoint must stop before the failed range: %+v %v %v", cp, ok, err)
	}

	sink.failAt = 0
	source.ranges = nil
	runner, _ = NewRunner(cfg, source, sink, nil)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(source.ranges) != 1 || source.ranges[0].From != 6 {
		t.Fatalf("resume must start after checkpoint: %+v", source.ranges)
	}
}
