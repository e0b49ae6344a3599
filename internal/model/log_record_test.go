package model

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestLogRecordJSONRoundTrip(t *testing.T) {
	original := LogRecord{
		ChainID:     1,
		BlockNumber: 19000000,
		BlockHash:   "0xabc123",
		TxHash:      "0xdef456",
		TxIndex:     7,
		LogIndex:    12,
		Address:     "0x1111111111111111111111111111111111111111",
		Topics:      []string{"0xaaa", "0xbbb"},
		Data:        "0xdeadbeef",
		Removed:     false,
		Timestamp:   1700000000,
		IngestedAt:  "2024-01-01T00:00:00Z",
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded LogRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestLogRecordKeyAndDecodeError(t *testing.T) {
	record := LogRecord{TxHash: "0xDEF456", LogIndex: 4, Address: "0x11", Topics: []string{"0xaaa"}}
	if record.Key() != "0xdef456-4" {
		t.Fatalf("key mismatch: %s", record.Key())
	}

	derr := NewDecodeError(record, errors.New("boom"))
	if derr.Topic0 != "0xaaa" || derr.Contract != "0x11" || derr.Error != "boom" {
		t.Fatalf("decode error mismatch: %+v", derr)
	}
	if (LogRecord{}).Topic0() != "" {
		t.Fatalf("empty topics must yield empty topic0")
	}
}
