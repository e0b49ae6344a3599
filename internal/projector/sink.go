package projector

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"stableMirror/internal/event"
	"stableMirror/internal/model"
)

// LogDecoder turns raw log records into envelopes.
type LogDecoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord) (event.Envelope, error)
}

// DecodeErrorWriter receives records that failed to decode.
type DecodeErrorWriter interface {
	Write(value interface{}) error
}

// SinkStats accumulates what a Sink has seen.
type SinkStats struct {
	Logs      int
	Decoded   int
	Skipped   int
	Failed    int
	Applied   int
	Duplicate int
	Rejected  int
}

// Sink decodes raw log batches and projects them. It satisfies
// storage.Storage so the indexer runner can feed it directly.
type Sink struct {
	decoder    LogDecoder
	dispatcher *Dispatcher
	errors     DecodeErrorWriter
	logger     *zap.Logger

	mu    sync.Mutex
	stats SinkStats
}

// NewSink wires decoder into dispatcher. errs may be nil.
func NewSink(decoder LogDecoder, dispatcher *Dispatcher, errs DecodeErrorWriter, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{decoder: decoder, dispatcher: dispatcher, errors: errs, logger: logger}
}

// PutLogBatch decodes logs and applies the result as one batch. Logs with an
// unknown topic0 are skipped; undecodable logs are written to the error sink.
func (s *Sink) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	envs := make([]event.Envelope, 0, len(logs))
	for _, record := range logs {
		s.stats.Logs++
		if !s.decoder.CanDecode(record.Topic0()) {
			s.stats.Skipped++
			continue
		}
		env, err := s.decoder.Decode(record)
		if err != nil {
			s.stats.Failed++
			if err := s.writeFailure(model.NewDecodeError(record, err)); err != nil {
				return err
			}
			continue
		}
		s.stats.Decoded++
		envs = append(envs, env)
	}
	if len(envs) == 0 {
		return nil
	}

	result, err := s.dispatcher.ApplyBatch(ctx, envs)
	s.stats.Applied += result.Applied
	s.stats.Duplicate += result.Duplicate
	s.stats.Rejected += result.Rejected
	if err != nil {
		return fmt.Errorf("project batch: %w", err)
	}
	return nil
}

// DecodeFailed records a failure that happened before a LogRecord existed,
// such as an unparsable input line.
func (s *Sink) DecodeFailed(record model.DecodeError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Logs++
	s.stats.Failed++
	return s.writeFailure(record)
}

func (s *Sink) writeFailure(record model.DecodeError) error {
	s.logger.Warn("decode failed",
		zap.Uint64("block", record.BlockNumber),
		zap.String("tx_hash", record.TxHash),
		zap.Uint64("log_index", record.LogIndex),
		zap.String("error", record.Error),
	)
	if s.errors == nil {
		return nil
	}
	if err := s.errors.Write(record); err != nil {
		return fmt.Errorf("write decode error: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (s *Sink) Stats() SinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
