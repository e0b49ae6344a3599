package projector

import (
	"go.uber.org/zap"

	"stableMirror/internal/event"
	"stableMirror/internal/model"
)

// ConditionKind names a data-integrity condition.
type ConditionKind string

const (
	ConditionEntityNotFound   ConditionKind = "entity_not_found"
	ConditionNegativeResult   ConditionKind = "negative_result"
	ConditionOutOfRange       ConditionKind = "out_of_range"
	ConditionOutOfOrder       ConditionKind = "out_of_order"
	ConditionMalformed        ConditionKind = "malformed"
	ConditionUnexpectedSource ConditionKind = "unexpected_source"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Severity of a condition kind. Missing aggregates and foreign sources are
// expected under loose delivery order; everything else means the projection
// disagrees with chain truth.
func (k ConditionKind) Severity() Severity {
	switch k {
	case ConditionEntityNotFound, ConditionUnexpectedSource:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// Condition is one structured data-integrity report. Conditions never stop
// the stream.
type Condition struct {
	Kind     ConditionKind `json:"condition"`
	Severity Severity      `json:"severity"`
	EventKey string        `json:"event_key"`
	Event    event.Kind    `json:"kind"`
	Entity   model.Ref     `json:"entity"`
	Detail   string        `json:"detail,omitempty"`
}

func newCondition(kind ConditionKind, env event.Envelope, ref model.Ref, detail string) Condition {
	return Condition{
		Kind:     kind,
		Severity: kind.Severity(),
		EventKey: env.Key(),
		Event:    env.Kind,
		Entity:   ref,
		Detail:   detail,
	}
}

// Reporter receives conditions after the event they belong to is settled.
type Reporter interface {
	Report(c Condition)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(c Condition)

func (f ReporterFunc) Report(c Condition) { f(c) }

// LogReporter writes conditions to a zap logger.
type LogReporter struct {
	logger *zap.Logger
}

func NewLogReporter(logger *zap.Logger) *LogReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(c Condition) {
	fields := []zap.Field{
		zap.String("condition", string(c.Kind)),
		zap.String("event_key", c.EventKey),
		zap.String("kind", string(c.Event)),
		zap.String("entity_type", string(c.Entity.Type)),
		zap.String("entity_key", c.Entity.Key),
	}
	if c.Detail != "" {
		fields = append(fields, zap.String("detail", c.Detail))
	}
	if c.Severity == SeverityWarning {
		r.logger.Warn("integrity warning", fields...)
		return
	}
	r.logger.Error("integrity error", fields...)
}
