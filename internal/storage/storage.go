package storage

import (
	"context"
	"errors"

	"stableMirror/internal/model"
)

// ErrExists is returned when inserting an append-only entity whose key is taken.
var ErrExists = errors.New("entity already exists")

// Storage defines a sink for raw log records.
type Storage interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
}

// Reader reads projected entities. Returned entities are copies owned by
// the caller.
type Reader interface {
	Load(ctx context.Context, typ model.EntityType, key string) (model.Entity, bool, error)
	Exists(ctx context.Context, typ model.EntityType, key string) (bool, error)
	// Each visits every entity of typ in key order. Returning an error stops
	// the iteration.
	Each(ctx context.Context, typ model.EntityType, fn func(model.Entity) error) error
}

// Tx is one all-or-nothing unit of writes. Reads observe the transaction's
// own writes.
type Tx interface {
	Reader
	Upsert(ctx context.Context, entity model.Entity) error
	// Insert creates an append-only entity and fails with ErrExists when the
	// key is already present.
	Insert(ctx context.Context, entity model.Entity) error
}

// EntityStore is keyed persistent storage for projected entities.
type EntityStore interface {
	Reader
	// Update runs fn in a transaction. Writes become visible only when fn
	// returns nil and the commit succeeds.
	Update(ctx context.Context, fn func(tx Tx) error) error
	Close()
}
