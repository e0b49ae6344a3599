package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"stableMirror/internal/model"
	"stableMirror/internal/storage"
)

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides Postgres persistence for projected entities.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing projection tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, typ model.EntityType, key string) (model.Entity, bool, error) {
	return load(ctx, s.pool, typ, key, false)
}

func (s *Store) Exists(ctx context.Context, typ model.EntityType, key string) (bool, error) {
	return exists(ctx, s.pool, typ, key)
}

func (s *Store) Each(ctx context.Context, typ model.EntityType, fn func(model.Entity) error) error {
	return each(ctx, s.pool, typ, fn)
}

// Update runs fn in one database transaction.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(&tx{tx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("commit: %w", storage.ErrExists)
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// tx locks aggregate rows it loads so concurrent writers to the same key
// serialize at the database too.
type tx struct {
	tx pgx.Tx
}

func (t *tx) Load(ctx context.Context, typ model.EntityType, key string) (model.Entity, bool, error) {
	return load(ctx, t.tx, typ, key, !typ.AppendOnly())
}

func (t *tx) Exists(ctx context.Context, typ model.EntityType, key string) (bool, error) {
	return exists(ctx, t.tx, typ, key)
}

func (t *tx) Each(ctx context.Context, typ model.EntityType, fn func(model.Entity) error) error {
	return each(ctx, t.tx, typ, fn)
}

func (t *tx) Upsert(ctx context.Context, e model.Entity) error {
	if e.EntityType().AppendOnly() {
		return fmt.Errorf("upsert %s/%s: append-only entity", e.EntityType(), e.EntityKey())
	}
	tbl, err := tableFor(e.EntityType())
	if err != nil {
		return err
	}
	args, err := tbl.encode(e)
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, tbl.upsertSQL(), args...); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", e.EntityType(), e.EntityKey(), err)
	}
	return nil
}

func (t *tx) Insert(ctx context.Context, e model.Entity) error {
	tbl, err := tableFor(e.EntityType())
	if err != nil {
		return err
	}
	args, err := tbl.encode(e)
	if err != nil {
		return err
	}

	// A failed statement aborts the whole pg transaction, so probe first.
	found, err := exists(ctx, t.tx, e.EntityType(), e.EntityKey())
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("insert %s/%s: %w", e.EntityType(), e.EntityKey(), storage.ErrExists)
	}
	if _, err := t.tx.Exec(ctx, tbl.insertSQL(), args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert %s/%s: %w", e.EntityType(), e.EntityKey(), storage.ErrExists)
		}
		return fmt.Errorf("insert %s/%s: %w", e.EntityType(), e.EntityKey(), err)
	}
	return nil
}

func load(ctx context.Context, q querier, typ model.EntityType, key string, forUpdate bool) (model.Entity, bool, error) {
	tbl, err := tableFor(typ)
	if err != nil {
		return nil, false, err
	}
	row := q.QueryRow(ctx, tbl.selectSQL(forUpdate), key)
	e, err := tbl.decode(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load %s/%s: %w", typ, key, err)
	}
	return e, true, nil
}

func exists(ctx context.Context, q querier, typ model.EntityType, key string) (bool, error) {
	tbl, err := tableFor(typ)
	if err != nil {
		return false, err
	}
	var found bool
	if err := q.QueryRow(ctx, tbl.existsSQL(), key).Scan(&found); err != nil {
		return false, fmt.Errorf("exists %s/%s: %w", typ, key, err)
	}
	return found, nil
}

func each(ctx context.Context, q querier, typ model.EntityType, fn func(model.Entity) error) error {
	tbl, err := tableFor(typ)
	if err != nil {
		return err
	}
	rows, err := q.Query(ctx, tbl.selectAllSQL())
	if err != nil {
		return fmt.Errorf("query %s: %w", typ, err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := tbl.decode(rows.Scan)
		if err != nil {
			return fmt.Errorf("scan %s: %w", typ, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
