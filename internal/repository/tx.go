package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
)

// Advisory lock scopes.
const (
	LockSessionDate = "session-date"
	LockTrainer     = "trainer"
	LockTrainee     = "trainee"
)

// TxManager runs units of work inside a read-committed transaction.
type TxManager struct {
	db *sqlx.DB
}

// NewTxManager creates a new transaction manager.
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx commits when fn returns nil and rolls back otherwise.
func (m *TxManager) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) (err error) {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Lock takes transaction-scoped advisory locks on scope:key for each key. Keys
// are deduplicated and taken in sorted order so concurrent callers cannot
// deadlock on each other.
func (m *TxManager) Lock(ctx context.Context, exec sqlx.ExtContext, scope string, keys ...string) error {
	if exec == nil {
		return fmt.Errorf("advisory lock %s outside a transaction", scope)
	}
	seen := make(map[string]struct{}, len(keys))
	unique := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	sort.Strings(unique)

	for _, key := range unique {
		if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scope+":"+key); err != nil {
			return fmt.Errorf("advisory lock %s:%s: %w", scope, key, err)
		}
	}
	return nil
}
