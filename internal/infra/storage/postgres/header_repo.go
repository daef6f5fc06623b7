package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wmitsuda/akula/internal/core/domain"
)

// HeaderRepo implements storage.HeaderRepository on PostgreSQL.
type HeaderRepo struct {
	db *DB
}

// NewHeaderRepo creates a new PostgreSQL-backed header archive.
func NewHeaderRepo(db *DB) *HeaderRepo {
	return &HeaderRepo{db: db}
}

// SaveBatch persists a run of headers in one transaction. Conflicting
// numbers are left untouched so re-delivery is harmless.
func (r *HeaderRepo) SaveBatch(ctx context.Context, headers []domain.Header) error {
	if len(headers) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin header batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO headers (number, hash, parent_hash, timestamp)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (number) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare header insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, h := range headers {
		if _, err := stmt.ExecContext(ctx, int64(h.Number), h.Hash, h.ParentHash, int64(h.Timestamp)); err != nil {
			return fmt.Errorf("insert header %d: %w", h.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit header batch: %w", err)
	}
	return nil
}

// MaxSaved returns the highest persisted block number.
func (r *HeaderRepo) MaxSaved(ctx context.Context) (domain.BlockNumber, bool, error) {
	var num sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(number) FROM headers`).Scan(&num)
	if err != nil {
		return 0, false, fmt.Errorf("query archive tip: %w", err)
	}
	if !num.Valid {
		return 0, false, nil
	}
	return domain.BlockNumber(num.Int64), true, nil
}
