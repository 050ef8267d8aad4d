package trash

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/clientdoc/internal/platform/db"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) SoftDelete(ctx context.Context, kind Kind, id int64) error {
	table, _ := kind.table()
	return r.exec(ctx, fmt.Sprintf(`UPDATE %s SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, table), id)
}

func (r *repository) Restore(ctx context.Context, kind Kind, id int64) error {
	table, _ := kind.table()
	return r.exec(ctx, fmt.Sprintf(`UPDATE %s SET deleted_at = NULL WHERE id = $1 AND deleted_at IS NOT NULL`, table), id)
}

// Purge removes a trashed row. Children go with it through ON DELETE CASCADE.
func (r *repository) Purge(ctx context.Context, kind Kind, id int64) error {
	table, _ := kind.table()
	return r.exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND deleted_at IS NOT NULL`, table), id)
}

func (r *repository) exec(ctx context.Context, sql string, id int64) error {
	tag, err := r.pool.Exec(ctx, sql, id)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Trashed(ctx context.Context, kind Kind) ([]Entry, error) {
	table, label := kind.table()
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT id, %s, deleted_at FROM %s WHERE deleted_at IS NOT NULL ORDER BY deleted_at DESC`, label, table))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		e := Entry{Kind: kind}
		err := row.Scan(&e.ID, &e.Label, &e.DeletedAt)
		return e, err
	})
}
