package bulkimport

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres upload repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const uploadColumns = `id, upload_type, file, log, status, created_count, updated_count, error_count, uploaded_at`

func scanUpload(row pgx.Row) (Upload, error) {
	var up Upload
	err := row.Scan(&up.ID, &up.Type, &up.File, &up.Log, &up.Status, &up.Created, &up.Updated, &up.Errors, &up.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Upload{}, ErrNotFound
	}
	return up, err
}

func (r *repository) Create(ctx context.Context, up Upload) (Upload, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO bulk_invoice_uploads (upload_type, file, log, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+uploadColumns, up.Type, up.File, up.Log, up.Status)
	return scanUpload(row)
}

func (r *repository) Get(ctx context.Context, id int64) (Upload, error) {
	return scanUpload(r.pool.QueryRow(ctx, `SELECT `+uploadColumns+` FROM bulk_invoice_uploads WHERE id = $1`, id))
}

func (r *repository) List(ctx context.Context, limit int) ([]Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+uploadColumns+` FROM bulk_invoice_uploads ORDER BY uploaded_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Upload
	for rows.Next() {
		up, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, up)
	}
	return out, rows.Err()
}

func (r *repository) Save(ctx context.Context, up Upload) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bulk_invoice_uploads
		SET log = $1, status = $2, created_count = $3, updated_count = $4, error_count = $5
		WHERE id = $6`, up.Log, up.Status, up.Created, up.Updated, up.Errors, up.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
