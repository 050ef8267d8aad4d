package masterdata

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/clientdoc/internal/platform/db"
)

// repo implements Repository on PostgreSQL.
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repo{db: pool}
}

const (
	buyerColumns    = `id, name, address, gstin, state, phone, email, created_at, updated_at, deleted_at`
	locationColumns = `id, name, site_code, address, city, state, state_code, gstin, priority, created_at, updated_at, deleted_at`
	itemColumns     = `i.id, i.name, i.category_id, COALESCE(c.name, ''), i.article_code, i.description, i.price, i.gst_rate, i.hsn_code, i.unit, i.created_at, i.updated_at, i.deleted_at`
	itemFrom        = `items i LEFT JOIN item_categories c ON c.id = i.category_id`
)

func scanBuyer(row pgx.Row) (Buyer, error) {
	var b Buyer
	err := row.Scan(&b.ID, &b.Name, &b.Address, &b.GSTIN, &b.State, &b.Phone, &b.Email, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Buyer{}, ErrNotFound
	}
	return b, err
}

func scanLocation(row pgx.Row) (Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.Name, &l.SiteCode, &l.Address, &l.City, &l.State, &l.StateCode, &l.GSTIN, &l.Priority, &l.CreatedAt, &l.UpdatedAt, &l.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, ErrNotFound
	}
	return l, err
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Name, &it.CategoryID, &it.CategoryName, &it.ArticleCode, &it.Description,
		&it.Price, &it.GSTRate, &it.HSNCode, &it.Unit, &it.CreatedAt, &it.UpdatedAt, &it.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

// Lookups

func (r *repo) BuyerByName(ctx context.Context, name string) (Buyer, error) {
	return scanBuyer(r.db.QueryRow(ctx, `SELECT `+buyerColumns+` FROM buyers WHERE lower(name) = lower($1) AND deleted_at IS NULL ORDER BY id LIMIT 1`, NormaliseName(name)))
}

func (r *repo) LocationByName(ctx context.Context, name string) (Location, error) {
	return scanLocation(r.db.QueryRow(ctx, `SELECT `+locationColumns+` FROM store_locations WHERE lower(name) = lower($1) AND deleted_at IS NULL ORDER BY id LIMIT 1`, NormaliseName(name)))
}

func (r *repo) ItemByName(ctx context.Context, name string) (Item, error) {
	return scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM `+itemFrom+` WHERE lower(i.name) = lower($1) AND i.deleted_at IS NULL ORDER BY i.id LIMIT 1`, NormaliseName(name)))
}

func (r *repo) GetBuyer(ctx context.Context, id int64) (Buyer, error) {
	return scanBuyer(r.db.QueryRow(ctx, `SELECT `+buyerColumns+` FROM buyers WHERE id = $1`, id))
}

func (r *repo) GetLocation(ctx context.Context, id int64) (Location, error) {
	return scanLocation(r.db.QueryRow(ctx, `SELECT `+locationColumns+` FROM store_locations WHERE id = $1`, id))
}

func (r *repo) GetItem(ctx context.Context, id int64) (Item, error) {
	return scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM `+itemFrom+` WHERE i.id = $1`, id))
}

// Listings

func (r *repo) ListBuyers(ctx context.Context) ([]Buyer, error) {
	rows, err := r.db.Query(ctx, `SELECT `+buyerColumns+` FROM buyers WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Buyer
	for rows.Next() {
		b, err := scanBuyer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repo) ListLocations(ctx context.Context) ([]Location, error) {
	rows, err := r.db.Query(ctx, `SELECT `+locationColumns+` FROM store_locations WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repo) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM `+itemFrom+` WHERE i.deleted_at IS NULL ORDER BY i.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Upserts match on the live row with the same case-insensitive name.

func (r *repo) UpsertBuyer(ctx context.Context, b Buyer) (Buyer, bool, error) {
	var created bool
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		now := time.Now()
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM buyers WHERE lower(name) = lower($1) AND deleted_at IS NULL ORDER BY id LIMIT 1 FOR UPDATE`, b.Name).Scan(&id)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			created = true
			return tx.QueryRow(ctx, `INSERT INTO buyers (name, address, gstin, state, phone, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`,
				b.Name, b.Address, b.GSTIN, b.State, b.Phone, b.Email, now).Scan(&b.ID)
		case err != nil:
			return err
		}
		b.ID = id
		_, err = tx.Exec(ctx, `UPDATE buyers SET address = $1, gstin = $2, state = $3, phone = $4, email = $5, updated_at = $6 WHERE id = $7`,
			b.Address, b.GSTIN, b.State, b.Phone, b.Email, now, id)
		return err
	})
	return b, created, err
}

func (r *repo) UpsertLocation(ctx context.Context, l Location) (Location, bool, error) {
	var created bool
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		now := time.Now()
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM store_locations WHERE lower(name) = lower($1) AND deleted_at IS NULL ORDER BY id LIMIT 1 FOR UPDATE`, l.Name).Scan(&id)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			created = true
			return tx.QueryRow(ctx, `INSERT INTO store_locations (name, site_code, address, city, state, state_code, gstin, priority, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`,
				l.Name, l.SiteCode, l.Address, l.City, l.State, l.StateCode, l.GSTIN, l.Priority, now).Scan(&l.ID)
		case err != nil:
			return err
		}
		l.ID = id
		_, err = tx.Exec(ctx, `UPDATE store_locations SET site_code = $1, address = $2, city = $3, state = $4, state_code = COALESCE(NULLIF($5, ''), state_code), gstin = $6, priority = $7, updated_at = $8 WHERE id = $9`,
			l.SiteCode, l.Address, l.City, l.State, l.StateCode, l.GSTIN, l.Priority, now, id)
		return err
	})
	return l, created, err
}

func (r *repo) UpsertItem(ctx context.Context, it Item) (Item, bool, error) {
	var created bool
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		now := time.Now()
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM items WHERE lower(name) = lower($1) AND deleted_at IS NULL ORDER BY id LIMIT 1 FOR UPDATE`, it.Name).Scan(&id)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			created = true
			return tx.QueryRow(ctx, `INSERT INTO items (name, category_id, article_code, description, price, gst_rate, hsn_code, unit, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`,
				it.Name, it.CategoryID, it.ArticleCode, it.Description, it.Price, it.GSTRate, it.HSNCode, it.Unit, now).Scan(&it.ID)
		case err != nil:
			return err
		}
		it.ID = id
		_, err = tx.Exec(ctx, `UPDATE items SET category_id = $1, article_code = $2, description = $3, price = $4, gst_rate = $5, hsn_code = $6, unit = $7, updated_at = $8 WHERE id = $9`,
			it.CategoryID, it.ArticleCode, it.Description, it.Price, it.GSTRate, it.HSNCode, it.Unit, now, id)
		return err
	})
	return it, created, err
}

func (r *repo) CategoryByNameOrCreate(ctx context.Context, name string) (Category, error) {
	c := Category{Name: NormaliseName(name)}
	err := r.db.QueryRow(ctx, `INSERT INTO item_categories (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`, c.Name).Scan(&c.ID)
	return c, err
}

// Updates by id

func (r *repo) UpdateBuyer(ctx context.Context, b Buyer) error {
	tag, err := r.db.Exec(ctx, `UPDATE buyers SET name = $1, address = $2, gstin = $3, state = $4, phone = $5, email = $6, updated_at = NOW()
		WHERE id = $7 AND deleted_at IS NULL`, b.Name, b.Address, b.GSTIN, b.State, b.Phone, b.Email, b.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) UpdateLocation(ctx context.Context, l Location) error {
	tag, err := r.db.Exec(ctx, `UPDATE store_locations SET name = $1, site_code = $2, address = $3, city = $4, state = $5, state_code = $6, gstin = $7, priority = $8, updated_at = NOW()
		WHERE id = $9 AND deleted_at IS NULL`, l.Name, l.SiteCode, l.Address, l.City, l.State, l.StateCode, l.GSTIN, l.Priority, l.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) UpdateItem(ctx context.Context, it Item) error {
	tag, err := r.db.Exec(ctx, `UPDATE items SET name = $1, category_id = $2, article_code = $3, description = $4, price = $5, gst_rate = $6, hsn_code = $7, unit = $8, updated_at = NOW()
		WHERE id = $9 AND deleted_at IS NULL`, it.Name, it.CategoryID, it.ArticleCode, it.Description, it.Price, it.GSTRate, it.HSNCode, it.Unit, it.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
