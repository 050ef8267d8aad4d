package masterdata

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Defaults applied when spreadsheet or form input leaves a field empty.
const (
	DefaultState   = "Karnataka"
	DefaultHSNCode = "844311"
	DefaultUnit    = "Nos"
)

// DefaultGSTRate is the item tax rate used when none is supplied.
var DefaultGSTRate = decimal.RequireFromString("0.18")

var (
	ErrNotFound     = errors.New("masterdata: record not found")
	ErrNameRequired = errors.New("masterdata: name required")
)

// Buyer is the billed party on an invoice.
type Buyer struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name" validate:"required,max=200"`
	Address   string     `json:"address"`
	GSTIN     string     `json:"gstin" validate:"max=20"`
	State     string     `json:"state"`
	Phone     string     `json:"phone"`
	Email     string     `json:"email" validate:"omitempty,email"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Location is a ship-to store location.
type Location struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name" validate:"required,max=200"`
	SiteCode  string     `json:"site_code"`
	Address   string     `json:"address"`
	City      string     `json:"city"`
	State     string     `json:"state"`
	StateCode string     `json:"state_code" validate:"omitempty,len=2,numeric"`
	GSTIN     string     `json:"gstin" validate:"max=20"`
	Priority  string     `json:"priority"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Category groups catalog items.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Item is a catalog entry that invoice lines reference.
type Item struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name" validate:"required,max=200"`
	CategoryID   *int64          `json:"category_id,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
	ArticleCode  string          `json:"article_code"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	GSTRate      decimal.Decimal `json:"gst_rate"`
	HSNCode      string          `json:"hsn_code"`
	Unit         string          `json:"unit"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
}

// Repository is the persistence port for master data. Name lookups are
// case-insensitive and ignore soft-deleted rows.
type Repository interface {
	BuyerByName(ctx context.Context, name string) (Buyer, error)
	LocationByName(ctx context.Context, name string) (Location, error)
	ItemByName(ctx context.Context, name string) (Item, error)

	GetBuyer(ctx context.Context, id int64) (Buyer, error)
	GetLocation(ctx context.Context, id int64) (Location, error)
	GetItem(ctx context.Context, id int64) (Item, error)

	ListBuyers(ctx context.Context) ([]Buyer, error)
	ListLocations(ctx context.Context) ([]Location, error)
	ListItems(ctx context.Context) ([]Item, error)

	UpsertBuyer(ctx context.Context, b Buyer) (Buyer, bool, error)
	UpsertLocation(ctx context.Context, l Location) (Location, bool, error)
	UpsertItem(ctx context.Context, it Item) (Item, bool, error)
	CategoryByNameOrCreate(ctx context.Context, name string) (Category, error)

	UpdateBuyer(ctx context.Context, b Buyer) error
	UpdateLocation(ctx context.Context, l Location) error
	UpdateItem(ctx context.Context, it Item) error
}

// NormaliseName trims surrounding whitespace; comparisons lower-case it.
func NormaliseName(name string) string {
	return strings.TrimSpace(name)
}

func nameKey(name string) string {
	return strings.ToLower(NormaliseName(name))
}

func (b *Buyer) applyDefaults() {
	b.Name = NormaliseName(b.Name)
	if strings.TrimSpace(b.State) == "" {
		b.State = DefaultState
	}
}

func (l *Location) applyDefaults() {
	l.Name = NormaliseName(l.Name)
	if strings.TrimSpace(l.State) == "" {
		l.State = DefaultState
	}
}

func (it *Item) applyDefaults() {
	it.Name = NormaliseName(it.Name)
	if it.GSTRate.IsZero() {
		it.GSTRate = DefaultGSTRate
	}
	if strings.TrimSpace(it.HSNCode) == "" {
		it.HSNCode = DefaultHSNCode
	}
	if strings.TrimSpace(it.Unit) == "" {
		it.Unit = DefaultUnit
	}
}
