// Package catalog defines the authoritative ReliefConnect domain records
// (products and orders), the hook extension point the record store fires
// after every committed write, and the sentinel errors shared by the store
// and the HTTP layer.
package catalog

import (
	"context"
	"errors"
	"time"
)

// Kind identifies which family of domain record a value belongs to.
type Kind string

const (
	// KindProduct is a relief supply offered in the catalog.
	KindProduct Kind = "product"
	// KindOrder is a customer order for one or more products or packages.
	KindOrder Kind = "order"
)

// Valid reports whether k is a known record kind.
func (k Kind) Valid() bool {
	return k == KindProduct || k == KindOrder
}

// Sentinel errors returned by the record store. Callers match them with
// errors.Is; the store wraps them with operation context.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a record failed validation before being written.
	ErrInvalidInput = errors.New("invalid input")
)

// Record is implemented by every domain record that can be indexed.
type Record interface {
	// RecordID returns the stable unique identifier of the record.
	RecordID() string
	// RecordKind returns the record family.
	RecordKind() Kind
}

// Hook receives post-commit notifications from the record store.
// Implementations must not block for long. A hook cannot fail the write
// that triggered it.
type Hook interface {
	// AfterSave is called after a create or update commits, with the full
	// saved record including its generated ID.
	AfterSave(ctx context.Context, rec Record)

	// AfterDelete is called after a delete commits.
	AfterDelete(ctx context.Context, kind Kind, id string)
}

// Product is a relief supply item.
type Product struct {
	// ID is the store-assigned identifier.
	ID string `json:"id" yaml:"id"`
	// Name is the short display name (e.g. "Water Filter").
	Name string `json:"name" yaml:"name"`
	// Description is the free-text description used for semantic search.
	Description string `json:"description" yaml:"description"`
	// Category groups products (e.g. "Water", "Shelter", "Medical").
	Category string `json:"category" yaml:"category"`
	// Quantity is the number of units in stock.
	Quantity int `json:"quantity" yaml:"quantity"`
	// Price is the unit price. Zero means donated / not priced.
	Price float64 `json:"price,omitempty" yaml:"price"`
	// Priority is the relief priority label (e.g. "high", "medium", "low").
	Priority string `json:"priority,omitempty" yaml:"priority"`
	// UpdatedAt is the last-modified timestamp, set by the store.
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// RecordID implements Record.
func (p *Product) RecordID() string { return p.ID }

// RecordKind implements Record.
func (p *Product) RecordKind() Kind { return KindProduct }

// Validate checks the fields the store requires before writing.
func (p *Product) Validate() error {
	if p.Name == "" {
		return errors.Join(ErrInvalidInput, errors.New("product name is required"))
	}
	if p.Quantity < 0 {
		return errors.Join(ErrInvalidInput, errors.New("product quantity must not be negative"))
	}
	return nil
}

// Payment describes how an order was paid.
type Payment struct {
	Method    string  `json:"method,omitempty" yaml:"method"`
	Amount    float64 `json:"amount,omitempty" yaml:"amount"`
	Currency  string  `json:"currency,omitempty" yaml:"currency"`
	Paid      bool    `json:"paid" yaml:"paid"`
	CardLast4 string  `json:"cardLast4,omitempty" yaml:"card_last4"`
}

// OrderItem is a single line of an order.
type OrderItem struct {
	ProductID string `json:"productId,omitempty" yaml:"product_id"`
	Name      string `json:"name" yaml:"name"`
	Quantity  int    `json:"quantity" yaml:"quantity"`
}

// Default order field values applied by Normalize.
const (
	DefaultUrgency     = "medium"
	DefaultOrderStatus = "processing"
)

// Order is a customer order for relief supplies.
type Order struct {
	ID        string      `json:"id" yaml:"id"`
	UserID    string      `json:"userId,omitempty" yaml:"user_id"`
	Name      string      `json:"name" yaml:"name"`
	Address   string      `json:"address" yaml:"address"`
	Phone     string      `json:"phone" yaml:"phone"`
	Email     string      `json:"email,omitempty" yaml:"email"`
	Urgency   string      `json:"urgency" yaml:"urgency"`
	Status    string      `json:"status" yaml:"status"`
	Payment   *Payment    `json:"payment,omitempty" yaml:"payment"`
	Items     []OrderItem `json:"items" yaml:"items"`
	IsPackage bool        `json:"isPackage" yaml:"is_package"`
	Timestamp time.Time   `json:"timestamp" yaml:"timestamp"`
	UpdatedAt time.Time   `json:"updatedAt" yaml:"-"`
}

// RecordID implements Record.
func (o *Order) RecordID() string { return o.ID }

// RecordKind implements Record.
func (o *Order) RecordKind() Kind { return KindOrder }

// Normalize fills defaulted fields the way the order form does.
func (o *Order) Normalize(now time.Time) {
	if o.Urgency == "" {
		o.Urgency = DefaultUrgency
	}
	if o.Status == "" {
		o.Status = DefaultOrderStatus
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = now
	}
	if o.Items == nil {
		o.Items = []OrderItem{}
	}
}

// Validate checks the fields the store requires before writing.
func (o *Order) Validate() error {
	switch {
	case o.Name == "":
		return errors.Join(ErrInvalidInput, errors.New("order name is required"))
	case o.Address == "":
		return errors.Join(ErrInvalidInput, errors.New("order address is required"))
	case o.Phone == "":
		return errors.Join(ErrInvalidInput, errors.New("order phone is required"))
	}
	for _, it := range o.Items {
		if it.Quantity < 0 {
			return errors.Join(ErrInvalidInput, errors.New("order item quantity must not be negative"))
		}
	}
	return nil
}

// ProductHit is the lightweight product shape returned by semantic search,
// rebuilt from index metadata rather than from the record store.
type ProductHit struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price,omitempty"`
	Score       float32 `json:"score"`
}

// ProductFilter narrows a product listing.
type ProductFilter struct {
	Category string
	Priority string
	// Page is 1-based. Zero means the first page.
	Page int
	// Size is the page size. Zero means no limit.
	Size int
}

// OrderFilter narrows an order listing.
type OrderFilter struct {
	UserID string
	Page   int
	Size   int
}
