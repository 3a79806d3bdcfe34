package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/54b3r/reliefconnect/internal/catalog"
)

const productColumns = `id, name, description, category, quantity, price, priority, updated_at`

// CreateProduct inserts a new product. An ID is generated when p.ID is
// empty. On success p carries the stored ID and UpdatedAt, and hooks are
// notified with a copy of the saved record.
func (s *SQLiteStore) CreateProduct(ctx context.Context, p *catalog.Product) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("store: create product: %w", err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = s.now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := rowExists(ctx, tx, "products", p.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: product %s already exists", catalog.ErrInvalidInput, p.ID)
		}
		const q = `INSERT INTO products (` + productColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		_, err = tx.ExecContext(ctx, q, p.ID, p.Name, p.Description, p.Category, p.Quantity, p.Price, p.Priority, toMillis(p.UpdatedAt))
		return err
	})
	if err != nil {
		return fmt.Errorf("store: create product: %w", err)
	}

	saved := *p
	s.afterSave(ctx, &saved)
	return nil
}

// SaveProduct inserts p or replaces the existing row with the same ID.
// Used by seed imports, where IDs are supplied by the file and must stay
// stable across runs.
func (s *SQLiteStore) SaveProduct(ctx context.Context, p *catalog.Product) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("store: save product: %w", err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = s.now().UTC()

	const q = `
INSERT INTO products (` + productColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    description = excluded.description,
    category = excluded.category,
    quantity = excluded.quantity,
    price = excluded.price,
    priority = excluded.priority,
    updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, p.ID, p.Name, p.Description, p.Category, p.Quantity, p.Price, p.Priority, toMillis(p.UpdatedAt)); err != nil {
		return fmt.Errorf("store: save product: %w", err)
	}

	saved := *p
	s.afterSave(ctx, &saved)
	return nil
}

// UpdateProduct replaces every mutable field of the product identified by
// p.ID. Returns catalog.ErrNotFound when no such product exists.
func (s *SQLiteStore) UpdateProduct(ctx context.Context, p *catalog.Product) error {
	if p.ID == "" {
		return fmt.Errorf("store: update product: %w: id is required", catalog.ErrInvalidInput)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("store: update product: %w", err)
	}
	p.UpdatedAt = s.now().UTC()

	const q = `
UPDATE products
SET    name = ?, description = ?, category = ?, quantity = ?, price = ?, priority = ?, updated_at = ?
WHERE  id = ?`
	res, err := s.db.ExecContext(ctx, q, p.Name, p.Description, p.Category, p.Quantity, p.Price, p.Priority, toMillis(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("store: update product: %w", err)
	}
	if err := expectAffected(res, "product", p.ID); err != nil {
		return fmt.Errorf("store: update product: %w", err)
	}

	saved := *p
	s.afterSave(ctx, &saved)
	return nil
}

// DeleteProduct removes the product with the given ID. Returns
// catalog.ErrNotFound when no such product exists.
func (s *SQLiteStore) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete product: %w", err)
	}
	if err := expectAffected(res, "product", id); err != nil {
		return fmt.Errorf("store: delete product: %w", err)
	}
	s.afterDelete(ctx, catalog.KindProduct, id)
	return nil
}

// GetProduct returns the product with the given ID.
func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: get product %s: %w", id, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get product %s: %w", id, err)
	}
	return p, nil
}

// ListProducts returns products matching f, most recently updated first.
func (s *SQLiteStore) ListProducts(ctx context.Context, f catalog.ProductFilter) ([]*catalog.Product, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, f.Priority)
	}

	q := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit, offset := pageClause(f.Page, f.Size)
	q += ` ORDER BY updated_at DESC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list products: %w", err)
	}
	defer rows.Close()

	var out []*catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list products scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list products rows: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(r rowScanner) (*catalog.Product, error) {
	var (
		p  catalog.Product
		ts int64
	)
	if err := r.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Quantity, &p.Price, &p.Priority, &ts); err != nil {
		return nil, err
	}
	p.UpdatedAt = fromMillis(ts)
	return &p, nil
}

// withTx runs fn inside a transaction, committing on nil and rolling back
// otherwise. Hooks must be dispatched by the caller after withTx returns so
// they only observe committed data.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func rowExists(ctx context.Context, tx *sql.Tx, table, id string) (bool, error) {
	var n int
	// table is always a package constant, never user input.
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+table+` WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("exists %s: %w", table, err)
	}
	return n > 0, nil
}

func expectAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, catalog.ErrNotFound)
	}
	return nil
}
