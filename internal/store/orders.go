package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/54b3r/reliefconnect/internal/catalog"
)

const orderColumns = `id, user_id, name, address, phone, email, urgency, status, payment, items, is_package, ts, updated_at`

// CreateOrder inserts a new order, filling defaults (urgency, status,
// timestamp) and generating an ID when o.ID is empty.
func (s *SQLiteStore) CreateOrder(ctx context.Context, o *catalog.Order) error {
	o.Normalize(s.now().UTC())
	if err := o.Validate(); err != nil {
		return fmt.Errorf("store: create order: %w", err)
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.UpdatedAt = s.now().UTC()

	args, err := orderArgs(o)
	if err != nil {
		return fmt.Errorf("store: create order: %w", err)
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := rowExists(ctx, tx, "orders", o.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: order %s already exists", catalog.ErrInvalidInput, o.ID)
		}
		const q = `INSERT INTO orders (` + orderColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err = tx.ExecContext(ctx, q, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: create order: %w", err)
	}

	s.afterSave(ctx, cloneOrder(o))
	return nil
}

// SaveOrder inserts o or replaces the existing row with the same ID.
func (s *SQLiteStore) SaveOrder(ctx context.Context, o *catalog.Order) error {
	o.Normalize(s.now().UTC())
	if err := o.Validate(); err != nil {
		return fmt.Errorf("store: save order: %w", err)
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.UpdatedAt = s.now().UTC()

	args, err := orderArgs(o)
	if err != nil {
		return fmt.Errorf("store: save order: %w", err)
	}
	const q = `
INSERT INTO orders (` + orderColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    user_id = excluded.user_id,
    name = excluded.name,
    address = excluded.address,
    phone = excluded.phone,
    email = excluded.email,
    urgency = excluded.urgency,
    status = excluded.status,
    payment = excluded.payment,
    items = excluded.items,
    is_package = excluded.is_package,
    ts = excluded.ts,
    updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("store: save order: %w", err)
	}

	s.afterSave(ctx, cloneOrder(o))
	return nil
}

// UpdateOrder replaces every mutable field of the order identified by o.ID.
// A zero o.Timestamp keeps the stored order timestamp.
func (s *SQLiteStore) UpdateOrder(ctx context.Context, o *catalog.Order) error {
	if o.ID == "" {
		return fmt.Errorf("store: update order: %w: id is required", catalog.ErrInvalidInput)
	}
	keepTS := o.Timestamp.IsZero()
	o.Normalize(s.now().UTC())
	if err := o.Validate(); err != nil {
		return fmt.Errorf("store: update order: %w", err)
	}
	o.UpdatedAt = s.now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if keepTS {
			var ts int64
			err := tx.QueryRowContext(ctx, `SELECT ts FROM orders WHERE id = ?`, o.ID).Scan(&ts)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("order %s: %w", o.ID, catalog.ErrNotFound)
			}
			if err != nil {
				return err
			}
			o.Timestamp = fromMillis(ts)
		}
		args, err := orderArgs(o)
		if err != nil {
			return err
		}
		const q = `
UPDATE orders
SET    user_id = ?, name = ?, address = ?, phone = ?, email = ?, urgency = ?, status = ?,
       payment = ?, items = ?, is_package = ?, ts = ?, updated_at = ?
WHERE  id = ?`
		// args[0] is the id; move it to the WHERE position.
		res, err := tx.ExecContext(ctx, q, append(args[1:], args[0])...)
		if err != nil {
			return err
		}
		return expectAffected(res, "order", o.ID)
	})
	if err != nil {
		return fmt.Errorf("store: update order: %w", err)
	}

	s.afterSave(ctx, cloneOrder(o))
	return nil
}

// DeleteOrder removes the order with the given ID.
func (s *SQLiteStore) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete order: %w", err)
	}
	if err := expectAffected(res, "order", id); err != nil {
		return fmt.Errorf("store: delete order: %w", err)
	}
	s.afterDelete(ctx, catalog.KindOrder, id)
	return nil
}

// GetOrder returns the order with the given ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*catalog.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: get order %s: %w", id, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get order %s: %w", id, err)
	}
	return o, nil
}

// ListOrders returns orders matching f, newest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, f catalog.OrderFilter) ([]*catalog.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if f.UserID != "" {
		q += ` WHERE user_id = ?`
		args = append(args, f.UserID)
	}
	limit, offset := pageClause(f.Page, f.Size)
	q += ` ORDER BY ts DESC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list orders: %w", err)
	}
	defer rows.Close()

	var out []*catalog.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list orders scan: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list orders rows: %w", err)
	}
	return out, nil
}

// orderArgs returns the column values of o in orderColumns order.
func orderArgs(o *catalog.Order) ([]any, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}
	var payment sql.NullString
	if o.Payment != nil {
		b, err := json.Marshal(o.Payment)
		if err != nil {
			return nil, fmt.Errorf("marshal payment: %w", err)
		}
		payment = sql.NullString{String: string(b), Valid: true}
	}
	return []any{
		o.ID, o.UserID, o.Name, o.Address, o.Phone, o.Email, o.Urgency, o.Status,
		payment, string(items), o.IsPackage, toMillis(o.Timestamp), toMillis(o.UpdatedAt),
	}, nil
}

func scanOrder(r rowScanner) (*catalog.Order, error) {
	var (
		o         catalog.Order
		payment   sql.NullString
		items     string
		ts, upd   int64
		isPackage bool
	)
	if err := r.Scan(&o.ID, &o.UserID, &o.Name, &o.Address, &o.Phone, &o.Email, &o.Urgency, &o.Status,
		&payment, &items, &isPackage, &ts, &upd); err != nil {
		return nil, err
	}
	if payment.Valid && payment.String != "" {
		o.Payment = &catalog.Payment{}
		if err := json.Unmarshal([]byte(payment.String), o.Payment); err != nil {
			return nil, fmt.Errorf("decode payment for order %s: %w", o.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, fmt.Errorf("decode items for order %s: %w", o.ID, err)
	}
	if o.Items == nil {
		o.Items = []catalog.OrderItem{}
	}
	o.IsPackage = isPackage
	o.Timestamp = fromMillis(ts)
	o.UpdatedAt = fromMillis(upd)
	return &o, nil
}

// cloneOrder returns a deep copy of o so hooks running on other goroutines
// never share slices or pointers with the caller.
func cloneOrder(o *catalog.Order) *catalog.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	if o.Payment != nil {
		p := *o.Payment
		c.Payment = &p
	}
	return &c
}
