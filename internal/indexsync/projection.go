package indexsync

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/54b3r/reliefconnect/internal/catalog"
)

// ProductText is the text embedded for a product: "{name}: {description}",
// followed by the category when one is set.
func ProductText(p *catalog.Product) string {
	text := p.Name + ": " + p.Description
	if p.Category != "" {
		text += " Category: " + p.Category + "."
	}
	return text
}

// ProductMetadata is the flat metadata stored next to a product vector.
// Empty strings are dropped and price is omitted when zero.
func ProductMetadata(p *catalog.Product) map[string]any {
	m := map[string]any{
		"id":       p.ID,
		"quantity": int64(p.Quantity),
	}
	putString(m, "name", p.Name)
	putString(m, "description", p.Description)
	putString(m, "category", p.Category)
	putString(m, "priority", p.Priority)
	if p.Price != 0 {
		m["price"] = p.Price
	}
	return m
}

// OrderText is the multi-line narrative embedded for an order.
func OrderText(o *catalog.Order) string {
	items := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, fmt.Sprintf("%s (x%d)", it.Name, it.Quantity))
	}

	var (
		amount   float64
		currency string
		method   = "unknown"
		paid     bool
	)
	if pay := o.Payment; pay != nil {
		amount, currency, paid = pay.Amount, pay.Currency, pay.Paid
		if pay.Method != "" {
			method = pay.Method
		}
	}

	var b strings.Builder
	b.WriteString("Order Summary:\n")
	fmt.Fprintf(&b, "Order ID: %s\n", o.ID)
	fmt.Fprintf(&b, "User: %s (%s)\n", o.Name, o.UserID)
	fmt.Fprintf(&b, "Status: %s\n", o.Status)
	fmt.Fprintf(&b, "Urgency: %s\n", o.Urgency)
	fmt.Fprintf(&b, "Items: %s\n", strings.Join(items, ", "))
	fmt.Fprintf(&b, "Total Paid: %g %s\n", amount, currency)
	fmt.Fprintf(&b, "Payment Method: %s | Paid: %t\n", method, paid)
	fmt.Fprintf(&b, "Shipping Address: %s\n", o.Address)
	fmt.Fprintf(&b, "Phone: %s\n", o.Phone)
	fmt.Fprintf(&b, "Email: %s\n", o.Email)
	fmt.Fprintf(&b, "Package Order: %t\n", o.IsPackage)
	fmt.Fprintf(&b, "Timestamp: %s\n", formatTime(o.Timestamp))
	return b.String()
}

// OrderMetadata is the flat metadata stored next to an order vector. Absent
// values are dropped and the item list is JSON-stringified.
func OrderMetadata(o *catalog.Order) map[string]any {
	m := map[string]any{
		"id":        o.ID,
		"isPackage": o.IsPackage,
		"itemCount": int64(len(o.Items)),
	}
	putString(m, "userId", o.UserID)
	putString(m, "userName", o.Name)
	putString(m, "status", o.Status)
	putString(m, "urgency", o.Urgency)
	putString(m, "address", o.Address)
	putString(m, "phone", o.Phone)
	putString(m, "email", o.Email)
	if !o.Timestamp.IsZero() {
		m["timestamp"] = formatTime(o.Timestamp)
	}
	if pay := o.Payment; pay != nil {
		m["paid"] = pay.Paid
		putString(m, "paymentMethod", pay.Method)
		putString(m, "currency", pay.Currency)
		if pay.Amount != 0 {
			m["amount"] = pay.Amount
		}
	}
	if len(o.Items) > 0 {
		if b, err := json.Marshal(o.Items); err == nil {
			m["items"] = string(b)
		}
	}
	return m
}

// project returns the text and metadata for rec, or an error when rec is not
// an indexable type.
func project(rec catalog.Record) (string, map[string]any, error) {
	switch r := rec.(type) {
	case *catalog.Product:
		return ProductText(r), ProductMetadata(r), nil
	case *catalog.Order:
		return OrderText(r), OrderMetadata(r), nil
	default:
		return "", nil, fmt.Errorf("indexsync: unsupported record type %T", rec)
	}
}

func putString(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
