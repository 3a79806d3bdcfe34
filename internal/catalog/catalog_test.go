package catalog

import (
	"errors"
	"testing"
	"time"
)

func TestProductValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		p       Product
		wantErr bool
	}{
		{"valid", Product{Name: "Water Filter", Quantity: 3}, false},
		{"missing name", Product{Quantity: 1}, true},
		{"negative quantity", Product{Name: "Tent", Quantity: -1}, true},
	}
	for _, tt := range tests {
		err := tt.p.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tt.name, err)
		}
	}
}

func TestOrderNormalize(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o := &Order{Name: "Ana", Address: "1 Main St", Phone: "555"}
	o.Normalize(now)

	if o.Urgency != DefaultUrgency {
		t.Errorf("urgency: got %q, want %q", o.Urgency, DefaultUrgency)
	}
	if o.Status != DefaultOrderStatus {
		t.Errorf("status: got %q, want %q", o.Status, DefaultOrderStatus)
	}
	if !o.Timestamp.Equal(now) {
		t.Errorf("timestamp: got %v, want %v", o.Timestamp, now)
	}
	if o.Items == nil {
		t.Error("items should be an empty slice, not nil")
	}
}

func TestOrderValidate(t *testing.T) {
	t.Parallel()

	base := Order{Name: "Ana", Address: "1 Main St", Phone: "555"}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid order rejected: %v", err)
	}

	missingPhone := base
	missingPhone.Phone = ""
	if err := missingPhone.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing phone: expected ErrInvalidInput, got %v", err)
	}

	badItem := base
	badItem.Items = []OrderItem{{Name: "Blanket", Quantity: -2}}
	if err := badItem.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative item quantity: expected ErrInvalidInput, got %v", err)
	}
}

func TestKindValid(t *testing.T) {
	t.Parallel()
	if !KindProduct.Valid() || !KindOrder.Valid() {
		t.Error("known kinds must be valid")
	}
	if Kind("ticket").Valid() {
		t.Error("unknown kind must not be valid")
	}
}
