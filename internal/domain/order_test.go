package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:         "order-1",
		Code:       "ORD-0001",
		State:      domain.OrderStateArrangingPayment,
		CustomerID: "customer-1",
		Currency:   "EUR",
		Lines: []domain.OrderLine{
			{
				ID:                    "line-1",
				SKU:                   "sku-1",
				Name:                  "Coffee beans",
				Qty:                   5,
				UnitPriceWithTaxMinor: 100,
				CreatedAt:             now,
			},
		},
		TotalWithTaxMinor: 500,
		Version:           0,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Failures(t *testing.T) {
	order := makeOrder()
	order.Code = ""
	order.Currency = ""
	order.State = "Unknown"
	order.Lines[0].Qty = 0
	order.TotalWithTaxMinor = 700

	errs := order.ValidateInvariants()
	expected := map[error]bool{
		domain.ErrOrderCodeRequired: false,
		domain.ErrCurrencyRequired:  false,
		domain.ErrOrderStateInvalid: false,
		domain.ErrItemQtyInvalid:    false,
		domain.ErrAmountMismatch:    false,
	}
	for _, err := range errs {
		if _, ok := expected[err]; ok {
			expected[err] = true
		}
	}
	for err, seen := range expected {
		if !seen {
			t.Fatalf("expected error %v to be reported, got %v", err, errs)
		}
	}
}

func TestOrderStateReconciliationEligible(t *testing.T) {
	eligible := map[domain.OrderState]bool{
		domain.OrderStateDraft:                      true,
		domain.OrderStateAddingItems:                true,
		domain.OrderStateArrangingPayment:           true,
		domain.OrderStateArrangingAdditionalPayment: true,
		domain.OrderStatePaymentAuthorized:          true,
		domain.OrderStatePaymentSettled:             false,
		domain.OrderStateShipped:                    false,
		domain.OrderStateDelivered:                  false,
		domain.OrderStateCancelled:                  false,
	}
	for state, want := range eligible {
		if got := state.ReconciliationEligible(); got != want {
			t.Errorf("%s: ReconciliationEligible() = %v, want %v", state, got, want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to domain.OrderState
		want     bool
	}{
		{domain.OrderStateAddingItems, domain.OrderStateArrangingPayment, true},
		{domain.OrderStateArrangingPayment, domain.OrderStatePaymentAuthorized, true},
		{domain.OrderStatePaymentAuthorized, domain.OrderStatePaymentSettled, true},
		{domain.OrderStatePaymentSettled, domain.OrderStateArrangingPayment, false},
		{domain.OrderStateCancelled, domain.OrderStateArrangingPayment, false},
		{domain.OrderStateAddingItems, domain.OrderStatePaymentSettled, false},
	}
	for _, tt := range tests {
		if got := domain.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestOrderAdvanceAfterPayment(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("authorized covers total", func(t *testing.T) {
		order := makeOrder()
		order.Payments = []domain.Payment{{Status: domain.PaymentStatusAuthorized, AmountMinor: 500}}
		order.AdvanceAfterPayment(now)
		if order.State != domain.OrderStatePaymentAuthorized {
			t.Fatalf("expected PaymentAuthorized, got %s", order.State)
		}
		if order.OrderPlacedAt == nil || !order.OrderPlacedAt.Equal(now) {
			t.Fatalf("expected order placed at %v, got %v", now, order.OrderPlacedAt)
		}
	})

	t.Run("settled covers total", func(t *testing.T) {
		order := makeOrder()
		order.Payments = []domain.Payment{{Status: domain.PaymentStatusSettled, AmountMinor: 500}}
		order.AdvanceAfterPayment(now)
		if order.State != domain.OrderStatePaymentSettled {
			t.Fatalf("expected PaymentSettled, got %s", order.State)
		}
	})

	t.Run("partial payment keeps state", func(t *testing.T) {
		order := makeOrder()
		order.Payments = []domain.Payment{{Status: domain.PaymentStatusSettled, AmountMinor: 100}}
		order.AdvanceAfterPayment(now)
		if order.State != domain.OrderStateArrangingPayment {
			t.Fatalf("expected ArrangingPayment, got %s", order.State)
		}
		if order.Placed() {
			t.Fatal("partially paid order must not be placed")
		}
		if got := order.OutstandingMinor(); got != 400 {
			t.Fatalf("expected outstanding 400, got %d", got)
		}
	})

	t.Run("placed timestamp is kept", func(t *testing.T) {
		order := makeOrder()
		earlier := now.Add(-time.Hour)
		order.State = domain.OrderStatePaymentAuthorized
		order.OrderPlacedAt = &earlier
		order.Payments = []domain.Payment{{Status: domain.PaymentStatusSettled, AmountMinor: 500}}
		order.AdvanceAfterPayment(now)
		if !order.OrderPlacedAt.Equal(earlier) {
			t.Fatalf("expected placed at to stay %v, got %v", earlier, order.OrderPlacedAt)
		}
	})
}

func TestOrderPaymentByTransactionID(t *testing.T) {
	order := makeOrder()
	order.Payments = []domain.Payment{
		{ID: "p-0", TransactionID: ""},
		{ID: "p-1", TransactionID: "ord_abc"},
	}

	if _, ok := order.PaymentByTransactionID(""); ok {
		t.Fatal("empty transaction id must not match zero-amount payments")
	}
	p, ok := order.PaymentByTransactionID("ord_abc")
	if !ok || p.ID != "p-1" {
		t.Fatalf("expected payment p-1, got %+v (found=%v)", p, ok)
	}
}

func TestOrderCloneIsDeep(t *testing.T) {
	order := makeOrder()
	placed := time.Now().UTC()
	order.OrderPlacedAt = &placed
	order.Payments = []domain.Payment{{ID: "p-1", Status: domain.PaymentStatusAuthorized}}

	clone := order.Clone()
	clone.Lines[0].Qty = 99
	clone.Payments[0].Status = domain.PaymentStatusSettled
	*clone.OrderPlacedAt = placed.Add(time.Hour)

	if order.Lines[0].Qty == 99 || order.Payments[0].Status == domain.PaymentStatusSettled {
		t.Fatal("clone shares slices with the original")
	}
	if !order.OrderPlacedAt.Equal(placed) {
		t.Fatal("clone shares placed timestamp with the original")
	}
}
