package reconcile

import (
	"testing"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

func TestDecide(t *testing.T) {
	const (
		paid       = domain.ExternalOrderStatusPaid
		authorized = domain.ExternalOrderStatusAuthorized
		completed  = domain.ExternalOrderStatusCompleted
	)

	cases := []struct {
		name        string
		status      domain.ExternalOrderStatus
		state       domain.OrderState
		autoCapture bool
		attached    domain.PaymentStatus
		want        action
	}{
		{"paid in adding items", paid, domain.OrderStateAddingItems, false, "", actionAddSettled},
		{"paid in arranging payment", paid, domain.OrderStateArrangingPayment, true, "", actionAddSettled},
		{"paid in draft", paid, domain.OrderStateDraft, false, "", actionAddSettled},
		{"paid already settled", paid, domain.OrderStatePaymentAuthorized, false, domain.PaymentStatusSettled, actionAlreadyApplied},
		{"paid after authorization", paid, domain.OrderStatePaymentAuthorized, false, domain.PaymentStatusAuthorized, actionSettleExisting},
		{"authorized in adding items", authorized, domain.OrderStateAddingItems, false, "", actionAddAuthorized},
		{"authorized with auto capture", authorized, domain.OrderStateAddingItems, true, "", actionAddAuthorizedAndSettle},
		{"authorized redelivered", authorized, domain.OrderStatePaymentAuthorized, false, domain.PaymentStatusAuthorized, actionAlreadyApplied},
		{"authorized in arranging payment", authorized, domain.OrderStateArrangingPayment, false, "", actionUnhandled},
		{"completed after authorization", completed, domain.OrderStatePaymentAuthorized, false, domain.PaymentStatusAuthorized, actionSettleExisting},
		{"completed with auto capture", completed, domain.OrderStateAddingItems, true, "", actionCapturedByAutoCapture},
		{"completed without auto capture", completed, domain.OrderStateAddingItems, false, "", actionUnhandled},
		{"unknown status", domain.ExternalOrderStatusShipping, domain.OrderStateAddingItems, true, "", actionUnhandled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decide(tc.status, tc.state, tc.autoCapture, tc.attached)
			if got != tc.want {
				t.Fatalf("decide() = %s, want %s", got, tc.want)
			}
		})
	}
}
