package reconcile

import "github.com/vladislavdragonenkov/payrecon/internal/domain"

// action: что сделать с заказом в ответ на статус провайдера.
type action int

const (
	actionUnhandled action = iota
	// actionAddSettled: провайдер уже списал деньги, добавляем списанный платёж.
	actionAddSettled
	// actionAddAuthorized: деньги зарезервированы, добавляем авторизованный платёж.
	actionAddAuthorized
	// actionAddAuthorizedAndSettle: то же, но способ оплаты требует немедленного списания.
	actionAddAuthorizedAndSettle
	// actionSettleExisting: списываем ранее авторизованный платёж этой транзакции.
	actionSettleExisting
	// actionCapturedByAutoCapture: completed после автосписания, всё уже сделано.
	actionCapturedByAutoCapture
	// actionAlreadyApplied: повторное уведомление по уже учтённой транзакции.
	actionAlreadyApplied
)

func (a action) String() string {
	switch a {
	case actionAddSettled:
		return "add_settled"
	case actionAddAuthorized:
		return "add_authorized"
	case actionAddAuthorizedAndSettle:
		return "add_authorized_and_settle"
	case actionSettleExisting:
		return "settle_existing"
	case actionCapturedByAutoCapture:
		return "captured_by_auto_capture"
	case actionAlreadyApplied:
		return "already_applied"
	default:
		return "unhandled"
	}
}

// decide сопоставляет статус провайдера и состояние заказа.
// attached: статус уже прикреплённого платежа этой транзакции или пустая строка.
// Порядок веток задаёт приоритет.
func decide(status domain.ExternalOrderStatus, state domain.OrderState, autoCapture bool, attached domain.PaymentStatus) action {
	switch {
	case status == domain.ExternalOrderStatusPaid && attached == domain.PaymentStatusSettled:
		return actionAlreadyApplied
	case status == domain.ExternalOrderStatusPaid && attached == domain.PaymentStatusAuthorized:
		return actionSettleExisting
	case status == domain.ExternalOrderStatusPaid:
		return actionAddSettled

	case status == domain.ExternalOrderStatusAuthorized && attached != "":
		return actionAlreadyApplied
	case status == domain.ExternalOrderStatusAuthorized && state == domain.OrderStateAddingItems && autoCapture:
		return actionAddAuthorizedAndSettle
	case status == domain.ExternalOrderStatusAuthorized && state == domain.OrderStateAddingItems:
		return actionAddAuthorized

	case status == domain.ExternalOrderStatusCompleted && state == domain.OrderStatePaymentAuthorized:
		return actionSettleExisting
	case status == domain.ExternalOrderStatusCompleted && autoCapture:
		return actionCapturedByAutoCapture

	default:
		return actionUnhandled
	}
}
