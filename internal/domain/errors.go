package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего кода заказа.
	ErrOrderCodeRequired = errors.New("order code is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка неизвестного состояния заказа.
	ErrOrderStateInvalid = errors.New("order state is invalid")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match lines sum")
	// Ошибка отрицательной суммы платежа.
	ErrPaymentAmountNegative = errors.New("payment amount must be non-negative")
	// Ошибка отсутствующего кода способа оплаты.
	ErrPaymentMethodRequired = errors.New("payment method is required")
	// Ошибка неизвестного статуса платежа.
	ErrPaymentStatusInvalid = errors.New("payment status is invalid")
	// Ошибка отсутствующего идентификатора заказа в платежах.
	ErrOrderIDRequired = errors.New("order_id is required")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderCodeTaken: заказ с таким кодом уже существует.
	ErrOrderCodeTaken = errors.New("order code already exists")
	// ErrPaymentNotFound: платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrDuplicatePayment: к заказу уже прикреплён платёж с этим transaction id.
	ErrDuplicatePayment = errors.New("payment with this transaction id already attached")
	// ErrPaymentMethodNotFound: способ оплаты не найден.
	ErrPaymentMethodNotFound = errors.New("payment method not found")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки сверки платежей. Конкретные типы ниже оборачивают их и несут контекст.
	ErrProviderFetch        = errors.New("provider order fetch failed")
	ErrProviderRequest      = errors.New("provider request failed")
	ErrUnhandledTransition  = errors.New("unhandled provider status transition")
	ErrStateTransition      = errors.New("order state transition rejected")
	ErrPaymentAttach        = errors.New("payment attach rejected")
	ErrSettlement           = errors.New("payment settlement failed")
	ErrReconcileOrderAbsent = errors.New("order for provider order not found")

	// Ошибки промоакций.
	ErrPromotionNotFound    = errors.New("promotion not found")
	ErrPromotionNameMissing = errors.New("promotion name is required")
	ErrPromotionPeriod      = errors.New("promotion ends before it starts")
	ErrPromotionCouponTaken = errors.New("promotion coupon code already used")

	// Ошибки idempotency-key.
	ErrIdempotencyScopeRequired       = errors.New("idempotency scope is required")
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет, что ключ уже занят (тем же или другим запросом).
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// TransitionError — отказ машины состояний заказа.
type TransitionError struct {
	From   OrderState
	To     OrderState
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s: %s", e.From, e.To, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrStateTransition }

// ProviderFetchError — провайдер недоступен или вернул ошибку при чтении заказа.
type ProviderFetchError struct {
	ExternalOrderID string
	Err             error
}

func (e *ProviderFetchError) Error() string {
	return fmt.Sprintf("fetch provider order %s: %v", e.ExternalOrderID, e.Err)
}

func (e *ProviderFetchError) Unwrap() []error { return []error{ErrProviderFetch, e.Err} }

// OrderNotFoundError — для заказа провайдера нет локального заказа.
type OrderNotFoundError struct {
	OrderCode       string
	ExternalOrderID string
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("no order with code %q for provider order %s", e.OrderCode, e.ExternalOrderID)
}

func (e *OrderNotFoundError) Unwrap() error { return ErrReconcileOrderAbsent }

// UnhandledTransitionError — комбинация статуса провайдера и состояния заказа не предусмотрена.
// Означает рассинхронизацию и требует разбора.
type UnhandledTransitionError struct {
	OrderCode       string
	ExternalOrderID string
	ProviderStatus  ExternalOrderStatus
	OrderState      OrderState
}

func (e *UnhandledTransitionError) Error() string {
	return fmt.Sprintf("unhandled provider status %s for order %s in state %s (provider order %s)",
		e.ProviderStatus, e.OrderCode, e.OrderState, e.ExternalOrderID)
}

func (e *UnhandledTransitionError) Unwrap() error { return ErrUnhandledTransition }

// StateTransitionError — заказ не удалось перевести в нужное состояние перед добавлением платежа.
type StateTransitionError struct {
	OrderCode string
	From      OrderState
	To        OrderState
	Reason    string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("order %s: transition %s -> %s failed: %s", e.OrderCode, e.From, e.To, e.Reason)
}

func (e *StateTransitionError) Unwrap() error { return ErrStateTransition }

// PaymentAttachError — хранилище отказалось прикреплять платёж.
type PaymentAttachError struct {
	OrderCode     string
	TransactionID string
	Err           error
}

func (e *PaymentAttachError) Error() string {
	return fmt.Sprintf("attach payment %s to order %s: %v", e.TransactionID, e.OrderCode, e.Err)
}

func (e *PaymentAttachError) Unwrap() []error { return []error{ErrPaymentAttach, e.Err} }

// PaymentNotFoundError — у заказа нет платежа с нужным transaction id.
type PaymentNotFoundError struct {
	OrderCode     string
	TransactionID string
}

func (e *PaymentNotFoundError) Error() string {
	return fmt.Sprintf("order %s has no payment with transaction id %s", e.OrderCode, e.TransactionID)
}

func (e *PaymentNotFoundError) Unwrap() error { return ErrPaymentNotFound }

// SettlementError — списание платежа завершилось отказом.
type SettlementError struct {
	OrderCode string
	PaymentID string
	Code      string
	Message   string
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settle payment %s of order %s: %s: %s", e.PaymentID, e.OrderCode, e.Code, e.Message)
}

func (e *SettlementError) Unwrap() error { return ErrSettlement }
