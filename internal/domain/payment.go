package domain

import "time"

// PaymentStatus описывает состояние платежа в системе.
type PaymentStatus string

const (
	// PaymentStatusCreated: платёж создан, провайдер ещё не ответил.
	PaymentStatusCreated PaymentStatus = "Created"
	// PaymentStatusAuthorized: сумма успешно зарезервирована у провайдера.
	PaymentStatusAuthorized PaymentStatus = "Authorized"
	// PaymentStatusSettled: деньги списаны в пользу мерчанта.
	PaymentStatusSettled PaymentStatus = "Settled"
	// PaymentStatusDeclined: провайдер отклонил платёж.
	PaymentStatusDeclined PaymentStatus = "Declined"
	// PaymentStatusError: ошибка при обработке платежа.
	PaymentStatusError PaymentStatus = "Error"
	// PaymentStatusCancelled: платёж отменён до списания.
	PaymentStatusCancelled PaymentStatus = "Cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusCreated, PaymentStatusAuthorized, PaymentStatusSettled,
		PaymentStatusDeclined, PaymentStatusError, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}

// PaymentMetadata — данные провайдера, сохраняемые вместе с платежом.
// Поля должны переживать сохранение без изменений: по ним сверяются выписки.
type PaymentMetadata struct {
	OrderID          string     `json:"orderId,omitempty"`
	Mode             string     `json:"mode,omitempty"`
	Method           string     `json:"method,omitempty"`
	ProfileID        string     `json:"profileId,omitempty"`
	SettlementAmount *Money     `json:"settlementAmount,omitempty"`
	AuthorizedAt     *time.Time `json:"authorizedAt,omitempty"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
}

// Payment описывает платёж, связанный с заказом.
type Payment struct {
	ID      string
	OrderID string
	// Method: код локального способа оплаты (например, "mollie").
	Method string
	// TransactionID: идентификатор заказа у провайдера, создавшего платёж. Пустой для нулевых платежей.
	TransactionID string
	Status        PaymentStatus
	AmountMinor   int64
	Metadata      PaymentMetadata
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error
	if p.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if p.Method == "" {
		errs = append(errs, ErrPaymentMethodRequired)
	}
	if p.AmountMinor < 0 {
		errs = append(errs, ErrPaymentAmountNegative)
	}
	if !p.Status.Valid() {
		errs = append(errs, ErrPaymentStatusInvalid)
	}
	return errs
}

// Clone копирует платёж вместе с указателями метаданных.
func (p Payment) Clone() Payment {
	dst := p
	if p.Metadata.SettlementAmount != nil {
		amount := *p.Metadata.SettlementAmount
		dst.Metadata.SettlementAmount = &amount
	}
	if p.Metadata.AuthorizedAt != nil {
		at := *p.Metadata.AuthorizedAt
		dst.Metadata.AuthorizedAt = &at
	}
	if p.Metadata.PaidAt != nil {
		at := *p.Metadata.PaidAt
		dst.Metadata.PaidAt = &at
	}
	return dst
}

// PaymentInput — запрос на прикрепление платежа к заказу.
type PaymentInput struct {
	Method        string
	TransactionID string
	AmountMinor   int64
	Status        PaymentStatus
	Metadata      PaymentMetadata
}

// SettlementResult — результат списания платежа.
// Отказ машины состояний платежа возвращается как значение, а не как ошибка.
type SettlementResult struct {
	Success   bool
	ErrorCode string
	Message   string
}

// Коды отказа при списании.
const (
	SettlementErrorStateTransition = "PAYMENT_STATE_TRANSITION_ERROR"
	SettlementErrorCaptureFailed   = "PROVIDER_CAPTURE_FAILED"
)
