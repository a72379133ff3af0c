package domain

import (
	"strings"
	"time"
)

// OrderState описывает состояние локального заказа в машине состояний магазина.
type OrderState string

const (
	// OrderStateDraft: черновик заказа, созданный администратором.
	OrderStateDraft OrderState = "Draft"
	// OrderStateAddingItems: покупатель наполняет корзину.
	OrderStateAddingItems OrderState = "AddingItems"
	// OrderStateArrangingPayment: покупатель перешёл к оплате.
	OrderStateArrangingPayment OrderState = "ArrangingPayment"
	// OrderStateArrangingAdditionalPayment: заказ изменён после оплаты и требует доплаты.
	OrderStateArrangingAdditionalPayment OrderState = "ArrangingAdditionalPayment"
	// OrderStatePaymentAuthorized: платежи покрывают сумму заказа, деньги зарезервированы.
	OrderStatePaymentAuthorized OrderState = "PaymentAuthorized"
	// OrderStatePaymentSettled: платежи покрывают сумму заказа и списаны.
	OrderStatePaymentSettled OrderState = "PaymentSettled"
	OrderStateShipped        OrderState = "Shipped"
	OrderStateDelivered      OrderState = "Delivered"
	OrderStateCancelled      OrderState = "Cancelled"
)

// orderTransitions: допустимые переходы машины состояний заказа.
var orderTransitions = map[OrderState][]OrderState{
	OrderStateDraft:                      {OrderStateArrangingPayment, OrderStateCancelled},
	OrderStateAddingItems:                {OrderStateArrangingPayment, OrderStateCancelled},
	OrderStateArrangingPayment:           {OrderStateAddingItems, OrderStatePaymentAuthorized, OrderStatePaymentSettled, OrderStateCancelled},
	OrderStateArrangingAdditionalPayment: {OrderStatePaymentAuthorized, OrderStatePaymentSettled, OrderStateCancelled},
	OrderStatePaymentAuthorized:          {OrderStatePaymentSettled, OrderStateArrangingAdditionalPayment, OrderStateCancelled},
	OrderStatePaymentSettled:             {OrderStateArrangingAdditionalPayment, OrderStateShipped, OrderStateCancelled},
	OrderStateShipped:                    {OrderStateDelivered},
	OrderStateDelivered:                  nil,
	OrderStateCancelled:                  nil,
}

// Valid проверяет, что состояние известно машине состояний.
func (s OrderState) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// ReconciliationEligible сообщает, может ли webhook провайдера менять заказ в этом состоянии.
// Остальные состояния либо уже финализированы, либо ещё не готовы к оплате.
func (s OrderState) ReconciliationEligible() bool {
	switch s {
	case OrderStateAddingItems,
		OrderStateArrangingPayment,
		OrderStateArrangingAdditionalPayment,
		OrderStatePaymentAuthorized,
		OrderStateDraft:
		return true
	default:
		return false
	}
}

// ArrangingPayment — заказ уже находится на этапе оплаты.
func (s OrderState) ArrangingPayment() bool {
	return s == OrderStateArrangingPayment || s == OrderStateArrangingAdditionalPayment
}

// CanTransition проверяет переход по таблице машины состояний.
func CanTransition(from, to OrderState) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Customer — данные покупателя, нужные для оплаты.
type Customer struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

// HasName проверяет, что заполнены имя и фамилия.
func (c Customer) HasName() bool {
	return strings.TrimSpace(c.FirstName) != "" && strings.TrimSpace(c.LastName) != ""
}

// Address — адрес доставки или оплаты.
type Address struct {
	FullName    string
	Company     string
	StreetLine1 string
	StreetLine2 string
	City        string
	Province    string
	PostalCode  string
	CountryCode string
	Phone       string
}

// Complete проверяет, что адрес пригоден для передачи провайдеру.
func (a Address) Complete() bool {
	return strings.TrimSpace(a.StreetLine1) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.PostalCode) != "" &&
		strings.TrimSpace(a.CountryCode) != ""
}

// OrderLine представляет одну позицию заказа.
type OrderLine struct {
	ID  string
	SKU string
	// Name: название товара, передаётся провайдеру в строках заказа.
	Name string
	Qty  int32
	// UnitPriceWithTaxMinor: цена за единицу с налогом в минимальных единицах.
	UnitPriceWithTaxMinor int64
	// TaxRate: ставка НДС в процентах, например 21.00.
	TaxRate   float64
	CreatedAt time.Time
}

// TotalWithTaxMinor возвращает сумму позиции.
func (l OrderLine) TotalWithTaxMinor() int64 {
	return int64(l.Qty) * l.UnitPriceWithTaxMinor
}

// Order агрегирует локальный заказ, его позиции и платежи.
type Order struct {
	ID                   string
	Code                 string
	State                OrderState
	CustomerID           string
	Customer             Customer
	ShippingAddress      Address
	BillingAddress       Address
	Currency             string
	Lines                []OrderLine
	ShippingWithTaxMinor int64
	TotalWithTaxMinor    int64
	Payments             []Payment
	// OrderPlacedAt заполняется при первом переходе в PaymentAuthorized/PaymentSettled.
	OrderPlacedAt *time.Time
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Placed сообщает, прошёл ли заказ уже полный цикл оплаты.
func (o *Order) Placed() bool {
	return o.OrderPlacedAt != nil
}

// PaymentByTransactionID ищет платёж по идентификатору транзакции провайдера.
func (o *Order) PaymentByTransactionID(transactionID string) (Payment, bool) {
	for _, p := range o.Payments {
		if p.TransactionID != "" && p.TransactionID == transactionID {
			return p, true
		}
	}
	return Payment{}, false
}

// AmountCoveredByPayments возвращает сумму авторизованных и списанных платежей.
func (o *Order) AmountCoveredByPayments() int64 {
	var covered int64
	for _, p := range o.Payments {
		if p.Status == PaymentStatusAuthorized || p.Status == PaymentStatusSettled {
			covered += p.AmountMinor
		}
	}
	return covered
}

// amountSettled возвращает сумму только списанных платежей.
func (o *Order) amountSettled() int64 {
	var settled int64
	for _, p := range o.Payments {
		if p.Status == PaymentStatusSettled {
			settled += p.AmountMinor
		}
	}
	return settled
}

// OutstandingMinor — сколько ещё нужно оплатить.
func (o *Order) OutstandingMinor() int64 {
	outstanding := o.TotalWithTaxMinor - o.AmountCoveredByPayments()
	if outstanding < 0 {
		return 0
	}
	return outstanding
}

// PaymentTargetState вычисляет состояние, которого заказ достигает при текущих платежах.
// Возвращает false, если платежи ещё не покрывают сумму заказа.
func (o *Order) PaymentTargetState() (OrderState, bool) {
	switch {
	case o.amountSettled() >= o.TotalWithTaxMinor:
		return OrderStatePaymentSettled, true
	case o.AmountCoveredByPayments() >= o.TotalWithTaxMinor:
		return OrderStatePaymentAuthorized, true
	default:
		return "", false
	}
}

// AdvanceAfterPayment переводит заказ в состояние, соответствующее покрытию платежами.
// Используется хранилищами после добавления или списания платежа.
func (o *Order) AdvanceAfterPayment(now time.Time) {
	target, ok := o.PaymentTargetState()
	if !ok || target == o.State || !CanTransition(o.State, target) {
		return
	}
	o.State = target
	if o.OrderPlacedAt == nil {
		placed := now
		o.OrderPlacedAt = &placed
	}
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(o.Code) == "" {
		errs = append(errs, ErrOrderCodeRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if !o.State.Valid() {
		errs = append(errs, ErrOrderStateInvalid)
	}
	if o.TotalWithTaxMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций и доставкой.
	calc := o.ShippingWithTaxMinor
	for _, line := range o.Lines {
		if line.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if line.UnitPriceWithTaxMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += line.TotalWithTaxMinor()
	}
	if len(o.Lines) > 0 && calc != o.TotalWithTaxMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// Clone возвращает глубокую копию заказа, чтобы хранилища не делили слайсы с вызывающим кодом.
func (o Order) Clone() Order {
	dst := o
	dst.Lines = append([]OrderLine(nil), o.Lines...)
	dst.Payments = make([]Payment, len(o.Payments))
	for i, p := range o.Payments {
		dst.Payments[i] = p.Clone()
	}
	if o.OrderPlacedAt != nil {
		placed := *o.OrderPlacedAt
		dst.OrderPlacedAt = &placed
	}
	return dst
}
