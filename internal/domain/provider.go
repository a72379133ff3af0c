package domain

import (
	"context"
	"strings"
	"time"
)

// ExternalOrderStatus — статус заказа на стороне платёжного провайдера.
type ExternalOrderStatus string

const (
	ExternalOrderStatusCreated    ExternalOrderStatus = "created"
	ExternalOrderStatusPending    ExternalOrderStatus = "pending"
	ExternalOrderStatusAuthorized ExternalOrderStatus = "authorized"
	ExternalOrderStatusPaid       ExternalOrderStatus = "paid"
	ExternalOrderStatusShipping   ExternalOrderStatus = "shipping"
	ExternalOrderStatusCompleted  ExternalOrderStatus = "completed"
	ExternalOrderStatusCanceled   ExternalOrderStatus = "canceled"
	ExternalOrderStatusExpired    ExternalOrderStatus = "expired"
)

// Actionable сообщает, может ли статус провайдера изменить локальное состояние.
func (s ExternalOrderStatus) Actionable() bool {
	switch s {
	case ExternalOrderStatusAuthorized, ExternalOrderStatusPaid, ExternalOrderStatusCompleted:
		return true
	default:
		return false
	}
}

// MetadataLanguageCode — ключ метаданных, в котором передаётся язык исходного заказа.
const MetadataLanguageCode = "languageCode"

// ExternalOrder — представление заказа (checkout-сессии) у провайдера.
type ExternalOrder struct {
	ID             string
	Status         ExternalOrderStatus
	Amount         Money
	AmountCaptured *Money
	// OrderNumber совпадает с Order.Code локального заказа.
	OrderNumber  string
	Metadata     map[string]string
	Mode         string
	Method       string
	ProfileID    string
	AuthorizedAt *time.Time
	PaidAt       *time.Time
	CheckoutURL  string
}

// LanguageCode возвращает язык из метаданных заказа, если он был передан при создании.
func (o ExternalOrder) LanguageCode() (string, bool) {
	if o.Metadata == nil {
		return "", false
	}
	lang, ok := o.Metadata[MetadataLanguageCode]
	return lang, ok && lang != ""
}

// Captured сообщает, что провайдер уже списал средства по заказу.
func (o ExternalOrder) Captured() bool {
	switch o.Status {
	case ExternalOrderStatusPaid, ExternalOrderStatusShipping, ExternalOrderStatusCompleted:
		return true
	}
	return o.AmountCaptured != nil && !o.AmountCaptured.IsZero()
}

// PaymentMetadata собирает метаданные платежа из заказа провайдера.
func (o ExternalOrder) PaymentMetadata() PaymentMetadata {
	meta := PaymentMetadata{
		OrderID:      o.ID,
		Mode:         o.Mode,
		Method:       o.Method,
		ProfileID:    o.ProfileID,
		AuthorizedAt: o.AuthorizedAt,
		PaidAt:       o.PaidAt,
	}
	if o.AmountCaptured != nil {
		amount := *o.AmountCaptured
		meta.SettlementAmount = &amount
	}
	return meta
}

// ProviderAddress — адрес в формате провайдера.
type ProviderAddress struct {
	GivenName        string
	FamilyName       string
	Email            string
	OrganizationName string
	StreetAndNumber  string
	StreetAdditional string
	City             string
	Region           string
	PostalCode       string
	Country          string
	Phone            string
}

// ProviderOrderLineType — тип строки заказа у провайдера.
type ProviderOrderLineType string

const (
	ProviderLinePhysical    ProviderOrderLineType = "physical"
	ProviderLineShipping    ProviderOrderLineType = "shipping_fee"
	ProviderLineStoreCredit ProviderOrderLineType = "store_credit"
)

// ProviderOrderLine — строка заказа для создания заказа у провайдера.
type ProviderOrderLine struct {
	Type        ProviderOrderLineType
	Name        string
	SKU         string
	Quantity    int32
	UnitPrice   Money
	TotalAmount Money
	VATRate     string
	VATAmount   Money
}

// CreateOrderParams — параметры создания заказа у провайдера.
type CreateOrderParams struct {
	Amount          Money
	OrderNumber     string
	RedirectURL     string
	WebhookURL      string
	Locale          string
	Method          string
	BillingAddress  ProviderAddress
	ShippingAddress ProviderAddress
	Lines           []ProviderOrderLine
	Metadata        map[string]string
}

// ProviderMethod — способ оплаты, включённый у провайдера.
type ProviderMethod struct {
	ID          string
	Description string
	MinAmount   *Money
	MaxAmount   *Money
	ImageURL    string
}

// ProviderClient описывает взаимодействие с API платёжного провайдера.
type ProviderClient interface {
	// FetchOrder возвращает актуальное состояние заказа у провайдера.
	FetchOrder(ctx context.Context, id string) (ExternalOrder, error)
	// CreateOrder создаёт заказ и возвращает его вместе с checkout URL.
	CreateOrder(ctx context.Context, params CreateOrderParams) (ExternalOrder, error)
	// CaptureOrder списывает авторизованную сумму (отгрузка всех строк).
	CaptureOrder(ctx context.Context, id string) error
	// ListMethods возвращает способы оплаты, доступные для суммы.
	ListMethods(ctx context.Context, amount Money, locale string) ([]ProviderMethod, error)
}

// ProviderFactory создаёт клиента провайдера под конкретный API-ключ способа оплаты.
type ProviderFactory interface {
	ForAPIKey(apiKey string) ProviderClient
}

// PaymentMethod — настроенный способ оплаты с учётными данными провайдера.
type PaymentMethod struct {
	ID      string `yaml:"id"`
	Code    string `yaml:"code"`
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	Enabled bool   `yaml:"enabled"`
	// AutoCapture: списывать авторизованный платёж сразу, не дожидаясь отгрузки.
	AutoCapture bool `yaml:"auto_capture"`
	// RedirectURL: куда провайдер вернёт покупателя; к нему добавляется код заказа.
	RedirectURL string `yaml:"redirect_url"`
	// Currencies: поддерживаемые валюты; пустой список означает любые.
	Currencies []string `yaml:"currencies"`
}

// EligibleFor проверяет, можно ли оплатить заказ этим способом.
func (m PaymentMethod) EligibleFor(order Order) bool {
	if !m.Enabled {
		return false
	}
	if len(m.Currencies) == 0 {
		return true
	}
	for _, c := range m.Currencies {
		if strings.EqualFold(c, order.Currency) {
			return true
		}
	}
	return false
}
