package payment

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

// MockProvider — конфигурируемая заглушка ProviderClient для тестов и локального запуска.
type MockProvider struct {
	mu sync.Mutex

	Orders     map[string]domain.ExternalOrder
	FetchErr   error
	CreateErr  error
	CaptureErr error
	Methods    []domain.ProviderMethod
	MethodsErr error

	// CheckoutURL подставляется в заказ, созданный через CreateOrder.
	CheckoutURL string

	FetchCalls   int
	CreateCalls  int
	CaptureCalls int
	MethodsCalls int

	Created  []domain.CreateOrderParams
	Captured []string
}

// NewMockProvider возвращает mock с заранее известными заказами провайдера.
func NewMockProvider(orders ...domain.ExternalOrder) *MockProvider {
	m := &MockProvider{
		Orders:      make(map[string]domain.ExternalOrder, len(orders)),
		CheckoutURL: "https://checkout.example/pay",
	}
	for _, order := range orders {
		m.Orders[order.ID] = order
	}
	return m
}

// PutOrder добавляет или заменяет заказ провайдера.
func (m *MockProvider) PutOrder(order domain.ExternalOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Orders[order.ID] = order
}

// FetchOrder возвращает сохранённый заказ или настроенную ошибку.
func (m *MockProvider) FetchOrder(_ context.Context, id string) (domain.ExternalOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FetchCalls++
	if m.FetchErr != nil {
		return domain.ExternalOrder{}, m.FetchErr
	}
	order, ok := m.Orders[id]
	if !ok {
		return domain.ExternalOrder{}, domain.ErrProviderRequest
	}
	return order, nil
}

// CreateOrder сохраняет параметры и возвращает созданный заказ в статусе created.
func (m *MockProvider) CreateOrder(_ context.Context, params domain.CreateOrderParams) (domain.ExternalOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	m.Created = append(m.Created, params)
	if m.CreateErr != nil {
		return domain.ExternalOrder{}, m.CreateErr
	}
	order := domain.ExternalOrder{
		ID:          "ord_mock_" + params.OrderNumber,
		Status:      domain.ExternalOrderStatusCreated,
		Amount:      params.Amount,
		OrderNumber: params.OrderNumber,
		Metadata:    params.Metadata,
		Mode:        "test",
		CheckoutURL: m.CheckoutURL,
	}
	m.Orders[order.ID] = order
	return order, nil
}

// CaptureOrder переводит сохранённый заказ в paid.
func (m *MockProvider) CaptureOrder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CaptureCalls++
	m.Captured = append(m.Captured, id)
	if m.CaptureErr != nil {
		return m.CaptureErr
	}
	if order, ok := m.Orders[id]; ok {
		amount := order.Amount
		order.AmountCaptured = &amount
		order.Status = domain.ExternalOrderStatusPaid
		m.Orders[id] = order
	}
	return nil
}

// ListMethods возвращает настроенный список способов оплаты.
func (m *MockProvider) ListMethods(_ context.Context, _ domain.Money, _ string) ([]domain.ProviderMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MethodsCalls++
	if m.MethodsErr != nil {
		return nil, m.MethodsErr
	}
	return append([]domain.ProviderMethod(nil), m.Methods...), nil
}

// MockFactory возвращает один и тот же MockProvider для любого ключа и запоминает ключи.
type MockFactory struct {
	mu       sync.Mutex
	Provider *MockProvider
	Keys     []string
}

// NewMockFactory создаёт фабрику поверх provider.
func NewMockFactory(provider *MockProvider) *MockFactory {
	return &MockFactory{Provider: provider}
}

// ForAPIKey запоминает ключ и возвращает общий mock.
func (f *MockFactory) ForAPIKey(apiKey string) domain.ProviderClient {
	f.mu.Lock()
	f.Keys = append(f.Keys, apiKey)
	f.mu.Unlock()
	return f.Provider
}

var (
	_ domain.ProviderClient  = (*MockProvider)(nil)
	_ domain.ProviderFactory = (*MockFactory)(nil)
)
