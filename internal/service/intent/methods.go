package intent

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

// ListProviderMethods возвращает методы провайдера, доступные для суммы к оплате заказа.
// Нужен checkout-странице, чтобы покупатель выбрал метод до создания намерения.
func (s *Service) ListProviderMethods(ctx context.Context, paymentMethodCode, orderCode, locale string) ([]domain.ProviderMethod, error) {
	method, err := s.methods.GetByCode(ctx, paymentMethodCode)
	if err != nil {
		return nil, err
	}
	if !method.Enabled {
		return nil, domain.ErrPaymentMethodNotFound
	}
	order, err := s.orders.FindByCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	if locale == "" {
		locale = DefaultLocale
	}

	amount := order.OutstandingMinor()
	if amount == 0 {
		amount = order.TotalWithTaxMinor
	}

	client := s.providers.ForAPIKey(method.APIKey)
	start := time.Now()
	methods, err := client.ListMethods(ctx, domain.MoneyFromMinor(amount, order.Currency), locale)
	if s.metrics != nil {
		s.metrics.RecordProviderCall("list_methods", err, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("list provider methods: %w", err)
	}
	return methods, nil
}
