package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
	"github.com/vladislavdragonenkov/payrecon/internal/service/payment"
	"github.com/vladislavdragonenkov/payrecon/internal/storage/memory"
)

type fixture struct {
	orders   *memory.OrderStore
	methods  domain.PaymentMethodRepository
	provider *payment.MockProvider
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	orders := memory.NewOrderStore()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	methods := memory.NewPaymentMethodRepository(
		domain.PaymentMethod{
			ID: "mollie-eur", Code: "mollie", APIKey: "test_key", Enabled: true,
			RedirectURL: "https://shop.example/checkout/confirmation/", Currencies: []string{"EUR"},
		},
		domain.PaymentMethod{ID: "mollie-usd", Code: "mollie-usd", APIKey: "test_usd", Enabled: true, Currencies: []string{"USD"}},
		domain.PaymentMethod{ID: "mollie-off", Code: "mollie-off", APIKey: "test_off", Enabled: false},
	)
	provider := payment.NewMockProvider()
	svc := NewService(orders, memory.NewTransactor(orders, outbox, timeline), methods,
		payment.NewMockFactory(provider), "https://api.example/")
	return &fixture{orders: orders, methods: methods, provider: provider, svc: svc}
}

func checkoutOrder(state domain.OrderState) domain.Order {
	return domain.Order{
		ID:       "order-1",
		Code:     "ORD-1",
		State:    state,
		Currency: "EUR",
		Customer: domain.Customer{FirstName: "Anna", LastName: "de Vries", Email: "anna@example.com"},
		ShippingAddress: domain.Address{
			StreetLine1: "Keizersgracht 1", City: "Amsterdam", PostalCode: "1015CC", CountryCode: "NL",
		},
		Lines: []domain.OrderLine{
			{ID: "line-1", SKU: "sku-1", Name: "Coffee", Qty: 2, UnitPriceWithTaxMinor: 545, TaxRate: 9},
		},
		ShippingWithTaxMinor: 100,
		TotalWithTaxMinor:    1190,
	}
}

func (f *fixture) seed(t *testing.T, order domain.Order) {
	t.Helper()
	require.NoError(t, f.orders.Create(context.Background(), order))
}

func TestCreatePaymentIntent_CreatesProviderOrder(t *testing.T) {
	f := newFixture(t)
	f.seed(t, checkoutOrder(domain.OrderStateAddingItems))

	ctx := domain.WithLanguage(context.Background(), "nl")
	res, err := f.svc.CreatePaymentIntent(ctx, Input{OrderCode: "ORD-1", PaymentMethodCode: "mollie", Locale: "nl_NL", ProviderMethod: "ideal"})
	require.NoError(t, err)
	require.Nil(t, res.Error)
	assert.Equal(t, f.provider.CheckoutURL, res.CheckoutURL)
	assert.False(t, res.Settled)

	require.Len(t, f.provider.Created, 1)
	params := f.provider.Created[0]
	assert.Equal(t, "11.90", params.Amount.String())
	assert.Equal(t, "ORD-1", params.OrderNumber)
	assert.Equal(t, "https://shop.example/checkout/confirmation/ORD-1", params.RedirectURL)
	assert.Equal(t, "https://api.example/payments/mollie/mollie-eur", params.WebhookURL)
	assert.Equal(t, "ideal", params.Method)
	assert.Equal(t, "nl", params.Metadata[domain.MetadataLanguageCode])
	assert.Equal(t, "Anna", params.BillingAddress.GivenName)
	assert.Equal(t, "Amsterdam", params.BillingAddress.City)

	require.Len(t, params.Lines, 2)
	assert.Equal(t, domain.ProviderLinePhysical, params.Lines[0].Type)
	assert.Equal(t, "10.90", params.Lines[0].TotalAmount.String())
	assert.Equal(t, "9.00", params.Lines[0].VATRate)
	assert.Equal(t, "0.90", params.Lines[0].VATAmount.String())
	assert.Equal(t, domain.ProviderLineShipping, params.Lines[1].Type)

	// Заказ остаётся в AddingItems до уведомления провайдера.
	order, err := f.orders.FindByCode(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateAddingItems, order.State)
}

func TestCreatePaymentIntent_PartiallyPaidOrder(t *testing.T) {
	f := newFixture(t)
	order := checkoutOrder(domain.OrderStateArrangingAdditionalPayment)
	order.Payments = []domain.Payment{{
		ID: "p-1", Method: "mollie", TransactionID: "ord_prev", Status: domain.PaymentStatusSettled,
		AmountMinor: 1000, CreatedAt: time.Now().UTC(),
	}}
	f.seed(t, order)

	res, err := f.svc.CreatePaymentIntent(context.Background(), Input{OrderCode: "ORD-1", PaymentMethodCode: "mollie"})
	require.NoError(t, err)
	require.Nil(t, res.Error)

	params := f.provider.Created[0]
	assert.Equal(t, "1.90", params.Amount.String())
	assert.Equal(t, DefaultLocale, params.Locale)
	assert.Equal(t, "en", params.Metadata[domain.MetadataLanguageCode])

	last := params.Lines[len(params.Lines)-1]
	assert.Equal(t, domain.ProviderLineStoreCredit, last.Type)
	assert.Equal(t, "-10.00", last.TotalAmount.String())

	var sum int64
	for _, line := range params.Lines {
		sum += line.TotalAmount.MinorUnits()
	}
	assert.Equal(t, params.Amount.MinorUnits(), sum)
}

func TestCreatePaymentIntent_ZeroOutstandingSettlesLocally(t *testing.T) {
	f := newFixture(t)
	order := checkoutOrder(domain.OrderStateAddingItems)
	order.Lines = nil
	order.ShippingWithTaxMinor = 0
	order.TotalWithTaxMinor = 0
	f.seed(t, order)

	res, err := f.svc.CreatePaymentIntent(context.Background(), Input{OrderCode: "ORD-1", PaymentMethodCode: "mollie"})
	require.NoError(t, err)
	require.Nil(t, res.Error)
	assert.True(t, res.Settled)
	assert.Equal(t, "https://shop.example/checkout/confirmation/ORD-1", res.CheckoutURL)
	assert.Equal(t, 0, f.provider.CreateCalls)

	stored, err := f.orders.FindByCode(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Len(t, stored.Payments, 1)
	assert.Equal(t, int64(0), stored.Payments[0].AmountMinor)
	assert.Equal(t, domain.PaymentStatusSettled, stored.Payments[0].Status)
	assert.Equal(t, domain.OrderStatePaymentSettled, stored.State)
}

func TestCreatePaymentIntent_ValidationResults(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.Order)
		input  Input
		code   string
		field  string
	}{
		{
			name:  "unknown order",
			input: Input{OrderCode: "ORD-X", PaymentMethodCode: "mollie"},
			code:  CodeOrderNotFound, field: "orderCode",
		},
		{
			name:  "unknown method",
			input: Input{OrderCode: "ORD-1", PaymentMethodCode: "paypal"},
			code:  CodeIneligiblePaymentMethod, field: "paymentMethodCode",
		},
		{
			name:  "disabled method",
			input: Input{OrderCode: "ORD-1", PaymentMethodCode: "mollie-off"},
			code:  CodeIneligiblePaymentMethod, field: "paymentMethodCode",
		},
		{
			name:  "currency not supported",
			input: Input{OrderCode: "ORD-1", PaymentMethodCode: "mollie-usd"},
			code:  CodeIneligiblePaymentMethod, field: "paymentMethodCode",
		},
		{
			name:   "missing last name",
			mutate: func(o *domain.Order) { o.Customer.LastName = " " },
			input:  Input{OrderCode: "ORD-1", PaymentMethodCode: "mollie"},
			code:   CodeMissingCustomerName, field: "customer",
		},
		{
			name:   "missing postal code",
			mutate: func(o *domain.Order) { o.ShippingAddress.PostalCode = "" },
			input:  Input{OrderCode: "ORD-1", PaymentMethodCode: "mollie"},
			code:   CodeIncompleteAddress, field: "shippingAddress",
		},
		{
			name:   "order already settled",
			mutate: func(o *domain.Order) { o.State = domain.OrderStatePaymentSettled },
			input:  Input{OrderCode: "ORD-1", PaymentMethodCode: "mollie"},
			code:   CodeOrderState,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			order := checkoutOrder(domain.OrderStateAddingItems)
			if tc.mutate != nil {
				tc.mutate(&order)
			}
			f.seed(t, order)

			res, err := f.svc.CreatePaymentIntent(context.Background(), tc.input)
			require.NoError(t, err)
			require.NotNil(t, res.Error)
			assert.Equal(t, tc.code, res.Error.Code)
			assert.Equal(t, tc.field, res.Error.Field)
			assert.Empty(t, res.CheckoutURL)
			assert.Equal(t, 0, f.provider.CreateCalls)
		})
	}
}

func TestCreatePaymentIntent_MissingRedirectURL(t *testing.T) {
	f := newFixture(t)
	order := checkoutOrder(domain.OrderStateAddingItems)
	order.Currency = "USD"
	f.seed(t, order)

	res, err := f.svc.CreatePaymentIntent(context.Background(), Input{OrderCode: "ORD-1", PaymentMethodCode: "mollie-usd"})
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeMissingRedirectURL, res.Error.Code)

	res, err = f.svc.CreatePaymentIntent(context.Background(), Input{
		OrderCode: "ORD-1", PaymentMethodCode: "mollie-usd", RedirectURL: "https://shop.example/done",
	})
	require.NoError(t, err)
	require.Nil(t, res.Error)
	assert.Equal(t, "https://shop.example/done/ORD-1", f.provider.Created[0].RedirectURL)
}

func TestCreatePaymentIntent_ProviderFailureIsError(t *testing.T) {
	f := newFixture(t)
	f.seed(t, checkoutOrder(domain.OrderStateArrangingPayment))
	f.provider.CreateErr = domain.ErrProviderRequest

	res, err := f.svc.CreatePaymentIntent(context.Background(), Input{OrderCode: "ORD-1", PaymentMethodCode: "mollie"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderRequest))
	assert.Nil(t, res.Error)
}

func TestListProviderMethods(t *testing.T) {
	f := newFixture(t)
	f.seed(t, checkoutOrder(domain.OrderStateAddingItems))
	f.provider.Methods = []domain.ProviderMethod{{ID: "ideal", Description: "iDEAL"}}

	methods, err := f.svc.ListProviderMethods(context.Background(), "mollie", "ORD-1", "")
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, "ideal", methods[0].ID)

	_, err = f.svc.ListProviderMethods(context.Background(), "mollie-off", "ORD-1", "")
	assert.True(t, errors.Is(err, domain.ErrPaymentMethodNotFound))

	_, err = f.svc.ListProviderMethods(context.Background(), "mollie", "ORD-X", "")
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
}

func TestVATAmount(t *testing.T) {
	total := domain.MoneyFromMinor(12100, "EUR")
	cases := map[string]string{
		"21": "21.00",
		"9":  "9.99",
		"0":  "0.00",
	}
	for rate, want := range cases {
		got := vatAmount(total, mustDecimal(t, rate))
		assert.Equal(t, want, got.String(), "rate %s", rate)
	}
}

func mustDecimal(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}
