package mollie

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

const orderPayload = `{
	"resource": "order",
	"id": "ord_kEn1PlbGa",
	"profileId": "pfl_URR55HPMGx",
	"method": "klarnapaylater",
	"mode": "test",
	"status": "authorized",
	"orderNumber": "ORD-1",
	"amount": {"value": "1027.99", "currency": "EUR"},
	"amountCaptured": {"value": "0.00", "currency": "EUR"},
	"metadata": {"languageCode": "nl", "attempt": 2},
	"authorizedAt": "2026-10-19T10:01:02+02:00",
	"_links": {"checkout": {"href": "https://www.mollie.com/payscreen/order/checkout/pbjz8x"}}
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test_key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestClient_FetchOrder(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v2/orders/ord_kEn1PlbGa", r.URL.Path)
		assert.Equal(t, "Bearer test_key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/hal+json")
		_, _ = w.Write([]byte(orderPayload))
	})

	order, err := client.FetchOrder(context.Background(), "ord_kEn1PlbGa")
	require.NoError(t, err)

	assert.Equal(t, domain.ExternalOrderStatusAuthorized, order.Status)
	assert.Equal(t, "ORD-1", order.OrderNumber)
	assert.Equal(t, int64(102799), order.Amount.MinorUnits())
	assert.Equal(t, "EUR", order.Amount.Currency)
	assert.False(t, order.Captured())
	assert.Equal(t, "klarnapaylater", order.Method)
	assert.Equal(t, "pfl_URR55HPMGx", order.ProfileID)
	require.NotNil(t, order.AuthorizedAt)
	assert.Equal(t, 8, order.AuthorizedAt.Hour())
	assert.Nil(t, order.PaidAt)

	lang, ok := order.LanguageCode()
	assert.True(t, ok)
	assert.Equal(t, "nl", lang)
	_, hasAttempt := order.Metadata["attempt"]
	assert.False(t, hasAttempt, "non-string metadata must be dropped")
	assert.Equal(t, "https://www.mollie.com/payscreen/order/checkout/pbjz8x", order.CheckoutURL)
}

func TestClient_FetchOrderErrors(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":404,"title":"Not Found","detail":"No order exists with token ord_x."}`))
	})

	_, err := client.FetchOrder(context.Background(), "ord_x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderRequest))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Detail, "ord_x")

	_, err = client.FetchOrder(context.Background(), " ")
	assert.True(t, errors.Is(err, domain.ErrProviderRequest))
}

func TestClient_EmptyAPIKey(t *testing.T) {
	client := NewFactory(WithBaseURL("http://127.0.0.1:1")).ForAPIKey("")

	_, err := client.FetchOrder(context.Background(), "ord_1")
	assert.ErrorIs(t, err, domain.ErrProviderRequest)
	assert.ErrorIs(t, client.CaptureOrder(context.Background(), "ord_1"), domain.ErrProviderRequest)
}

func TestWithBaseURL(t *testing.T) {
	for in, want := range map[string]string{
		"":                         DefaultBaseURL,
		"http://localhost:9000":    "http://localhost:9000/",
		"http://localhost:9000///": "http://localhost:9000/",
		" https://api.example/x/ ": "https://api.example/x/",
	} {
		assert.Equal(t, want, newConfig([]Option{WithBaseURL(in)}).baseURL, in)
	}
}

func TestClient_ErrorWithoutBody(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.CaptureOrder(context.Background(), "ord_1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Bad Gateway", apiErr.Title)
}

func TestClient_CreateOrder(t *testing.T) {
	var got createOrderRequest
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/orders", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(orderPayload))
	})

	params := domain.CreateOrderParams{
		Amount:      domain.MoneyFromMinor(1000, "eur"),
		OrderNumber: "ORD-1",
		RedirectURL: "https://shop.example/checkout/ORD-1",
		WebhookURL:  "https://api.example/payments/mollie/mollie-eur",
		Locale:      "nl_NL",
		BillingAddress: domain.ProviderAddress{
			GivenName: "Anna", FamilyName: "de Vries", Email: "anna@example.com",
			StreetAndNumber: "Keizersgracht 1", City: "Amsterdam", PostalCode: "1015CC", Country: "NL",
		},
		Lines: []domain.ProviderOrderLine{{
			Type: domain.ProviderLinePhysical, Name: "Coffee", SKU: "sku-1", Quantity: 2,
			UnitPrice:   domain.MoneyFromMinor(450, "EUR"),
			TotalAmount: domain.MoneyFromMinor(900, "EUR"),
			VATRate:     "9.00",
			VATAmount:   domain.MoneyFromMinor(74, "EUR"),
		}},
		Metadata: map[string]string{domain.MetadataLanguageCode: "nl"},
	}

	order, err := client.CreateOrder(context.Background(), params)
	require.NoError(t, err)
	assert.NotEmpty(t, order.CheckoutURL)

	assert.Equal(t, amountDTO{Value: "10.00", Currency: "EUR"}, got.Amount)
	assert.Equal(t, "nl_NL", got.Locale)
	assert.Nil(t, got.ShippingAddress)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "physical", got.Lines[0].Type)
	assert.Equal(t, "0.74", got.Lines[0].VATAmount.Value)
	assert.Equal(t, "nl", got.Metadata[domain.MetadataLanguageCode])
}

func TestClient_CaptureOrder(t *testing.T) {
	called := false
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/orders/ord_1/shipments", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Empty(t, body["lines"], "shipment without lines ships the whole order")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"resource":"shipment","id":"shp_1"}`))
	})

	require.NoError(t, client.CaptureOrder(context.Background(), "ord_1"))
	assert.True(t, called)
}

func TestClient_ListMethods(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/methods", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "orders", q.Get("resource"))
		assert.Equal(t, "de_DE", q.Get("locale"))
		assert.Contains(t, r.URL.RawQuery, "10.00")
		assert.Contains(t, r.URL.RawQuery, "EUR")
		_, _ = w.Write([]byte(`{
			"count": 2,
			"_embedded": {"methods": [
				{"id": "ideal", "description": "iDEAL",
				 "minimumAmount": {"value": "0.01", "currency": "EUR"},
				 "maximumAmount": {"value": "50000.00", "currency": "EUR"},
				 "image": {"size1x": "a.png", "size2x": "b.png", "svg": "c.svg"}},
				{"id": "creditcard", "description": "Card", "image": {"size2x": "card.png"}}
			]}
		}`))
	})

	methods, err := client.ListMethods(context.Background(), domain.MoneyFromMinor(1000, "EUR"), "de_DE")
	require.NoError(t, err)
	require.Len(t, methods, 2)

	assert.Equal(t, "ideal", methods[0].ID)
	assert.Equal(t, "c.svg", methods[0].ImageURL)
	require.NotNil(t, methods[0].MinAmount)
	assert.Equal(t, int64(1), methods[0].MinAmount.MinorUnits())
	assert.Nil(t, methods[1].MaxAmount)
	assert.Equal(t, "card.png", methods[1].ImageURL)
}

func TestFactory_ForAPIKey(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(orderPayload))
	}))
	defer srv.Close()

	factory := NewFactory(WithBaseURL(srv.URL + "/"))
	_, err := factory.ForAPIKey("live_a").FetchOrder(context.Background(), "ord_1")
	require.NoError(t, err)
	_, err = factory.ForAPIKey("live_b").FetchOrder(context.Background(), "ord_1")
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer live_a", "Bearer live_b"}, keys)
}
