package mollie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	sdk "github.com/VictorAvelar/mollie-api-go/v4/mollie"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

const (
	// DefaultBaseURL — корень Mollie API, версия добавляется SDK.
	DefaultBaseURL = sdk.BaseURL

	defaultTimeout = 10 * time.Second
	ordersResource = "orders"
)

// Client — клиент Mollie Orders API для одного API-ключа поверх mollie-api-go.
// Клиент не повторяет запросы: повторную доставку обеспечивает вызывающая сторона.
type Client struct {
	api *sdk.Client
	// err — ошибка сборки SDK-клиента, возвращается из каждого вызова.
	err error
}

// Option настраивает клиента или фабрику.
type Option func(*config)

type config struct {
	baseURL string
	http    *http.Client
}

// WithBaseURL переопределяет адрес API (используется в тестах).
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/") + "/"
		}
	}
}

// WithHTTPClient задаёт HTTP-клиент.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		if client != nil {
			c.http = client
		}
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewClient создаёт клиента с указанным API-ключом.
func NewClient(apiKey string, opts ...Option) *Client {
	return newClient(apiKey, newConfig(opts))
}

func newClient(apiKey string, cfg config) *Client {
	api, err := sdk.NewClient(cfg.http, sdk.NewAPIConfig(false))
	if err != nil {
		return &Client{err: fmt.Errorf("mollie: init client: %w", err)}
	}
	if err := api.WithAuthenticationValue(apiKey); err != nil {
		return &Client{err: fmt.Errorf("mollie: api key: %w: %w", err, domain.ErrProviderRequest)}
	}
	base, err := url.Parse(cfg.baseURL)
	if err != nil {
		return &Client{err: fmt.Errorf("mollie: base url %q: %w", cfg.baseURL, err)}
	}
	api.BaseURL = base
	return &Client{api: api}
}

// Factory создаёт клиентов под API-ключ способа оплаты. HTTP-клиент общий.
type Factory struct {
	cfg config
}

// NewFactory создаёт фабрику клиентов Mollie.
func NewFactory(opts ...Option) *Factory {
	return &Factory{cfg: newConfig(opts)}
}

// ForAPIKey возвращает клиента для ключа.
func (f *Factory) ForAPIKey(apiKey string) domain.ProviderClient {
	return newClient(apiKey, f.cfg)
}

// APIError — ответ Mollie с кодом ошибки.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
	Field      string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("mollie: %d %s: %s (field %s)", e.StatusCode, e.Title, e.Detail, e.Field)
	}
	return fmt.Sprintf("mollie: %d %s: %s", e.StatusCode, e.Title, e.Detail)
}

func (e *APIError) Unwrap() error { return domain.ErrProviderRequest }

// FetchOrder читает заказ: GET /v2/orders/{id}.
func (c *Client) FetchOrder(ctx context.Context, id string) (domain.ExternalOrder, error) {
	if c.err != nil {
		return domain.ExternalOrder{}, c.err
	}
	if strings.TrimSpace(id) == "" {
		return domain.ExternalOrder{}, fmt.Errorf("mollie: empty order id: %w", domain.ErrProviderRequest)
	}

	res, order, err := c.api.Orders.Get(ctx, id, nil)
	if err != nil {
		return domain.ExternalOrder{}, apiError("get order "+id, res, err)
	}
	return decodeOrder(order)
}

// CreateOrder создаёт заказ и возвращает его с checkout URL.
func (c *Client) CreateOrder(ctx context.Context, params domain.CreateOrderParams) (domain.ExternalOrder, error) {
	if c.err != nil {
		return domain.ExternalOrder{}, c.err
	}

	var create sdk.CreateOrder
	if err := convert(newCreateOrderRequest(params), &create); err != nil {
		return domain.ExternalOrder{}, fmt.Errorf("mollie: encode order %s: %w", params.OrderNumber, err)
	}
	res, order, err := c.api.Orders.Create(ctx, create, nil)
	if err != nil {
		return domain.ExternalOrder{}, apiError("create order "+params.OrderNumber, res, err)
	}
	return decodeOrder(order)
}

// CaptureOrder создаёт отгрузку всех строк заказа, что списывает авторизованную сумму.
func (c *Client) CaptureOrder(ctx context.Context, id string) error {
	if c.err != nil {
		return c.err
	}
	// Отгрузка без строк означает отгрузку всего заказа.
	res, _, err := c.api.Shipments.Create(ctx, id, sdk.CreateShipment{})
	if err != nil {
		return apiError("capture order "+id, res, err)
	}
	return nil
}

// ListMethods возвращает методы Orders API, доступные для суммы и локали.
func (c *Client) ListMethods(ctx context.Context, amount domain.Money, locale string) ([]domain.ProviderMethod, error) {
	if c.err != nil {
		return nil, c.err
	}

	opts := &sdk.ListPaymentMethodsOptions{}
	opts.Resource = ordersResource
	opts.Amount = &sdk.Amount{Value: amount.String(), Currency: amount.Currency}
	if locale != "" {
		opts.Locale = sdk.Locale(locale)
	}

	res, list, err := c.api.PaymentMethods.List(ctx, opts)
	if err != nil {
		return nil, apiError("list methods", res, err)
	}
	var resp methodsResponse
	if err := convert(list, &resp); err != nil {
		return nil, fmt.Errorf("mollie: decode methods: %w", err)
	}

	methods := make([]domain.ProviderMethod, 0, len(resp.Embedded.Methods))
	for _, m := range resp.Embedded.Methods {
		method, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		methods = append(methods, method)
	}
	return methods, nil
}

func decodeOrder(order *sdk.Order) (domain.ExternalOrder, error) {
	if order == nil {
		return domain.ExternalOrder{}, fmt.Errorf("mollie: empty order response: %w", domain.ErrProviderRequest)
	}
	var resp orderResponse
	if err := convert(order, &resp); err != nil {
		return domain.ExternalOrder{}, fmt.Errorf("mollie: decode order %s: %w", order.ID, err)
	}
	return resp.toDomain()
}

// convert перекладывает значение через JSON: типы SDK и DTO описывают один формат Mollie.
func convert(from, to any) error {
	raw, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, to)
}

// apiError приводит ошибку SDK к APIError; сетевые ошибки оборачиваются как есть.
func apiError(op string, res *sdk.Response, err error) error {
	status := 0
	if res != nil && res.Response != nil {
		status = res.StatusCode
	}
	var base *sdk.BaseError
	hasBase := errors.As(err, &base)
	if hasBase && status == 0 {
		status = base.Status
	}
	if status == 0 {
		return fmt.Errorf("mollie: %s: %w", op, err)
	}

	apiErr := &APIError{StatusCode: status, Title: http.StatusText(status), Detail: err.Error()}
	if hasBase {
		if base.Detail != "" {
			apiErr.Detail = base.Detail
		}
		apiErr.Field = base.Field
	}
	return apiErr
}

var _ domain.ProviderClient = (*Client)(nil)
