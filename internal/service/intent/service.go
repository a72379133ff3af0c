package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
	"github.com/vladislavdragonenkov/payrecon/internal/metrics"
)

// Коды ошибок платёжного намерения, которые показываются покупателю.
const (
	CodeOrderNotFound           = "order_not_found"
	CodeIneligiblePaymentMethod = "ineligible_payment_method"
	CodeMissingCustomerName     = "missing_customer_name"
	CodeIncompleteAddress       = "incomplete_address"
	CodeMissingRedirectURL      = "missing_redirect_url"
	CodeOrderState              = "order_state"
)

// DefaultLocale используется, если покупатель не передал локаль.
const DefaultLocale = "en_US"

// IntentError — ошибка ввода или состояния заказа. Возвращается значением в Result.
type IntentError struct {
	Code    string
	Message string
	// Field указывает поле ввода, к которому относится ошибка (может быть пустым).
	Field string
}

func (e *IntentError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Input — запрос на создание платёжного намерения.
type Input struct {
	OrderCode         string
	PaymentMethodCode string
	// RedirectURL переопределяет адрес возврата из настроек способа оплаты.
	RedirectURL string
	// ProviderMethod задаёт метод провайдера (ideal, creditcard); пустой оставляет выбор checkout-странице.
	ProviderMethod string
	Locale         string
}

// Result — результат создания намерения. Либо CheckoutURL, либо Error.
type Result struct {
	CheckoutURL string
	// Settled: к оплате ничего не осталось, заказ оплачен без провайдера.
	Settled bool
	Error   *IntentError
}

// Service создаёт платёжные намерения: заказ у провайдера и ссылку на hosted checkout.
type Service struct {
	orders    domain.OrderStore
	txm       domain.Transactor
	methods   domain.PaymentMethodRepository
	providers domain.ProviderFactory
	// webhookBaseURL: публичный адрес сервиса, на который провайдер шлёт уведомления.
	webhookBaseURL string
	logger         *log.Entry
	metrics        *metrics.ReconcileMetrics
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает метрики.
func WithMetrics(m *metrics.ReconcileMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService создаёт сервис платёжных намерений.
func NewService(
	orders domain.OrderStore,
	txm domain.Transactor,
	methods domain.PaymentMethodRepository,
	providers domain.ProviderFactory,
	webhookBaseURL string,
	opts ...Option,
) *Service {
	s := &Service{
		orders:         orders,
		txm:            txm,
		methods:        methods,
		providers:      providers,
		webhookBaseURL: strings.TrimRight(webhookBaseURL, "/"),
		logger:         log.New().WithField("component", "intent"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// errDryRun откатывает транзакцию проверки перехода.
var errDryRun = errors.New("dry run")

// CreatePaymentIntent проверяет заказ и создаёт заказ у провайдера.
// Ошибки ввода и состояния заказа возвращаются в Result.Error, error: только операционные сбои.
func (s *Service) CreatePaymentIntent(ctx context.Context, in Input) (Result, error) {
	result, err := s.createPaymentIntent(ctx, in)
	if s.metrics != nil {
		switch {
		case err != nil:
			s.metrics.RecordIntent("error")
		case result.Error != nil:
			s.metrics.RecordIntent(result.Error.Code)
		case result.Settled:
			s.metrics.RecordIntent("settled")
		default:
			s.metrics.RecordIntent("checkout")
		}
	}
	return result, err
}

func (s *Service) createPaymentIntent(ctx context.Context, in Input) (Result, error) {
	logger := s.logger.WithFields(log.Fields{
		"order_code":          in.OrderCode,
		"payment_method_code": in.PaymentMethodCode,
	})

	order, err := s.orders.FindByCode(ctx, in.OrderCode)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return failed(CodeOrderNotFound, "no order with this code", "orderCode"), nil
		}
		return Result{}, fmt.Errorf("find order %s: %w", in.OrderCode, err)
	}

	method, err := s.methods.GetByCode(ctx, in.PaymentMethodCode)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentMethodNotFound) {
			return failed(CodeIneligiblePaymentMethod, "payment method is not available", "paymentMethodCode"), nil
		}
		return Result{}, fmt.Errorf("resolve payment method %s: %w", in.PaymentMethodCode, err)
	}
	if !method.EligibleFor(order) {
		return failed(CodeIneligiblePaymentMethod, "payment method is not eligible for this order", "paymentMethodCode"), nil
	}

	if !order.Customer.HasName() {
		return failed(CodeMissingCustomerName, "customer first and last name are required", "customer"), nil
	}
	if !order.ShippingAddress.Complete() {
		return failed(CodeIncompleteAddress, "street, city, postal code and country are required", "shippingAddress"), nil
	}

	redirectURL := in.RedirectURL
	if redirectURL == "" {
		redirectURL = method.RedirectURL
	}
	if redirectURL == "" {
		return failed(CodeMissingRedirectURL, "redirect url is not configured", "redirectUrl"), nil
	}
	redirectURL = strings.TrimRight(redirectURL, "/") + "/" + order.Code

	if !order.State.ArrangingPayment() {
		// Заказ остаётся в текущем состоянии до уведомления провайдера: только проверяем,
		// что переход в ArrangingPayment возможен.
		if reason, ok := s.canArrangePayment(ctx, order); !ok {
			logger.WithField("order_state", order.State).Info("order cannot arrange payment")
			return failed(CodeOrderState, reason, ""), nil
		}
	}

	outstanding := order.OutstandingMinor()
	if outstanding == 0 {
		if err := s.settleWithoutProvider(ctx, order, method); err != nil {
			var transitionErr *domain.TransitionError
			if errors.As(err, &transitionErr) {
				return failed(CodeOrderState, transitionErr.Reason, ""), nil
			}
			return Result{}, err
		}
		logger.Info("nothing to pay, order settled without provider")
		return Result{CheckoutURL: redirectURL, Settled: true}, nil
	}

	params := s.buildParams(ctx, order, method, in, redirectURL, outstanding)
	client := s.providers.ForAPIKey(method.APIKey)

	start := time.Now()
	external, err := client.CreateOrder(ctx, params)
	if s.metrics != nil {
		s.metrics.RecordProviderCall("create_order", err, time.Since(start))
	}
	if err != nil {
		logger.WithError(err).Error("create provider order failed")
		return Result{}, fmt.Errorf("create provider order for %s: %w", order.Code, err)
	}

	logger.WithFields(log.Fields{
		"external_order_id": external.ID,
		"amount_minor":      outstanding,
	}).Info("payment intent created")
	return Result{CheckoutURL: external.CheckoutURL}, nil
}

// canArrangePayment пробует перевести заказ в ArrangingPayment и откатывает транзакцию.
func (s *Service) canArrangePayment(ctx context.Context, order domain.Order) (string, bool) {
	err := s.txm.WithinTx(ctx, func(ctx context.Context, tx domain.TxStores) error {
		if _, err := tx.Orders.TransitionState(ctx, order.ID, domain.OrderStateArrangingPayment); err != nil {
			return err
		}
		return errDryRun
	})
	if errors.Is(err, errDryRun) {
		return "", true
	}
	var transitionErr *domain.TransitionError
	if errors.As(err, &transitionErr) {
		return transitionErr.Reason, false
	}
	return err.Error(), false
}

// settleWithoutProvider закрывает заказ нулевым платежом, когда оплачивать нечего.
func (s *Service) settleWithoutProvider(ctx context.Context, order domain.Order, method domain.PaymentMethod) error {
	return s.txm.WithinTx(ctx, func(ctx context.Context, tx domain.TxStores) error {
		if !order.State.ArrangingPayment() {
			if _, err := tx.Orders.TransitionState(ctx, order.ID, domain.OrderStateArrangingPayment); err != nil {
				return err
			}
		}
		updated, err := tx.Orders.AddPayment(ctx, order.ID, domain.PaymentInput{
			Method: method.Code,
			Status: domain.PaymentStatusSettled,
		})
		if err != nil {
			return fmt.Errorf("add zero payment to order %s: %w", order.Code, err)
		}

		payload := fmt.Sprintf(`{"order_id":%q,"order_code":%q,"amount_minor":0,"status":%q}`,
			updated.ID, updated.Code, domain.PaymentStatusSettled)
		if _, err := tx.Outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   updated.ID,
			EventType:     domain.EventPaymentAdded,
			Payload:       []byte(payload),
		}); err != nil {
			return fmt.Errorf("enqueue payment event: %w", err)
		}
		return tx.Timeline.Append(ctx, domain.TimelineEvent{
			OrderID:  updated.ID,
			Type:     domain.EventPaymentAdded,
			Reason:   "nothing to pay",
			Occurred: time.Now().UTC(),
		})
	})
}

func (s *Service) buildParams(ctx context.Context, order domain.Order, method domain.PaymentMethod, in Input, redirectURL string, outstanding int64) domain.CreateOrderParams {
	locale := in.Locale
	if locale == "" {
		locale = DefaultLocale
	}
	lang, ok := domain.LanguageFrom(ctx)
	if !ok {
		lang, _, _ = strings.Cut(locale, "_")
	}

	billing := order.BillingAddress
	if !billing.Complete() {
		billing = order.ShippingAddress
	}

	return domain.CreateOrderParams{
		Amount:          domain.MoneyFromMinor(outstanding, order.Currency),
		OrderNumber:     order.Code,
		RedirectURL:     redirectURL,
		WebhookURL:      s.webhookBaseURL + "/payments/mollie/" + method.ID,
		Locale:          locale,
		Method:          in.ProviderMethod,
		BillingAddress:  providerAddress(order.Customer, billing),
		ShippingAddress: providerAddress(order.Customer, order.ShippingAddress),
		Lines:           providerLines(order),
		Metadata:        map[string]string{domain.MetadataLanguageCode: lang},
	}
}

func providerAddress(customer domain.Customer, address domain.Address) domain.ProviderAddress {
	return domain.ProviderAddress{
		GivenName:        customer.FirstName,
		FamilyName:       customer.LastName,
		Email:            customer.Email,
		OrganizationName: address.Company,
		StreetAndNumber:  address.StreetLine1,
		StreetAdditional: address.StreetLine2,
		City:             address.City,
		Region:           address.Province,
		PostalCode:       address.PostalCode,
		Country:          address.CountryCode,
		Phone:            address.Phone,
	}
}

// providerLines строит строки заказа. Их сумма равна сумме к оплате:
// уже покрытая платежами часть вычитается отдельной строкой.
func providerLines(order domain.Order) []domain.ProviderOrderLine {
	currency := order.Currency
	lines := make([]domain.ProviderOrderLine, 0, len(order.Lines)+2)
	for _, line := range order.Lines {
		total := domain.MoneyFromMinor(line.TotalWithTaxMinor(), currency)
		rate := decimal.NewFromFloat(line.TaxRate)
		lines = append(lines, domain.ProviderOrderLine{
			Type:        domain.ProviderLinePhysical,
			Name:        line.Name,
			SKU:         line.SKU,
			Quantity:    line.Qty,
			UnitPrice:   domain.MoneyFromMinor(line.UnitPriceWithTaxMinor, currency),
			TotalAmount: total,
			VATRate:     rate.StringFixed(2),
			VATAmount:   vatAmount(total, rate),
		})
	}

	if order.ShippingWithTaxMinor > 0 {
		shipping := domain.MoneyFromMinor(order.ShippingWithTaxMinor, currency)
		lines = append(lines, domain.ProviderOrderLine{
			Type:        domain.ProviderLineShipping,
			Name:        "Shipping",
			Quantity:    1,
			UnitPrice:   shipping,
			TotalAmount: shipping,
			VATRate:     "0.00",
			VATAmount:   domain.MoneyFromMinor(0, currency),
		})
	}

	if covered := order.AmountCoveredByPayments(); covered > 0 {
		paid := domain.MoneyFromMinor(-covered, currency)
		lines = append(lines, domain.ProviderOrderLine{
			Type:        domain.ProviderLineStoreCredit,
			Name:        "Already paid",
			Quantity:    1,
			UnitPrice:   paid,
			TotalAmount: paid,
			VATRate:     "0.00",
			VATAmount:   domain.MoneyFromMinor(0, currency),
		})
	}
	return lines
}

// vatAmount считает включённый в сумму НДС: total * rate / (100 + rate), до центов.
func vatAmount(total domain.Money, rate decimal.Decimal) domain.Money {
	if rate.IsZero() {
		return domain.Money{Value: decimal.Zero, Currency: total.Currency}
	}
	hundred := decimal.NewFromInt(100)
	vat := total.Value.Mul(rate).Div(hundred.Add(rate)).Round(2)
	return domain.Money{Value: vat, Currency: total.Currency}
}

func failed(code, message, field string) Result {
	return Result{Error: &IntentError{Code: code, Message: message, Field: field}}
}
