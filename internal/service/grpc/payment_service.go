package grpcsvc

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
	"github.com/vladislavdragonenkov/payrecon/internal/service/intent"
	"github.com/vladislavdragonenkov/payrecon/internal/service/reconcile"
)

// Reconciler сверяет заказ провайдера с локальным заказом.
type Reconciler interface {
	Reconcile(ctx context.Context, n reconcile.Notification) error
}

// IntentService создаёт платёжные намерения и отдаёт методы провайдера.
type IntentService interface {
	CreatePaymentIntent(ctx context.Context, in intent.Input) (intent.Result, error)
	ListProviderMethods(ctx context.Context, paymentMethodCode, orderCode, locale string) ([]domain.ProviderMethod, error)
}

// PaymentService реализует payrecon.v1.PaymentService для внутренних клиентов.
type PaymentService struct {
	reconciler Reconciler
	intents    IntentService
	idemRepo   domain.IdempotencyRepository
	logger     *log.Entry
}

// NewPaymentService конструирует сервис с зависимостями.
// Без idemRepo CreatePaymentIntent выполняется без idempotency-key.
func NewPaymentService(
	reconciler Reconciler,
	intents IntentService,
	idemRepo domain.IdempotencyRepository,
	logger *log.Entry,
) *PaymentService {
	if logger == nil {
		logger = log.New().WithField("component", "payment-grpc")
	}
	return &PaymentService{
		reconciler: reconciler,
		intents:    intents,
		idemRepo:   idemRepo,
		logger:     logger,
	}
}

// Reconcile принимает {payment_method_id, external_order_id} и возвращает {status: "ok"}.
func (s *PaymentService) Reconcile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	methodID := stringField(req, "payment_method_id")
	externalID := stringField(req, "external_order_id")
	if methodID == "" {
		return nil, status.Error(codes.InvalidArgument, "payment_method_id is required")
	}
	if externalID == "" {
		return nil, status.Error(codes.InvalidArgument, "external_order_id is required")
	}

	err := s.reconciler.Reconcile(ctx, reconcile.Notification{
		PaymentMethodID: methodID,
		ExternalOrderID: externalID,
	})
	if err != nil {
		st := reconcileStatus(err)
		s.logger.WithError(err).WithFields(log.Fields{
			"payment_method_id": methodID,
			"external_order_id": externalID,
			"code":              st.Code().String(),
		}).Warn("reconcile rpc failed")
		return nil, st.Err()
	}
	return structpb.NewStruct(map[string]any{"status": "ok"})
}

// CreatePaymentIntent принимает {order_code, payment_method_code, redirect_url, provider_method, locale}.
// Ошибки проверки заказа возвращаются в ответе (error_code, error_message, error_field), а не статусом.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if stringField(req, "order_code") == "" {
		return nil, status.Error(codes.InvalidArgument, "order_code is required")
	}
	if stringField(req, "payment_method_code") == "" {
		return nil, status.Error(codes.InvalidArgument, "payment_method_code is required")
	}

	return s.idempotent(ctx, grpcMethodCreatePaymentIntent, req, func(ctx context.Context) (*structpb.Struct, error) {
		return s.createPaymentIntentInternal(ctx, req)
	})
}

func (s *PaymentService) createPaymentIntentInternal(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.intents.CreatePaymentIntent(ctx, intent.Input{
		OrderCode:         stringField(req, "order_code"),
		PaymentMethodCode: stringField(req, "payment_method_code"),
		RedirectURL:       stringField(req, "redirect_url"),
		ProviderMethod:    stringField(req, "provider_method"),
		Locale:            stringField(req, "locale"),
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_code", stringField(req, "order_code")).Error("create payment intent failed")
		if errors.Is(err, domain.ErrProviderRequest) {
			return nil, status.Error(codes.Unavailable, "payment provider request failed")
		}
		return nil, status.Error(codes.Internal, "failed to create payment intent")
	}

	if res.Error != nil {
		return structpb.NewStruct(map[string]any{
			"error_code":    res.Error.Code,
			"error_message": res.Error.Message,
			"error_field":   res.Error.Field,
		})
	}
	return structpb.NewStruct(map[string]any{
		"checkout_url": res.CheckoutURL,
		"settled":      res.Settled,
	})
}

// ListProviderMethods принимает {payment_method_code, order_code, locale} и возвращает {methods: [...]}.
func (s *PaymentService) ListProviderMethods(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	methodCode := stringField(req, "payment_method_code")
	orderCode := stringField(req, "order_code")
	if methodCode == "" || orderCode == "" {
		return nil, status.Error(codes.InvalidArgument, "payment_method_code and order_code are required")
	}

	methods, err := s.intents.ListProviderMethods(ctx, methodCode, orderCode, stringField(req, "locale"))
	switch {
	case errors.Is(err, domain.ErrPaymentMethodNotFound), errors.Is(err, domain.ErrOrderNotFound):
		return nil, status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrProviderRequest):
		return nil, status.Error(codes.Unavailable, "payment provider request failed")
	case err != nil:
		s.logger.WithError(err).WithField("payment_method_code", methodCode).Error("list provider methods failed")
		return nil, status.Error(codes.Internal, "failed to list provider methods")
	}

	items := make([]any, 0, len(methods))
	for _, m := range methods {
		item := map[string]any{
			"id":          m.ID,
			"description": m.Description,
			"image":       m.ImageURL,
		}
		if m.MinAmount != nil {
			item["minimum_amount"] = moneyField(*m.MinAmount)
		}
		if m.MaxAmount != nil {
			item["maximum_amount"] = moneyField(*m.MaxAmount)
		}
		items = append(items, item)
	}
	return structpb.NewStruct(map[string]any{"methods": items})
}

// reconcileStatus переводит ошибку сверки в gRPC-статус.
func reconcileStatus(err error) *status.Status {
	switch {
	case errors.Is(err, domain.ErrProviderFetch):
		return status.New(codes.Unavailable, err.Error())
	case errors.Is(err, domain.ErrReconcileOrderAbsent):
		return status.New(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrUnhandledTransition),
		errors.Is(err, domain.ErrStateTransition),
		errors.Is(err, domain.ErrPaymentAttach),
		errors.Is(err, domain.ErrPaymentNotFound):
		return status.New(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrSettlement):
		return status.New(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, err.Error())
	default:
		return status.New(codes.Internal, "reconcile failed")
	}
}

func stringField(req *structpb.Struct, name string) string {
	return strings.TrimSpace(req.GetFields()[name].GetStringValue())
}

func moneyField(m domain.Money) map[string]any {
	return map[string]any{"value": m.String(), "currency": m.Currency}
}

var _ PaymentServiceServer = (*PaymentService)(nil)
