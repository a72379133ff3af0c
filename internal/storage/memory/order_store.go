package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

// orderData: содержимое хранилища; копируется целиком при открытии транзакции.
type orderData struct {
	orders map[string]domain.Order
	// codes индексирует заказы по внешнему коду.
	codes map[string]string
	// payments индексирует платежи: payment id -> order id.
	payments map[string]string
}

func newOrderData() orderData {
	return orderData{
		orders:   make(map[string]domain.Order),
		codes:    make(map[string]string),
		payments: make(map[string]string),
	}
}

func (d orderData) clone() orderData {
	dst := orderData{
		orders:   make(map[string]domain.Order, len(d.orders)),
		codes:    make(map[string]string, len(d.codes)),
		payments: make(map[string]string, len(d.payments)),
	}
	for id, order := range d.orders {
		dst.orders[id] = order.Clone()
	}
	for code, id := range d.codes {
		dst.codes[code] = id
	}
	for paymentID, orderID := range d.payments {
		dst.payments[paymentID] = orderID
	}
	return dst
}

// OrderStore — in-memory реализация domain.OrderStore.
// Все операции сериализуются одним мьютексом, поэтому заказ не меняется параллельно.
type OrderStore struct {
	mu   sync.Mutex
	data orderData
	now  func() time.Time
}

// NewOrderStore создаёт пустое хранилище заказов для локальной разработки и тестов.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		data: newOrderData(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// locked выполняет fn под блокировкой хранилища и откатывает изменения fn при ошибке.
func (s *OrderStore) locked(fn func(store domain.OrderStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(txOrderStore{s: s}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// Create сохраняет новый заказ. Код заказа должен быть уникальным.
func (s *OrderStore) Create(ctx context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(order)
}

// Get возвращает заказ по идентификатору.
func (s *OrderStore) Get(ctx context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

// FindByCode возвращает заказ по внешнему коду.
func (s *OrderStore) FindByCode(ctx context.Context, code string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByCode(code)
}

// TransitionState переводит заказ в новое состояние.
func (s *OrderStore) TransitionState(ctx context.Context, orderID string, to domain.OrderState) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionState(orderID, to)
}

// AddPayment прикрепляет платёж к заказу.
func (s *OrderStore) AddPayment(ctx context.Context, orderID string, input domain.PaymentInput) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addPayment(orderID, input)
}

// SettlePayment списывает авторизованный платёж.
func (s *OrderStore) SettlePayment(ctx context.Context, paymentID string) (domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settlePayment(paymentID)
}

// ListPayments возвращает платежи заказа в порядке создания.
func (s *OrderStore) ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPayments(orderID)
}

func (s *OrderStore) create(order domain.Order) error {
	code := strings.TrimSpace(order.Code)
	if code == "" {
		return domain.ErrOrderCodeRequired
	}
	if _, exists := s.data.codes[code]; exists {
		return domain.ErrOrderCodeTaken
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if _, exists := s.data.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}

	now := s.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	stored := order.Clone()
	for i := range stored.Payments {
		stored.Payments[i].OrderID = stored.ID
		if stored.Payments[i].ID == "" {
			stored.Payments[i].ID = uuid.NewString()
		}
		s.data.payments[stored.Payments[i].ID] = stored.ID
	}
	s.data.orders[stored.ID] = stored
	s.data.codes[code] = stored.ID
	return nil
}

func (s *OrderStore) get(id string) (domain.Order, error) {
	order, ok := s.data.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (s *OrderStore) findByCode(code string) (domain.Order, error) {
	id, ok := s.data.codes[strings.TrimSpace(code)]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return s.get(id)
}

func (s *OrderStore) transitionState(orderID string, to domain.OrderState) (domain.Order, error) {
	order, ok := s.data.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if order.State == to {
		return order.Clone(), nil
	}
	if !domain.CanTransition(order.State, to) {
		return domain.Order{}, &domain.TransitionError{
			From:   order.State,
			To:     to,
			Reason: "transition is not allowed by the order state machine",
		}
	}

	order.State = to
	s.touch(&order)
	return order.Clone(), nil
}

func (s *OrderStore) addPayment(orderID string, input domain.PaymentInput) (domain.Order, error) {
	order, ok := s.data.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if !order.State.ArrangingPayment() {
		return domain.Order{}, fmt.Errorf("add payment to order in state %s: %w", order.State, domain.ErrOrderStateInvalid)
	}
	if _, dup := order.PaymentByTransactionID(input.TransactionID); dup {
		return domain.Order{}, domain.ErrDuplicatePayment
	}

	payment := newPayment(order.ID, input, s.now())
	if errs := payment.Validate(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	order = order.Clone()
	order.Payments = append(order.Payments, payment)
	order.AdvanceAfterPayment(payment.CreatedAt)
	s.data.payments[payment.ID] = order.ID
	s.touch(&order)
	return order.Clone(), nil
}

func (s *OrderStore) settlePayment(paymentID string) (domain.SettlementResult, error) {
	orderID, ok := s.data.payments[paymentID]
	if !ok {
		return domain.SettlementResult{}, domain.ErrPaymentNotFound
	}
	order := s.data.orders[orderID].Clone()

	idx := -1
	for i := range order.Payments {
		if order.Payments[i].ID == paymentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.SettlementResult{}, domain.ErrPaymentNotFound
	}

	payment := &order.Payments[idx]
	if payment.Status != domain.PaymentStatusAuthorized {
		return domain.SettlementResult{
			Success:   false,
			ErrorCode: domain.SettlementErrorStateTransition,
			Message:   fmt.Sprintf("cannot settle payment in status %s", payment.Status),
		}, nil
	}

	now := s.now()
	payment.Status = domain.PaymentStatusSettled
	payment.UpdatedAt = now
	order.AdvanceAfterPayment(now)
	s.touch(&order)
	return domain.SettlementResult{Success: true}, nil
}

func (s *OrderStore) listPayments(orderID string) ([]domain.Payment, error) {
	order, ok := s.data.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	payments := order.Clone().Payments
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
	return payments, nil
}

// touch сохраняет заказ с новой версией.
func (s *OrderStore) touch(order *domain.Order) {
	order.Version++
	order.UpdatedAt = s.now()
	s.data.orders[order.ID] = *order
}

func newPayment(orderID string, input domain.PaymentInput, now time.Time) domain.Payment {
	status := input.Status
	if status == "" {
		status = domain.PaymentStatusCreated
	}
	payment := domain.Payment{
		ID:            uuid.NewString(),
		OrderID:       orderID,
		Method:        input.Method,
		TransactionID: input.TransactionID,
		Status:        status,
		AmountMinor:   input.AmountMinor,
		Metadata:      input.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return payment.Clone()
}

// txOrderStore: представление хранилища внутри WithinTx, работает без повторной блокировки.
type txOrderStore struct {
	s *OrderStore
}

func (t txOrderStore) Create(ctx context.Context, order domain.Order) error {
	return t.s.create(order)
}

func (t txOrderStore) Get(ctx context.Context, id string) (domain.Order, error) {
	return t.s.get(id)
}

func (t txOrderStore) FindByCode(ctx context.Context, code string) (domain.Order, error) {
	return t.s.findByCode(code)
}

func (t txOrderStore) TransitionState(ctx context.Context, orderID string, to domain.OrderState) (domain.Order, error) {
	return t.s.transitionState(orderID, to)
}

func (t txOrderStore) AddPayment(ctx context.Context, orderID string, input domain.PaymentInput) (domain.Order, error) {
	return t.s.addPayment(orderID, input)
}

func (t txOrderStore) SettlePayment(ctx context.Context, paymentID string) (domain.SettlementResult, error) {
	return t.s.settlePayment(paymentID)
}

func (t txOrderStore) ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	return t.s.listPayments(orderID)
}

var (
	_ domain.OrderStore = (*OrderStore)(nil)
	_ domain.OrderStore = txOrderStore{}
)
