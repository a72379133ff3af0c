package domain

import "context"

// OrderStore описывает требования к хранилищу заказов и платежей.
// Реализации отвечают за сериализуемость изменений одного заказа.
type OrderStore interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderCodeTaken, если код занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// FindByCode возвращает заказ по внешнему коду или ErrOrderNotFound.
	FindByCode(ctx context.Context, code string) (Order, error)
	// TransitionState переводит заказ в новое состояние; отказ: *TransitionError.
	TransitionState(ctx context.Context, orderID string, to OrderState) (Order, error)
	// AddPayment прикрепляет платёж и продвигает заказ, если платежи покрыли сумму.
	AddPayment(ctx context.Context, orderID string, input PaymentInput) (Order, error)
	// SettlePayment списывает авторизованный платёж.
	SettlePayment(ctx context.Context, paymentID string) (SettlementResult, error)
	// ListPayments перечитывает платежи заказа.
	ListPayments(ctx context.Context, orderID string) ([]Payment, error)
}

// TxStores — хранилища, разделяющие одну транзакцию.
// События outbox и timeline фиксируются вместе с изменением заказа.
type TxStores struct {
	Orders   OrderStore
	Outbox   OutboxWriter
	Timeline TimelineWriter
}

// Transactor задаёт границу транзакции: все операции fn видят согласованный заказ
// и либо применяются целиком, либо откатываются.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxStores) error) error
}

// PaymentMethodRepository хранит способы оплаты и их учётные данные.
type PaymentMethodRepository interface {
	Get(ctx context.Context, id string) (PaymentMethod, error)
	GetByCode(ctx context.Context, code string) (PaymentMethod, error)
	List(ctx context.Context) ([]PaymentMethod, error)
	Upsert(ctx context.Context, method PaymentMethod) error
}

// PromotionRepository хранит правила промоакций.
type PromotionRepository interface {
	Create(ctx context.Context, promotion Promotion) error
	Update(ctx context.Context, promotion Promotion) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Promotion, error)
	List(ctx context.Context) ([]Promotion, error)
}
