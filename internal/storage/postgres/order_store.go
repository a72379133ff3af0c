package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

// querier: общее подмножество *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// orderStore реализует domain.OrderStore поверх соединения или транзакции.
// Внутри транзакции строки заказов читаются с FOR UPDATE.
type orderStore struct {
	db *sql.DB
	q  querier
	// forUpdate включается только в транзакции WithinTx.
	forUpdate bool
}

// NewOrderStore создаёт PostgreSQL-реализацию OrderStore.
// Каждая изменяющая операция вне WithinTx выполняется в собственной транзакции.
func NewOrderStore(store *Store) domain.OrderStore {
	return &orderStore{db: store.DB(), q: store.DB()}
}

const orderColumns = `
	id, code, state, customer_id, customer, shipping_address, billing_address, currency,
	shipping_with_tax_minor, total_with_tax_minor, order_placed_at, version, created_at, updated_at`

func (s *orderStore) Create(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.Code) == "" {
		return domain.ErrOrderCodeRequired
	}
	return s.inTx(ctx, func(ctx context.Context, tx *orderStore) error {
		return tx.create(ctx, order)
	})
}

func (s *orderStore) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.loadOrder(ctx, "id", id)
}

func (s *orderStore) FindByCode(ctx context.Context, code string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.loadOrder(ctx, "code", strings.TrimSpace(code))
}

func (s *orderStore) TransitionState(ctx context.Context, orderID string, to domain.OrderState) (domain.Order, error) {
	var result domain.Order
	err := s.inTx(ctx, func(ctx context.Context, tx *orderStore) error {
		order, err := tx.loadOrder(ctx, "id", orderID)
		if err != nil {
			return err
		}
		if order.State == to {
			result = order
			return nil
		}
		if !domain.CanTransition(order.State, to) {
			return &domain.TransitionError{
				From:   order.State,
				To:     to,
				Reason: "transition is not allowed by the order state machine",
			}
		}
		order.State = to
		if err := tx.saveOrder(ctx, &order); err != nil {
			return err
		}
		result = order
		return nil
	})
	return result, err
}

func (s *orderStore) AddPayment(ctx context.Context, orderID string, input domain.PaymentInput) (domain.Order, error) {
	var result domain.Order
	err := s.inTx(ctx, func(ctx context.Context, tx *orderStore) error {
		order, err := tx.loadOrder(ctx, "id", orderID)
		if err != nil {
			return err
		}
		if !order.State.ArrangingPayment() {
			return fmt.Errorf("add payment to order in state %s: %w", order.State, domain.ErrOrderStateInvalid)
		}
		if _, dup := order.PaymentByTransactionID(input.TransactionID); dup {
			return domain.ErrDuplicatePayment
		}

		now := time.Now().UTC()
		payment := domain.Payment{
			ID:            uuid.NewString(),
			OrderID:       order.ID,
			Method:        input.Method,
			TransactionID: input.TransactionID,
			Status:        input.Status,
			AmountMinor:   input.AmountMinor,
			Metadata:      input.Metadata,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if payment.Status == "" {
			payment.Status = domain.PaymentStatusCreated
		}
		if errs := payment.Validate(); len(errs) > 0 {
			return errors.Join(errs...)
		}
		if err := tx.insertPayment(ctx, payment); err != nil {
			return err
		}

		order.Payments = append(order.Payments, payment)
		order.AdvanceAfterPayment(now)
		if err := tx.saveOrder(ctx, &order); err != nil {
			return err
		}
		result = order
		return nil
	})
	return result, err
}

func (s *orderStore) SettlePayment(ctx context.Context, paymentID string) (domain.SettlementResult, error) {
	var result domain.SettlementResult
	err := s.inTx(ctx, func(ctx context.Context, tx *orderStore) error {
		var orderID string
		if err := tx.q.QueryRowContext(ctx, `SELECT order_id FROM payments WHERE id = $1`, paymentID).Scan(&orderID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrPaymentNotFound
			}
			return fmt.Errorf("select payment order: %w", err)
		}

		order, err := tx.loadOrder(ctx, "id", orderID)
		if err != nil {
			return err
		}

		idx := -1
		for i := range order.Payments {
			if order.Payments[i].ID == paymentID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return domain.ErrPaymentNotFound
		}
		if order.Payments[idx].Status != domain.PaymentStatusAuthorized {
			result = domain.SettlementResult{
				ErrorCode: domain.SettlementErrorStateTransition,
				Message:   fmt.Sprintf("cannot settle payment in status %s", order.Payments[idx].Status),
			}
			return nil
		}

		now := time.Now().UTC()
		if _, err := tx.q.ExecContext(ctx, `
			UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3
		`, string(domain.PaymentStatusSettled), now, paymentID); err != nil {
			return fmt.Errorf("settle payment: %w", err)
		}

		order.Payments[idx].Status = domain.PaymentStatusSettled
		order.Payments[idx].UpdatedAt = now
		order.AdvanceAfterPayment(now)
		if err := tx.saveOrder(ctx, &order); err != nil {
			return err
		}
		result = domain.SettlementResult{Success: true}
		return nil
	})
	return result, err
}

func (s *orderStore) ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := s.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return nil, domain.ErrOrderNotFound
	}
	return s.loadPayments(ctx, orderID)
}

// inTx выполняет fn в транзакции. Если store уже работает внутри WithinTx, транзакция переиспользуется.
func (s *orderStore) inTx(ctx context.Context, fn func(ctx context.Context, tx *orderStore) error) error {
	if s.forUpdate {
		return fn(ctx, s)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, &orderStore{db: s.db, q: tx, forUpdate: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *orderStore) create(ctx context.Context, order domain.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	customer, shipping, billing, err := encodeOrderParties(order)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		order.ID, strings.TrimSpace(order.Code), string(order.State), order.CustomerID,
		customer, shipping, billing, order.Currency,
		order.ShippingWithTaxMinor, order.TotalWithTaxMinor, order.OrderPlacedAt,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderCodeTaken
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, line := range order.Lines {
		if line.ID == "" {
			line.ID = uuid.NewString()
		}
		if line.CreatedAt.IsZero() {
			line.CreatedAt = now
		}
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO order_lines (
				id, order_id, sku, name, qty, unit_price_with_tax_minor, tax_rate, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			line.ID, order.ID, line.SKU, line.Name, line.Qty, line.UnitPriceWithTaxMinor, line.TaxRate, line.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	for _, payment := range order.Payments {
		if payment.ID == "" {
			payment.ID = uuid.NewString()
		}
		payment.OrderID = order.ID
		if payment.CreatedAt.IsZero() {
			payment.CreatedAt = now
			payment.UpdatedAt = now
		}
		if err := s.insertPayment(ctx, payment); err != nil {
			return err
		}
	}

	return nil
}

func (s *orderStore) loadOrder(ctx context.Context, column, value string) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + column + ` = $1`
	if s.forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		order                       domain.Order
		state                       string
		customer, shipping, billing []byte
		placedAt                    sql.NullTime
	)
	err := s.q.QueryRowContext(ctx, query, value).Scan(
		&order.ID, &order.Code, &state, &order.CustomerID,
		&customer, &shipping, &billing, &order.Currency,
		&order.ShippingWithTaxMinor, &order.TotalWithTaxMinor, &placedAt,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	order.State = domain.OrderState(state)
	if placedAt.Valid {
		at := placedAt.Time.UTC()
		order.OrderPlacedAt = &at
	}
	if err := decodeOrderParties(&order, customer, shipping, billing); err != nil {
		return domain.Order{}, err
	}

	if order.Lines, err = s.loadLines(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	if order.Payments, err = s.loadPayments(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// saveOrder записывает состояние и отметку размещения с проверкой версии.
func (s *orderStore) saveOrder(ctx context.Context, order *domain.Order) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		UPDATE orders
		SET state = $1,
		    order_placed_at = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $4
		  AND version = $5
	`, string(order.State), order.OrderPlacedAt, now, order.ID, order.Version)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderVersionConflict
	}

	order.Version++
	order.UpdatedAt = now
	return nil
}

func (s *orderStore) insertPayment(ctx context.Context, payment domain.Payment) error {
	metadata, err := json.Marshal(payment.Metadata)
	if err != nil {
		return fmt.Errorf("encode payment metadata: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO payments (
			id, order_id, method, transaction_id, status, amount_minor, metadata, error_message, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		payment.ID, payment.OrderID, payment.Method, payment.TransactionID, string(payment.Status),
		payment.AmountMinor, metadata, payment.ErrorMessage, payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicatePayment
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *orderStore) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, sku, name, qty, unit_price_with_tax_minor, tax_rate, created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.SKU, &line.Name, &line.Qty, &line.UnitPriceWithTaxMinor, &line.TaxRate, &line.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return lines, nil
}

func (s *orderStore) loadPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, order_id, method, transaction_id, status, amount_minor, metadata, error_message, created_at, updated_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		var (
			payment  domain.Payment
			status   string
			metadata []byte
		)
		if err := rows.Scan(
			&payment.ID, &payment.OrderID, &payment.Method, &payment.TransactionID, &status,
			&payment.AmountMinor, &metadata, &payment.ErrorMessage, &payment.CreatedAt, &payment.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payment.Status = domain.PaymentStatus(status)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &payment.Metadata); err != nil {
				return nil, fmt.Errorf("decode payment %s metadata: %w", payment.ID, err)
			}
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func encodeOrderParties(order domain.Order) (customer, shipping, billing []byte, err error) {
	if customer, err = json.Marshal(order.Customer); err != nil {
		return nil, nil, nil, fmt.Errorf("encode customer: %w", err)
	}
	if shipping, err = json.Marshal(order.ShippingAddress); err != nil {
		return nil, nil, nil, fmt.Errorf("encode shipping address: %w", err)
	}
	if billing, err = json.Marshal(order.BillingAddress); err != nil {
		return nil, nil, nil, fmt.Errorf("encode billing address: %w", err)
	}
	return customer, shipping, billing, nil
}

func decodeOrderParties(order *domain.Order, customer, shipping, billing []byte) error {
	if err := json.Unmarshal(customer, &order.Customer); err != nil {
		return fmt.Errorf("decode customer: %w", err)
	}
	if err := json.Unmarshal(shipping, &order.ShippingAddress); err != nil {
		return fmt.Errorf("decode shipping address: %w", err)
	}
	if err := json.Unmarshal(billing, &order.BillingAddress); err != nil {
		return fmt.Errorf("decode billing address: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderStore = (*orderStore)(nil)
