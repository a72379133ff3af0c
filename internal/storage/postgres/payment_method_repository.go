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

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

type paymentMethodRepository struct {
	db *sql.DB
}

// NewPaymentMethodRepository создаёт PostgreSQL-реализацию PaymentMethodRepository.
func NewPaymentMethodRepository(store *Store) domain.PaymentMethodRepository {
	return &paymentMethodRepository{db: store.DB()}
}

const paymentMethodColumns = `id, code, name, api_key, enabled, auto_capture, redirect_url, currencies`

func (r *paymentMethodRepository) Get(ctx context.Context, id string) (domain.PaymentMethod, error) {
	return r.getBy(ctx, "id", id)
}

func (r *paymentMethodRepository) GetByCode(ctx context.Context, code string) (domain.PaymentMethod, error) {
	return r.getBy(ctx, "code", code)
}

func (r *paymentMethodRepository) List(ctx context.Context) ([]domain.PaymentMethod, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+paymentMethodColumns+` FROM payment_methods ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	defer rows.Close()

	methods := make([]domain.PaymentMethod, 0)
	for rows.Next() {
		method, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, method)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment methods: %w", err)
	}
	return methods, nil
}

func (r *paymentMethodRepository) Upsert(ctx context.Context, method domain.PaymentMethod) error {
	if strings.TrimSpace(method.Code) == "" {
		return domain.ErrPaymentMethodRequired
	}
	if method.ID == "" {
		method.ID = uuid.NewString()
	}
	currencies, err := json.Marshal(nonNilStrings(method.Currencies))
	if err != nil {
		return fmt.Errorf("encode currencies: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO payment_methods (`+paymentMethodColumns+`, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE
		SET code = EXCLUDED.code,
		    name = EXCLUDED.name,
		    api_key = EXCLUDED.api_key,
		    enabled = EXCLUDED.enabled,
		    auto_capture = EXCLUDED.auto_capture,
		    redirect_url = EXCLUDED.redirect_url,
		    currencies = EXCLUDED.currencies,
		    updated_at = EXCLUDED.updated_at
	`,
		method.ID, method.Code, method.Name, method.APIKey, method.Enabled,
		method.AutoCapture, method.RedirectURL, currencies, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert payment method: %w", err)
	}
	return nil
}

func (r *paymentMethodRepository) getBy(ctx context.Context, column, value string) (domain.PaymentMethod, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+paymentMethodColumns+` FROM payment_methods WHERE `+column+` = $1`, value)
	method, err := scanPaymentMethod(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PaymentMethod{}, domain.ErrPaymentMethodNotFound
		}
		return domain.PaymentMethod{}, err
	}
	return method, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaymentMethod(row rowScanner) (domain.PaymentMethod, error) {
	var (
		method     domain.PaymentMethod
		currencies []byte
	)
	if err := row.Scan(
		&method.ID, &method.Code, &method.Name, &method.APIKey, &method.Enabled,
		&method.AutoCapture, &method.RedirectURL, &currencies,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PaymentMethod{}, err
		}
		return domain.PaymentMethod{}, fmt.Errorf("scan payment method: %w", err)
	}
	if err := json.Unmarshal(currencies, &method.Currencies); err != nil {
		return domain.PaymentMethod{}, fmt.Errorf("decode currencies of %s: %w", method.ID, err)
	}
	if len(method.Currencies) == 0 {
		method.Currencies = nil
	}
	return method, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var _ domain.PaymentMethodRepository = (*paymentMethodRepository)(nil)
