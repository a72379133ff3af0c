package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

type promotionRepository struct {
	db *sql.DB
}

// NewPromotionRepository создаёт PostgreSQL-реализацию PromotionRepository.
func NewPromotionRepository(store *Store) domain.PromotionRepository {
	return &promotionRepository{db: store.DB()}
}

const promotionColumns = `
	id, name, coupon_code, enabled, starts_at, ends_at, conditions, actions,
	per_customer_usage_limit, created_at, updated_at`

func (r *promotionRepository) Create(ctx context.Context, promotion domain.Promotion) error {
	if promotion.ID == "" {
		promotion.ID = uuid.NewString()
	}
	conditions, actions, err := encodeRules(promotion)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO promotions (`+promotionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		promotion.ID, promotion.Name, promotion.CouponCode, promotion.Enabled,
		promotion.StartsAt, promotion.EndsAt, conditions, actions,
		promotion.PerCustomerUsageLimit, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPromotionCouponTaken
		}
		return fmt.Errorf("insert promotion: %w", err)
	}
	return nil
}

func (r *promotionRepository) Update(ctx context.Context, promotion domain.Promotion) error {
	conditions, actions, err := encodeRules(promotion)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE promotions
		SET name = $2,
		    coupon_code = $3,
		    enabled = $4,
		    starts_at = $5,
		    ends_at = $6,
		    conditions = $7,
		    actions = $8,
		    per_customer_usage_limit = $9,
		    updated_at = $10
		WHERE id = $1
	`,
		promotion.ID, promotion.Name, promotion.CouponCode, promotion.Enabled,
		promotion.StartsAt, promotion.EndsAt, conditions, actions,
		promotion.PerCustomerUsageLimit, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPromotionCouponTaken
		}
		return fmt.Errorf("update promotion: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPromotionNotFound
	}
	return nil
}

func (r *promotionRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM promotions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete promotion: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPromotionNotFound
	}
	return nil
}

func (r *promotionRepository) Get(ctx context.Context, id string) (domain.Promotion, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	promotion, err := scanPromotion(r.db.QueryRowContext(ctx, `SELECT `+promotionColumns+` FROM promotions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Promotion{}, domain.ErrPromotionNotFound
		}
		return domain.Promotion{}, err
	}
	return promotion, nil
}

func (r *promotionRepository) List(ctx context.Context) ([]domain.Promotion, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+promotionColumns+` FROM promotions ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	defer rows.Close()

	promotions := make([]domain.Promotion, 0)
	for rows.Next() {
		promotion, err := scanPromotion(rows)
		if err != nil {
			return nil, err
		}
		promotions = append(promotions, promotion)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promotions: %w", err)
	}
	return promotions, nil
}

func scanPromotion(row rowScanner) (domain.Promotion, error) {
	var (
		promotion          domain.Promotion
		startsAt, endsAt   sql.NullTime
		conditions, action []byte
	)
	if err := row.Scan(
		&promotion.ID, &promotion.Name, &promotion.CouponCode, &promotion.Enabled,
		&startsAt, &endsAt, &conditions, &action,
		&promotion.PerCustomerUsageLimit, &promotion.CreatedAt, &promotion.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Promotion{}, err
		}
		return domain.Promotion{}, fmt.Errorf("scan promotion: %w", err)
	}
	if startsAt.Valid {
		at := startsAt.Time.UTC()
		promotion.StartsAt = &at
	}
	if endsAt.Valid {
		at := endsAt.Time.UTC()
		promotion.EndsAt = &at
	}
	if err := json.Unmarshal(conditions, &promotion.Conditions); err != nil {
		return domain.Promotion{}, fmt.Errorf("decode promotion conditions: %w", err)
	}
	if err := json.Unmarshal(action, &promotion.Actions); err != nil {
		return domain.Promotion{}, fmt.Errorf("decode promotion actions: %w", err)
	}
	return promotion, nil
}

func encodeRules(promotion domain.Promotion) (conditions, actions []byte, err error) {
	if promotion.Conditions == nil {
		promotion.Conditions = []domain.PromotionRule{}
	}
	if promotion.Actions == nil {
		promotion.Actions = []domain.PromotionRule{}
	}
	if conditions, err = json.Marshal(promotion.Conditions); err != nil {
		return nil, nil, fmt.Errorf("encode promotion conditions: %w", err)
	}
	if actions, err = json.Marshal(promotion.Actions); err != nil {
		return nil, nil, fmt.Errorf("encode promotion actions: %w", err)
	}
	return conditions, actions, nil
}

var _ domain.PromotionRepository = (*promotionRepository)(nil)
