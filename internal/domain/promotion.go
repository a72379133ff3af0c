package domain

import (
	"strings"
	"time"
)

// PromotionRule — условие или действие промоакции: код обработчика и его аргументы.
type PromotionRule struct {
	Code string            `json:"code"`
	Args map[string]string `json:"args,omitempty"`
}

// Promotion описывает настройку условной скидки.
type Promotion struct {
	ID         string
	Name       string
	CouponCode string
	Enabled    bool
	StartsAt   *time.Time
	EndsAt     *time.Time
	Conditions []PromotionRule
	Actions    []PromotionRule
	// PerCustomerUsageLimit: 0 означает без ограничений.
	PerCustomerUsageLimit int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Active сообщает, действует ли промоакция в момент now.
func (p *Promotion) Active(now time.Time) bool {
	if !p.Enabled {
		return false
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && !now.Before(*p.EndsAt) {
		return false
	}
	return true
}

// Validate проверяет поля промоакции.
func (p *Promotion) Validate() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrPromotionNameMissing)
	}
	if p.StartsAt != nil && p.EndsAt != nil && !p.EndsAt.After(*p.StartsAt) {
		errs = append(errs, ErrPromotionPeriod)
	}

	return errs
}
