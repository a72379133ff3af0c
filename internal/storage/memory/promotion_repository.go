package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

type promotionRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Promotion
}

// NewPromotionRepository создаёт in-memory хранилище промоакций.
func NewPromotionRepository() domain.PromotionRepository {
	return &promotionRepositoryInMemory{items: make(map[string]domain.Promotion)}
}

func (r *promotionRepositoryInMemory) Create(ctx context.Context, promotion domain.Promotion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if promotion.ID == "" {
		promotion.ID = uuid.NewString()
	}
	if _, exists := r.items[promotion.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	if r.couponTaken(promotion) {
		return domain.ErrPromotionCouponTaken
	}

	now := time.Now().UTC()
	promotion.CreatedAt = now
	promotion.UpdatedAt = now
	r.items[promotion.ID] = clonePromotion(promotion)
	return nil
}

func (r *promotionRepositoryInMemory) Update(ctx context.Context, promotion domain.Promotion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[promotion.ID]
	if !ok {
		return domain.ErrPromotionNotFound
	}
	if r.couponTaken(promotion) {
		return domain.ErrPromotionCouponTaken
	}

	promotion.CreatedAt = current.CreatedAt
	promotion.UpdatedAt = time.Now().UTC()
	r.items[promotion.ID] = clonePromotion(promotion)
	return nil
}

func (r *promotionRepositoryInMemory) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrPromotionNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *promotionRepositoryInMemory) Get(ctx context.Context, id string) (domain.Promotion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return domain.Promotion{}, domain.ErrPromotionNotFound
	}
	return clonePromotion(p), nil
}

func (r *promotionRepositoryInMemory) List(ctx context.Context) ([]domain.Promotion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Promotion, 0, len(r.items))
	for _, p := range r.items {
		result = append(result, clonePromotion(p))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// couponTaken проверяет уникальность купона среди остальных промоакций.
func (r *promotionRepositoryInMemory) couponTaken(promotion domain.Promotion) bool {
	coupon := strings.TrimSpace(promotion.CouponCode)
	if coupon == "" {
		return false
	}
	for id, p := range r.items {
		if id != promotion.ID && strings.EqualFold(p.CouponCode, coupon) {
			return true
		}
	}
	return false
}

func clonePromotion(src domain.Promotion) domain.Promotion {
	dst := src
	dst.Conditions = cloneRules(src.Conditions)
	dst.Actions = cloneRules(src.Actions)
	if src.StartsAt != nil {
		at := *src.StartsAt
		dst.StartsAt = &at
	}
	if src.EndsAt != nil {
		at := *src.EndsAt
		dst.EndsAt = &at
	}
	return dst
}

func cloneRules(src []domain.PromotionRule) []domain.PromotionRule {
	if src == nil {
		return nil
	}
	dst := make([]domain.PromotionRule, len(src))
	for i, rule := range src {
		dst[i] = domain.PromotionRule{Code: rule.Code}
		if rule.Args != nil {
			dst[i].Args = make(map[string]string, len(rule.Args))
			for k, v := range rule.Args {
				dst[i].Args[k] = v
			}
		}
	}
	return dst
}

var _ domain.PromotionRepository = (*promotionRepositoryInMemory)(nil)
