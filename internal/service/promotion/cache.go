package promotion

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

// Cache — read-through кэш включённых промоакций одного экземпляра сервиса.
// Загружается при первом чтении после сброса; любая запись в Service сбрасывает его.
type Cache struct {
	mu     sync.Mutex
	repo   domain.PromotionRepository
	now    func() time.Time
	loaded bool
	items  []domain.Promotion
}

// NewCache создаёт пустой кэш поверх репозитория.
func NewCache(repo domain.PromotionRepository, now func() time.Time) *Cache {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Cache{repo: repo, now: now}
}

// Active возвращает промоакции, действующие сейчас. Окно действия проверяется при каждом чтении.
func (c *Cache) Active(ctx context.Context) ([]domain.Promotion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		all, err := c.repo.List(ctx)
		if err != nil {
			return nil, err
		}
		c.items = c.items[:0]
		for _, p := range all {
			if p.Enabled {
				c.items = append(c.items, p)
			}
		}
		c.loaded = true
	}

	now := c.now()
	active := make([]domain.Promotion, 0, len(c.items))
	for i := range c.items {
		if c.items[i].Active(now) {
			active = append(active, c.items[i])
		}
	}
	return active, nil
}

// Invalidate сбрасывает кэш.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.items = nil
	c.mu.Unlock()
}
