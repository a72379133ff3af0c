package promotion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

// Service управляет настройками промоакций. Правила не вычисляет, только хранит.
type Service struct {
	repo   domain.PromotionRepository
	cache  *Cache
	logger *log.Entry
}

// NewService создаёт сервис промоакций со своим кэшем активных правил.
func NewService(repo domain.PromotionRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "promotion")
	}
	return &Service{
		repo:   repo,
		cache:  NewCache(repo, nil),
		logger: logger,
	}
}

// NewServiceWithClock — как NewService, но с подменяемым временем для проверки окна действия.
func NewServiceWithClock(repo domain.PromotionRepository, logger *log.Entry, now func() time.Time) *Service {
	s := NewService(repo, logger)
	s.cache = NewCache(repo, now)
	return s
}

// Create сохраняет новую промоакцию.
func (s *Service) Create(ctx context.Context, promotion domain.Promotion) (domain.Promotion, error) {
	normalize(&promotion)
	if errs := promotion.Validate(); len(errs) > 0 {
		return domain.Promotion{}, errors.Join(errs...)
	}
	if promotion.ID == "" {
		promotion.ID = uuid.NewString()
	}
	if err := s.repo.Create(ctx, promotion); err != nil {
		return domain.Promotion{}, err
	}
	s.cache.Invalidate()

	s.logger.WithFields(log.Fields{"promotion_id": promotion.ID, "name": promotion.Name}).Info("promotion created")
	return s.repo.Get(ctx, promotion.ID)
}

// Update заменяет промоакцию целиком.
func (s *Service) Update(ctx context.Context, promotion domain.Promotion) (domain.Promotion, error) {
	normalize(&promotion)
	if errs := promotion.Validate(); len(errs) > 0 {
		return domain.Promotion{}, errors.Join(errs...)
	}
	if err := s.repo.Update(ctx, promotion); err != nil {
		return domain.Promotion{}, err
	}
	s.cache.Invalidate()

	s.logger.WithField("promotion_id", promotion.ID).Info("promotion updated")
	return s.repo.Get(ctx, promotion.ID)
}

// Delete удаляет промоакцию.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate()

	s.logger.WithField("promotion_id", id).Info("promotion deleted")
	return nil
}

// Get возвращает промоакцию по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.Promotion, error) {
	return s.repo.Get(ctx, id)
}

// List возвращает все промоакции.
func (s *Service) List(ctx context.Context) ([]domain.Promotion, error) {
	return s.repo.List(ctx)
}

// Active возвращает действующие промоакции из кэша.
func (s *Service) Active(ctx context.Context) ([]domain.Promotion, error) {
	return s.cache.Active(ctx)
}

func normalize(p *domain.Promotion) {
	p.Name = strings.TrimSpace(p.Name)
	p.CouponCode = strings.TrimSpace(p.CouponCode)
}
