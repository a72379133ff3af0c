package promotion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
	"github.com/vladislavdragonenkov/payrecon/internal/storage/memory"
)

// countingRepository считает обращения к List, чтобы проверять попадания в кэш.
type countingRepository struct {
	domain.PromotionRepository
	lists int
}

func (r *countingRepository) List(ctx context.Context) ([]domain.Promotion, error) {
	r.lists++
	return r.PromotionRepository.List(ctx)
}

func newService(t *testing.T, now func() time.Time) (*Service, *countingRepository) {
	t.Helper()
	repo := &countingRepository{PromotionRepository: memory.NewPromotionRepository()}
	return NewServiceWithClock(repo, nil, now), repo
}

func TestService_CreateValidates(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.Promotion{Name: "  "})
	assert.True(t, errors.Is(err, domain.ErrPromotionNameMissing))

	start := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = svc.Create(ctx, domain.Promotion{Name: "Black Friday", StartsAt: &start, EndsAt: &end})
	assert.True(t, errors.Is(err, domain.ErrPromotionPeriod))

	created, err := svc.Create(ctx, domain.Promotion{Name: " Welcome ", CouponCode: "WELCOME", Enabled: true})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Welcome", created.Name)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = svc.Create(ctx, domain.Promotion{Name: "Other", CouponCode: "welcome"})
	assert.True(t, errors.Is(err, domain.ErrPromotionCouponTaken))
}

func TestService_ReportsEveryValidationProblem(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	start := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	invalid := domain.Promotion{Name: " ", StartsAt: &start, EndsAt: &end}

	_, err := svc.Create(ctx, invalid)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPromotionNameMissing)
	assert.ErrorIs(t, err, domain.ErrPromotionPeriod)

	created, err := svc.Create(ctx, domain.Promotion{Name: "Autumn"})
	require.NoError(t, err)

	invalid.ID = created.ID
	_, err = svc.Update(ctx, invalid)
	assert.ErrorIs(t, err, domain.ErrPromotionNameMissing)
	assert.ErrorIs(t, err, domain.ErrPromotionPeriod)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Autumn", got.Name)
}

func TestService_ActiveIsCachedAndInvalidatedOnWrite(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	svc, repo := newService(t, func() time.Time { return now })
	ctx := context.Background()

	promo, err := svc.Create(ctx, domain.Promotion{Name: "Autumn", Enabled: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.Promotion{Name: "Disabled", Enabled: false})
	require.NoError(t, err)

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Autumn", active[0].Name)

	_, err = svc.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.lists, "second read must hit the cache")

	promo.Enabled = false
	_, err = svc.Update(ctx, promo)
	require.NoError(t, err)

	active, err = svc.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Equal(t, 2, repo.lists)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestService_ActiveChecksWindowOnRead(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	svc, repo := newService(t, func() time.Time { return now })
	ctx := context.Background()

	ends := now.Add(time.Hour)
	_, err := svc.Create(ctx, domain.Promotion{Name: "Flash sale", Enabled: true, EndsAt: &ends})
	require.NoError(t, err)

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	now = now.Add(2 * time.Hour)
	active, err = svc.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Equal(t, 1, repo.lists)
}

func TestService_Delete(t *testing.T) {
	svc, repo := newService(t, nil)
	ctx := context.Background()

	promo, err := svc.Create(ctx, domain.Promotion{Name: "Gone", Enabled: true})
	require.NoError(t, err)
	active, err := svc.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, svc.Delete(ctx, promo.ID))
	active, err = svc.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Equal(t, 2, repo.lists)

	assert.True(t, errors.Is(svc.Delete(ctx, promo.ID), domain.ErrPromotionNotFound))
	_, err = svc.Get(ctx, promo.ID)
	assert.True(t, errors.Is(err, domain.ErrPromotionNotFound))
}

func TestService_InstancesDoNotShareCache(t *testing.T) {
	repo := memory.NewPromotionRepository()
	first := NewService(repo, nil)
	second := NewService(repo, nil)
	ctx := context.Background()

	active, err := second.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = first.Create(ctx, domain.Promotion{Name: "Only first knows", Enabled: true})
	require.NoError(t, err)

	// second ещё держит свой кэш, пока сам не выполнит запись.
	active, err = second.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	active, err = first.Active(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
