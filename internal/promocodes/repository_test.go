package promocodes

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campverse/backend/internal/models"
	"github.com/campverse/backend/internal/testutil"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo := NewRepository(testutil.MongoDB(t))
	require.NoError(t, repo.EnsureIndexes(context.Background()))
	return repo
}

func insertPromo(t *testing.T, repo *Repository, code string, limit int, active bool) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(context.Background(), &models.PromoCode{
		Code:          code,
		DiscountType:  models.DiscountFixed,
		DiscountValue: 100,
		UsageLimit:    limit,
		IsActive:      active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}))
}

func TestRepositoryRedeemStopsAtUsageLimit(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	insertPromo(t, repo, "LIMIT3", 3, true)

	const callers = 12
	var redeemed int64
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			got, err := repo.Redeem(ctx, "LIMIT3")
			assert.NoError(t, err)
			if got != nil {
				atomic.AddInt64(&redeemed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), redeemed)
	stored, err := repo.GetByCode(ctx, "LIMIT3")
	require.NoError(t, err)
	assert.Equal(t, 3, stored.UsedCount)

	require.NoError(t, repo.Unredeem(ctx, "LIMIT3"))
	got, err := repo.Redeem(ctx, "LIMIT3")
	require.NoError(t, err)
	assert.NotNil(t, got)
	got, err = repo.Redeem(ctx, "LIMIT3")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepositoryRedeemUnlimitedAndInactive(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	insertPromo(t, repo, "OPEN", 0, true)
	insertPromo(t, repo, "OFF", 0, false)

	for i := 1; i <= 4; i++ {
		got, err := repo.Redeem(ctx, "OPEN")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, i, got.UsedCount)
	}

	got, err := repo.Redeem(ctx, "OFF")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = repo.Redeem(ctx, "MISSING")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepositoryUnredeemNeverBelowZero(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	insertPromo(t, repo, "FRESH", 2, true)

	require.NoError(t, repo.Unredeem(ctx, "FRESH"))
	stored, err := repo.GetByCode(ctx, "FRESH")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UsedCount)
}
