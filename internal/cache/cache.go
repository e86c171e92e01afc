package cache

import (
	"context"
	"time"

	"swiim/backend/internal/domain"
)

type OverviewCache interface {
	Get(ctx context.Context, key string) (*domain.AnalyticsOverview, bool, error)
	Set(ctx context.Context, key string, value *domain.AnalyticsOverview, ttl time.Duration) error
}

type NoopOverviewCache struct{}

func (NoopOverviewCache) Get(_ context.Context, _ string) (*domain.AnalyticsOverview, bool, error) {
	return nil, false, nil
}

func (NoopOverviewCache) Set(_ context.Context, _ string, _ *domain.AnalyticsOverview, _ time.Duration) error {
	return nil
}
