package ap

import (
	"context"
	"time"
)

// RepositoryPort defines data access methods for AP reads.
type RepositoryPort interface {
	GetOpenItem(ctx context.Context, id int64) (OpenItem, error)
	FindBySourceDoc(ctx context.Context, sourceDocID int64) (OpenItem, error)
	ListOpenItems(ctx context.Context, req ListOpenItemsRequest) ([]OpenItem, error)
	ListOutstanding(ctx context.Context) ([]OpenItem, error)
}

// Service handles AP read-side business logic.
type Service struct {
	repo  RepositoryPort
	cache *AgingCache
	now   func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, cache *AgingCache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ListOpenItems returns open items with filtering.
func (s *Service) ListOpenItems(ctx context.Context, req ListOpenItemsRequest) ([]OpenItem, error) {
	return s.repo.ListOpenItems(ctx, req)
}

// GetOpenItem returns one item.
func (s *Service) GetOpenItem(ctx context.Context, id int64) (OpenItem, error) {
	return s.repo.GetOpenItem(ctx, id)
}

// Aging buckets outstanding balances by days overdue, serving the current
// snapshot from cache when possible.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingBucket, error) {
	cacheable := asOf.IsZero()
	if cacheable {
		asOf = s.now()
		if cached, err := s.cache.Get(ctx); err == nil && cached != nil {
			return *cached, nil
		}
	}
	items, err := s.repo.ListOutstanding(ctx)
	if err != nil {
		return AgingBucket{}, err
	}
	bucket := AgeItems(items, asOf)
	if cacheable {
		_ = s.cache.Set(ctx, bucket)
	}
	return bucket, nil
}

// RefreshAging recomputes and stores the current snapshot.
func (s *Service) RefreshAging(ctx context.Context) (AgingBucket, error) {
	items, err := s.repo.ListOutstanding(ctx)
	if err != nil {
		return AgingBucket{}, err
	}
	bucket := AgeItems(items, s.now())
	if err := s.cache.Set(ctx, bucket); err != nil {
		return bucket, err
	}
	return bucket, nil
}
