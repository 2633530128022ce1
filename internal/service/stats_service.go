package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/dto"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	appErrors "github.com/julioctb/Dashboard-pletorica-sub001/pkg/errors"
)

type statsStore interface {
	ContractRollup(ctx context.Context, contractID string) (models.DeliverableRollup, error)
	CompanyRollup(ctx context.Context, companyID string) (models.DeliverableRollup, error)
	ContractPaidTotal(ctx context.Context, contractID string) (decimal.Decimal, error)
	CompanyPaidTotal(ctx context.Context, companyID string) (decimal.Decimal, error)
	CountCompanyContracts(ctx context.Context, companyID string) (int, error)
}

type reviewQueueStore interface {
	ListReviewQueue(ctx context.Context, filter models.ReviewQueueFilter) ([]models.ReviewQueueItem, int, error)
	CountApprovedWithoutPayment(ctx context.Context, contractID string) (int, error)
}

// StatsService serves read-only deliverable rollups, cached in Redis when enabled.
type StatsService struct {
	stats        statsStore
	deliverables reviewQueueStore
	contracts    contractLookup
	cache        *CacheService
	cacheTTL     time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewStatsService constructs the service.
func NewStatsService(stats statsStore, deliverables reviewQueueStore, contracts contractLookup, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{
		stats:        stats,
		deliverables: deliverables,
		contracts:    contracts,
		cache:        cache,
		cacheTTL:     cacheTTL,
		logger:       logger,
		now:          time.Now,
	}
}

// ContractStats returns status counts and spending of a contract against its cap.
func (s *StatsService) ContractStats(ctx context.Context, contractID string, actor *models.JWTClaims) (*models.ContractStats, error) {
	contract, err := loadScopedContract(ctx, s.contracts, contractID, actor)
	if err != nil {
		return nil, err
	}
	key := ContractStatsKey(contractID)
	var cached models.ContractStats
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	var (
		rollup   models.DeliverableRollup
		paid     decimal.Decimal
		orphaned int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		rollup, err = s.stats.ContractRollup(groupCtx, contractID)
		return err
	})
	group.Go(func() error {
		var err error
		paid, err = s.stats.ContractPaidTotal(groupCtx, contractID)
		return err
	})
	group.Go(func() error {
		var err error
		orphaned, err = s.deliverables.CountApprovedWithoutPayment(groupCtx, contractID)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute contract stats")
	}

	stats := &models.ContractStats{
		ContractID:             contractID,
		Counts:                 rollup.StatusCounts,
		Total:                  rollup.Total(),
		ApprovedTotal:          rollup.ApprovedTotal,
		PaidTotal:              paid,
		MaxAmount:              contract.MaxAmount,
		ApprovedWithoutPayment: orphaned,
		GeneratedAt:            s.now().UTC(),
	}
	if contract.MaxAmount.Valid {
		remaining := contract.MaxAmount.Decimal.Sub(rollup.ApprovedTotal)
		stats.Remaining = decimal.NewNullDecimal(remaining)
		stats.BudgetExceeded = remaining.IsNegative()
	}
	if orphaned > 0 {
		s.logger.Error("approved deliverables without payment", zap.String("contract_id", contractID), zap.Int("count", orphaned))
	}
	_ = s.cache.Set(ctx, key, stats, s.cacheTTL)
	return stats, nil
}

// CompanyStats aggregates deliverables across all contracts of a company.
func (s *StatsService) CompanyStats(ctx context.Context, companyID string, actor *models.JWTClaims) (*models.CompanyStats, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.IsVendor() && actor.CompanyID != companyID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "company stats belong to another company")
	}
	key := CompanyStatsKey(companyID)
	var cached models.CompanyStats
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	var (
		rollup    models.DeliverableRollup
		paid      decimal.Decimal
		contracts int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		rollup, err = s.stats.CompanyRollup(groupCtx, companyID)
		return err
	})
	group.Go(func() error {
		var err error
		paid, err = s.stats.CompanyPaidTotal(groupCtx, companyID)
		return err
	})
	group.Go(func() error {
		var err error
		contracts, err = s.stats.CountCompanyContracts(groupCtx, companyID)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute company stats")
	}

	stats := &models.CompanyStats{
		CompanyID:     companyID,
		Contracts:     contracts,
		Counts:        rollup.StatusCounts,
		Total:         rollup.Total(),
		ApprovedTotal: rollup.ApprovedTotal,
		PaidTotal:     paid,
		GeneratedAt:   s.now().UTC(),
	}
	_ = s.cache.Set(ctx, key, stats, s.cacheTTL)
	return stats, nil
}

// ReviewQueue lists IN_REVIEW deliverables, oldest submission first. Vendors only see their own company.
func (s *StatsService) ReviewQueue(ctx context.Context, query dto.ReviewQueueQuery, actor *models.JWTClaims) ([]models.ReviewQueueItem, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 || size > 200 {
		size = 20
	}
	filter := models.ReviewQueueFilter{
		CompanyID:  query.CompanyID,
		ContractID: query.ContractID,
		Limit:      size,
		Offset:     (page - 1) * size,
	}
	if actor.IsVendor() {
		filter.CompanyID = actor.CompanyID
	}
	items, total, err := s.deliverables.ListReviewQueue(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review queue")
	}
	if items == nil {
		items = []models.ReviewQueueItem{}
	}
	for i := range items {
		items[i].Label = items[i].PeriodLabel()
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
