package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/jobs"
)

const syncJobType = "deliverables.sync"

type syncableContracts interface {
	ListSyncableIDs(ctx context.Context) ([]string, error)
}

type paymentIntegrityChecker interface {
	CountApprovedWithoutPayment(ctx context.Context, contractID string) (int, error)
}

type contractSynchronizer interface {
	Synchronize(ctx context.Context, contractID string) (int, error)
}

// SweeperConfig tunes the background synchroniser.
type SweeperConfig struct {
	Interval   time.Duration
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// SyncSweeper periodically synchronises every DRAFT/ACTIVE contract so periods exist
// even for contracts nobody reads, and reports approved deliverables missing a payment.
type SyncSweeper struct {
	contracts syncableContracts
	integrity paymentIntegrityChecker
	sync      contractSynchronizer
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       SweeperConfig
	queue     *jobs.Queue
}

// NewSyncSweeper builds a sweeper backed by an in-memory job queue.
func NewSyncSweeper(contracts syncableContracts, integrity paymentIntegrityChecker, sync contractSynchronizer, metrics *MetricsService, cfg SweeperConfig, logger *zap.Logger) *SyncSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	s := &SyncSweeper{
		contracts: contracts,
		integrity: integrity,
		sync:      sync,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
	s.queue = jobs.NewQueue("deliverable-sync", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the workers and the periodic schedule.
func (s *SyncSweeper) Start(ctx context.Context) error {
	s.queue.Start(ctx)
	return s.queue.Every(s.cfg.Interval, s.produce)
}

// Stop halts the schedule and waits for in-flight synchronisations.
func (s *SyncSweeper) Stop() {
	s.queue.Stop()
}

func (s *SyncSweeper) produce(ctx context.Context) ([]jobs.Job, error) {
	s.checkIntegrity(ctx)
	ids, err := s.contracts.ListSyncableIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list syncable contracts: %w", err)
	}
	out := make([]jobs.Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, jobs.Job{ID: id, Type: syncJobType, Payload: id})
	}
	s.logger.Debug("sync sweep scheduled", zap.Int("contracts", len(out)))
	return out, nil
}

func (s *SyncSweeper) handle(ctx context.Context, job jobs.Job) error {
	contractID, ok := job.Payload.(string)
	if !ok || contractID == "" {
		return nil
	}
	created, err := s.sync.Synchronize(ctx, contractID)
	if created > 0 {
		s.logger.Info("sweeper created deliverable periods", zap.String("contract_id", contractID), zap.Int("created", created))
	}
	return infraError(err)
}

// checkIntegrity counts APPROVED deliverables without a payment. Any non-zero value is a bug.
func (s *SyncSweeper) checkIntegrity(ctx context.Context) {
	if s.integrity == nil {
		return
	}
	count, err := s.integrity.CountApprovedWithoutPayment(ctx, "")
	if err != nil {
		s.logger.Warn("payment integrity check failed", zap.Error(err))
		return
	}
	s.metrics.SetApprovedWithoutPayment(count)
	if count > 0 {
		s.logger.Error("approved deliverables without payment detected", zap.Int("count", count))
	}
}
