package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/period"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/jobs"
)

func TestSyncSweeperSynchronisesSyncableContracts(t *testing.T) {
	start, end := day(2025, 1, 1), day(2025, 3, 31)
	closed := newContract("c3", "company-2", start, end)
	closed.Status = models.ContractStatusCancelled
	contracts := newContractStub(newContract("c1", "company-1", start, end), newContract("c2", "company-2", start, end), closed).
		withPeriodicity("c1", period.Monthly).
		withPeriodicity("c2", period.Biweekly).
		withPeriodicity("c3", period.Monthly)
	deliverables := newMemDeliverables()
	deliverables.orphaned = 2
	metrics := NewMetricsService()
	sync := NewPeriodSyncService(deliverables, contracts, zap.NewNop(),
		WithSyncMetrics(metrics),
		WithSyncClock(func() time.Time { return day(2025, 4, 1) }))

	sweeper := NewSyncSweeper(contracts, deliverables, sync, metrics, SweeperConfig{Interval: time.Hour, Workers: 2}, zap.NewNop())
	require.NoError(t, sweeper.Start(context.Background()))
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		c1, _ := deliverables.ListByContract(context.Background(), "c1")
		c2, _ := deliverables.ListByContract(context.Background(), "c2")
		return len(c1) == 3 && len(c2) == 6
	}, 2*time.Second, 10*time.Millisecond)

	c3, err := deliverables.ListByContract(context.Background(), "c3")
	require.NoError(t, err)
	assert.Empty(t, c3)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.unpaidApprovedGauge))
}

func TestSyncSweeperHandleIgnoresBusinessErrors(t *testing.T) {
	sync := NewPeriodSyncService(newMemDeliverables(), newContractStub(), nil)
	sweeper := NewSyncSweeper(newContractStub(), nil, sync, nil, SweeperConfig{}, nil)

	// unknown contracts are NotFound, which must not be retried
	assert.NoError(t, sweeper.handle(context.Background(), jobs.Job{ID: "missing", Payload: "missing"}))
	assert.NoError(t, sweeper.handle(context.Background(), jobs.Job{ID: "empty", Payload: ""}))
}

func TestSyncSweeperProduceFailsWhenContractsUnavailable(t *testing.T) {
	contracts := newContractStub()
	contracts.err = errors.New("db down")
	sweeper := NewSyncSweeper(contracts, nil, nil, nil, SweeperConfig{}, nil)

	_, err := sweeper.produce(context.Background())
	require.Error(t, err)
}
