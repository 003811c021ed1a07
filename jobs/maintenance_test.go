package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeCleaner struct {
	olderThan time.Duration
	calls     int
}

func (f *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) error {
	f.olderThan = olderThan
	f.calls++
	return nil
}

type fakeRefresher struct {
	companies []int64
}

func (f *fakeRefresher) RefreshCosts(ctx context.Context, companyID int64) (int64, error) {
	f.companies = append(f.companies, companyID)
	return 3, nil
}

func testMaintenance(keys KeyCleaner, refresher CostRefresher) *Maintenance {
	return NewMaintenance(nil, keys, refresher, slog.New(slog.DiscardHandler))
}

func TestHandleIdempotencyCleanup(t *testing.T) {
	cleaner := &fakeCleaner{}
	m := testMaintenance(cleaner, nil)

	task, err := NewIdempotencyCleanupTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, m.HandleIdempotencyCleanup(context.Background(), task))
	require.Equal(t, 24*time.Hour, cleaner.olderThan)
	require.Equal(t, 1, cleaner.calls)
}

func TestHandleIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	m := testMaintenance(cleaner, nil)

	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, m.HandleIdempotencyCleanup(context.Background(), task))
	require.Equal(t, 48*time.Hour, cleaner.olderThan)
}

func TestHandleIdempotencyCleanupSkipsBadPayload(t *testing.T) {
	m := testMaintenance(&fakeCleaner{}, nil)
	task := asynq.NewTask(TaskIdempotencyCleanup, []byte("{"))
	require.ErrorIs(t, m.HandleIdempotencyCleanup(context.Background(), task), asynq.SkipRetry)
}

func TestHandleFormulaCostRefreshSingleCompany(t *testing.T) {
	refresher := &fakeRefresher{}
	m := testMaintenance(nil, refresher)

	task, err := NewFormulaCostRefreshTask(7)
	require.NoError(t, err)
	require.NoError(t, m.HandleFormulaCostRefresh(context.Background(), task))
	require.Equal(t, []int64{7}, refresher.companies)
}
