package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

// KeyCleaner purges expired idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// CostRefresher re-prices formula lines for one tenant.
type CostRefresher interface {
	RefreshCosts(ctx context.Context, companyID int64) (int64, error)
}

// Maintenance bundles the scheduled housekeeping handlers.
type Maintenance struct {
	pool      *pgxpool.Pool
	keys      KeyCleaner
	refresher CostRefresher
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
}

// NewMaintenance constructs the maintenance handlers.
func NewMaintenance(pool *pgxpool.Pool, keys KeyCleaner, refresher CostRefresher, logger *slog.Logger) *Maintenance {
	return &Maintenance{pool: pool, keys: keys, refresher: refresher, logger: logger}
}

// WithMetrics attaches job instrumentation.
func (m *Maintenance) WithMetrics(metrics *jobmetrics.Metrics) *Maintenance {
	m.metrics = metrics
	return m
}

// HandleIdempotencyCleanup processes TaskIdempotencyCleanup.
func (m *Maintenance) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = 48 * time.Hour
	}
	track := m.metrics.Track(TaskIdempotencyCleanup)
	if err := track.End(m.keys.Cleanup(ctx, retention)); err != nil {
		return err
	}
	m.logger.Info("idempotency keys cleaned", slog.Duration("retention", retention))
	return nil
}

// HandleFormulaCostRefresh processes TaskFormulaCostRefresh.
func (m *Maintenance) HandleFormulaCostRefresh(ctx context.Context, t *asynq.Task) error {
	var payload FormulaCostRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	track := m.metrics.Track(TaskFormulaCostRefresh)

	companies := []int64{payload.CompanyID}
	if payload.CompanyID == 0 {
		var err error
		companies, err = m.companyIDs(ctx)
		if err != nil {
			return track.End(err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, companyID := range companies {
		g.Go(func() error {
			touched, err := m.refresher.RefreshCosts(ctx, companyID)
			if err != nil {
				return err
			}
			if touched > 0 {
				m.logger.Info("formula costs refreshed",
					slog.Int64("company_id", companyID), slog.Int64("lines", touched))
			}
			return nil
		})
	}
	return track.End(g.Wait())
}

func (m *Maintenance) companyIDs(ctx context.Context) ([]int64, error) {
	rows, err := m.pool.Query(ctx, `SELECT DISTINCT company_id FROM formulas`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
