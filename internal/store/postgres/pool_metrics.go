package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swaprouter/engine/internal/telemetry"
)

// ObservePoolMetrics registers observable gauges that report pgxpool's
// connection-pool statistics under poolName on every collection tick.
func ObservePoolMetrics(pool *pgxpool.Pool, poolName string) error {
	meter := otel.Meter("store.postgres")

	total, err := meter.Int64ObservableGauge("engine_db_pool_connections_total",
		metric.WithDescription("Total connections currently held by the pool"))
	if err != nil {
		return err
	}
	idle, err := meter.Int64ObservableGauge("engine_db_pool_connections_idle",
		metric.WithDescription("Idle connections currently held by the pool"))
	if err != nil {
		return err
	}
	acquired, err := meter.Int64ObservableGauge("engine_db_pool_connections_acquired",
		metric.WithDescription("Connections currently leased to callers"))
	if err != nil {
		return err
	}
	constructing, err := meter.Int64ObservableGauge("engine_db_pool_connections_constructing",
		metric.WithDescription("Connections currently being established"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		stat := pool.Stat()
		attrs := metric.WithAttributes(poolAttributes(poolName)...)
		observer.ObserveInt64(total, int64(stat.TotalConns()), attrs)
		observer.ObserveInt64(idle, int64(stat.IdleConns()), attrs)
		observer.ObserveInt64(acquired, int64(stat.AcquiredConns()), attrs)
		observer.ObserveInt64(constructing, int64(stat.ConstructingConns()), attrs)
		return nil
	}, total, idle, acquired, constructing)
	return err
}

func poolAttributes(poolName string) []attribute.KeyValue {
	return telemetry.PoolAttributes(poolName)
}
