package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	dbConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "database_connections",
			Help: "Number of database connections in different states",
		},
		[]string{"state"}, // idle, in_use, open
	)

	dbWaitCounter = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connection_waits",
			Help: "Total number of connections waited for",
		},
	)

	dbMigrationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_migrations_total",
			Help: "Migration runs by direction and status",
		},
		[]string{"direction", "status"},
	)
)

// MetricsCollector 连接池指标收集器
type MetricsCollector struct {
	db              *sql.DB
	logger          *logrus.Logger
	collectInterval time.Duration
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector(db *sql.DB, logger *logrus.Logger) *MetricsCollector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MetricsCollector{
		db:              db,
		logger:          logger,
		collectInterval: 15 * time.Second,
	}
}

// Start 定期收集直到ctx结束
func (mc *MetricsCollector) Start(ctx context.Context) {
	mc.logger.Info("Starting database metrics collection")

	ticker := time.NewTicker(mc.collectInterval)
	defer ticker.Stop()

	for {
		mc.Collect()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Collect 收集一次连接池统计
func (mc *MetricsCollector) Collect() sql.DBStats {
	stats := mc.db.Stats()

	dbConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
	dbConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
	dbConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
	dbWaitCounter.Set(float64(stats.WaitCount))

	mc.logger.WithFields(logrus.Fields{
		"idle":   stats.Idle,
		"in_use": stats.InUse,
		"open":   stats.OpenConnections,
		"wait":   stats.WaitCount,
	}).Debug("Database connection pool stats collected")
	return stats
}

func recordMigration(direction string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	dbMigrationsCounter.WithLabelValues(direction, status).Inc()
}
