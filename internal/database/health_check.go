package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthChecker 数据库健康检查器
type HealthChecker struct {
	db            *sql.DB
	logger        *logrus.Logger
	checkInterval time.Duration
	timeout       time.Duration

	mu           sync.RWMutex
	isHealthy    bool
	lastCheck    time.Time
	lastError    error
	responseTime time.Duration
}

// HealthCheckResult 健康检查结果
type HealthCheckResult struct {
	Healthy      bool      `json:"healthy"`
	LastCheck    time.Time `json:"last_check"`
	LastError    string    `json:"last_error,omitempty"`
	ResponseTime string    `json:"response_time,omitempty"`
	OpenConns    int       `json:"open_connections"`
	InUseConns   int       `json:"in_use_connections"`
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(db *sql.DB, logger *logrus.Logger) *HealthChecker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HealthChecker{
		db:            db,
		logger:        logger,
		checkInterval: 30 * time.Second,
		timeout:       5 * time.Second,
	}
}

// SetCheckInterval 设置检查间隔，需在 Start 之前调用
func (hc *HealthChecker) SetCheckInterval(interval time.Duration) {
	if interval > 0 {
		hc.checkInterval = interval
	}
}

// Start 立即检查一次，之后定期检查直到ctx结束
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.logger.Info("Starting database health checker")
	_ = hc.Check(ctx)

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hc.logger.Info("Database health checker stopped")
			return
		case <-ticker.C:
			_ = hc.Check(ctx)
		}
	}
}

// Check 执行单次健康检查
func (hc *HealthChecker) Check(ctx context.Context) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	err := hc.db.PingContext(ctx)
	responseTime := time.Since(start)

	hc.mu.Lock()
	wasHealthy := hc.isHealthy
	hc.lastCheck = time.Now()
	hc.responseTime = responseTime
	hc.lastError = err
	hc.isHealthy = err == nil
	hc.mu.Unlock()

	if err != nil {
		hc.logger.WithFields(logrus.Fields{
			"error":         err.Error(),
			"response_time": responseTime,
		}).Warn("Database health check failed")
		return err
	}

	if !wasHealthy {
		hc.logger.WithField("response_time", responseTime).Info("Database connection healthy")
	}
	hc.logger.WithField("response_time", responseTime).Debug("Database health check passed")
	return nil
}

// IsHealthy 获取当前健康状态
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.isHealthy
}

// GetHealthResult 获取健康检查结果
func (hc *HealthChecker) GetHealthResult() HealthCheckResult {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	stats := hc.db.Stats()
	result := HealthCheckResult{
		Healthy:    hc.isHealthy,
		LastCheck:  hc.lastCheck,
		OpenConns:  stats.OpenConnections,
		InUseConns: stats.InUse,
	}
	if hc.lastError != nil {
		result.LastError = hc.lastError.Error()
	}
	if !hc.lastCheck.IsZero() {
		result.ResponseTime = hc.responseTime.String()
	}
	return result
}
