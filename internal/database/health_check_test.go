package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestHealthChecker_Basic(t *testing.T) {
	// 创建mock数据库
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()

	checker := NewHealthChecker(db, newTestLogger())
	assert.False(t, checker.IsHealthy())

	require.NoError(t, checker.Check(context.Background()))
	assert.True(t, checker.IsHealthy())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthChecker_FailureAndRecovery(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	checker := NewHealthChecker(db, newTestLogger())
	ctx := context.Background()

	// ping失败
	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)
	assert.Error(t, checker.Check(ctx))
	assert.False(t, checker.IsHealthy())

	result := checker.GetHealthResult()
	assert.False(t, result.Healthy)
	assert.NotEmpty(t, result.LastError)
	assert.False(t, result.LastCheck.IsZero())

	// 恢复
	mock.ExpectPing()
	assert.NoError(t, checker.Check(ctx))

	result = checker.GetHealthResult()
	assert.True(t, result.Healthy)
	assert.Empty(t, result.LastError)
	assert.NotEmpty(t, result.ResponseTime)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthChecker_InitialResult(t *testing.T) {
	db, _, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	result := NewHealthChecker(db, newTestLogger()).GetHealthResult()
	assert.False(t, result.Healthy)
	assert.True(t, result.LastCheck.IsZero())
	assert.Empty(t, result.ResponseTime)
}

func TestHealthChecker_StartStopsWithContext(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()

	checker := NewHealthChecker(db, newTestLogger())
	checker.SetCheckInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Start(ctx)
		close(done)
	}()

	require.Eventually(t, checker.IsHealthy, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("health checker did not stop")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
