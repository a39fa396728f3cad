package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const requestStartKey = "request_start"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// RequestStart 记录请求开始时间，挂在 BeforeRouter
func RequestStart() web.FilterFunc {
	return func(ctx *beecontext.Context) {
		ctx.Input.SetData(requestStartKey, time.Now())
	}
}

// RequestLogger 请求完成日志与指标，挂在 FinishRouter 且不因已输出而跳过
func RequestLogger(logger *zap.Logger) web.FilterFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx *beecontext.Context) {
		status := ctx.ResponseWriter.Status
		if status == 0 {
			status = 200
		}

		var duration time.Duration
		if start, ok := ctx.Input.GetData(requestStartKey).(time.Time); ok {
			duration = time.Since(start)
		}

		method := ctx.Input.Method()
		route := routeLabel(ctx)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", ctx.Input.URL()),
			zap.Int("status", status),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("remote_addr", getClientIP(ctx)),
		}
		switch {
		case status >= 500:
			logger.Error("Request completed", fields...)
		case status >= 400:
			logger.Warn("Request completed", fields...)
		default:
			logger.Info("Request completed", fields...)
		}
	}
}

// routeLabel 路由模式作为指标标签
func routeLabel(ctx *beecontext.Context) string {
	if pattern, ok := ctx.Input.GetData("RouterPattern").(string); ok && pattern != "" {
		return pattern
	}
	return "unmatched"
}

// getClientIP 获取客户端IP
func getClientIP(ctx *beecontext.Context) string {
	// X-Forwarded-For可能包含多个IP，取第一个
	if xff := ctx.Input.Header("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := ctx.Input.Header("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return ctx.Input.IP()
}
