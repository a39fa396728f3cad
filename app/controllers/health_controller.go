package controllers

import (
	"net/http"

	beecontext "github.com/beego/beego/v2/server/web/context"
)

// RootMessage 根路径返回的提示
const RootMessage = "Smart Policy Assistant backend is running!"

// ReadinessCheck 单个依赖的就绪检查
type ReadinessCheck struct {
	Name  string
	Ready func() bool
}

// HealthController 健康检查控制器
type HealthController struct {
	version string
	checks  []ReadinessCheck
}

// NewHealthController 创建健康检查控制器
func NewHealthController(version string, checks ...ReadinessCheck) *HealthController {
	return &HealthController{version: version, checks: checks}
}

// Index GET /
func (c *HealthController) Index(ctx *beecontext.Context) {
	JSON(ctx, http.StatusOK, map[string]string{"message": RootMessage})
}

// Health GET /health，任一依赖未就绪时返回503
func (c *HealthController) Health(ctx *beecontext.Context) {
	status := "healthy"
	code := http.StatusOK
	components := make(map[string]bool, len(c.checks))
	for _, check := range c.checks {
		ready := check.Ready()
		components[check.Name] = ready
		if !ready {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	JSON(ctx, code, map[string]interface{}{
		"status":     status,
		"version":    c.version,
		"components": components,
	})
}
