package middleware

import (
	"net/http"

	"github.com/beego/beego/v2/server/web"
	"github.com/beego/beego/v2/server/web/context"
)

// CORSMiddleware CORS中间件，allowedOrigins 包含 "*" 时放行所有源
func CORSMiddleware(allowedOrigins []string) web.FilterFunc {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}

	return func(ctx *context.Context) {
		origin := ctx.Input.Header("Origin")
		if origin == "" {
			// 同源请求
			return
		}

		if _, ok := allowed[origin]; !ok && !allowAll {
			if ctx.Input.Method() == http.MethodOptions {
				ctx.Output.SetStatus(http.StatusForbidden)
				_ = ctx.Output.Body([]byte(""))
			}
			return
		}

		ctx.Output.Header("Access-Control-Allow-Origin", origin)
		ctx.Output.Header("Vary", "Origin")
		ctx.Output.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		ctx.Output.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept, Origin")
		ctx.Output.Header("Access-Control-Allow-Credentials", "true")
		ctx.Output.Header("Access-Control-Max-Age", "3600")

		// 处理OPTIONS预检请求
		if ctx.Input.Method() == http.MethodOptions {
			ctx.Output.SetStatus(http.StatusNoContent)
			_ = ctx.Output.Body([]byte(""))
		}
	}
}
