package middleware

import (
	"net/http"

	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"

	"github.com/neighbr/backend-go/internal/auth"
	"github.com/neighbr/backend-go/internal/errors"
)

// ClaimsKey 上下文中保存token声明的键
const ClaimsKey = "claims"

// TokenValidator 校验访问token
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.JWTClaims, error)
}

// SecurityMiddleware 认证中间件
type SecurityMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewSecurityMiddleware 创建认证中间件
func NewSecurityMiddleware(validator TokenValidator, logger *zap.Logger) *SecurityMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityMiddleware{validator: validator, logger: logger}
}

// AuthRequired 校验Bearer token并把声明写入上下文
func (sm *SecurityMiddleware) AuthRequired() web.FilterFunc {
	return func(ctx *beecontext.Context) {
		if ctx.Input.Method() == http.MethodOptions {
			return
		}

		token, err := auth.ExtractTokenFromHeader(ctx.Input.Header("Authorization"))
		if err != nil {
			sm.handleAuthError(ctx, errors.NewUnauthorizedError("Authentication required").WithCause(err))
			return
		}

		claims, err := sm.validator.ValidateToken(token)
		if err != nil {
			sm.logger.Debug("token rejected",
				zap.String("path", ctx.Input.URL()),
				zap.Error(err))
			sm.handleAuthError(ctx, errors.NewUnauthorizedError("Invalid or expired token").WithCause(err))
			return
		}

		ctx.Input.SetData(ClaimsKey, claims)
	}
}

// ClaimsFromContext 读取已认证请求的token声明，认证关闭时返回false
func ClaimsFromContext(ctx *beecontext.Context) (*auth.JWTClaims, bool) {
	claims, ok := ctx.Input.GetData(ClaimsKey).(*auth.JWTClaims)
	return claims, ok && claims != nil
}

// handleAuthError 输出认证错误
func (sm *SecurityMiddleware) handleAuthError(ctx *beecontext.Context, appErr *errors.AppError) {
	ctx.Output.SetStatus(appErr.HTTPCode)
	_ = ctx.Output.JSON(map[string]interface{}{
		"success": false,
		"error":   appErr.Message,
		"code":    appErr.Code,
	}, false, false)
}
