package controllers

import (
	"net/http"

	beecontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"

	"github.com/neighbr/backend-go/app/middleware"
	"github.com/neighbr/backend-go/internal/errors"
)

var translator = errors.NewErrorTranslator()

// JSON writes a JSON response with the supplied HTTP status code.
func JSON(ctx *beecontext.Context, status int, payload interface{}) {
	ctx.Output.SetStatus(status)
	_ = ctx.Output.JSON(payload, false, false)
}

// JSONError renders err as an error envelope using the AppError status code.
func JSONError(ctx *beecontext.Context, logger *zap.Logger, err error) {
	appErr := translator.Translate(err)
	status := appErr.HTTPCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", ctx.Input.URL()),
			zap.String("code", string(appErr.Code)),
			zap.Error(err))
	} else {
		logger.Debug("request rejected",
			zap.String("path", ctx.Input.URL()),
			zap.String("code", string(appErr.Code)),
			zap.Error(err))
	}

	JSON(ctx, status, errorBody(appErr))
}

func errorBody(appErr *errors.AppError) map[string]interface{} {
	body := map[string]interface{}{
		"success": false,
		"error":   appErr.Message,
		"code":    appErr.Code,
	}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	return body
}

// authorizeTenant 认证开启时要求token覆盖该社区
func authorizeTenant(ctx *beecontext.Context, hoaCode string) error {
	claims, ok := middleware.ClaimsFromContext(ctx)
	if !ok {
		return nil
	}
	if !claims.CanAccess(hoaCode) {
		return errors.NewBusinessError(errors.ErrCodeAccessDenied, "Access to this community is not allowed").
			WithDetail("hoa_code", hoaCode)
	}
	return nil
}

// authorizeAdmin 认证开启时要求管理员角色
func authorizeAdmin(ctx *beecontext.Context) error {
	claims, ok := middleware.ClaimsFromContext(ctx)
	if !ok {
		return nil
	}
	if !claims.IsAdmin() {
		return errors.NewBusinessError(errors.ErrCodeForbidden, "Admin access required")
	}
	return nil
}
