package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	beecontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"

	"github.com/neighbr/backend-go/internal/errors"
	"github.com/neighbr/backend-go/internal/services"
)

const maxQueryBody = 64 << 10

// QueryAnswerer 问答服务
type QueryAnswerer interface {
	Answer(ctx context.Context, tenantID, query string) (*services.Answer, error)
}

// QueryController 问答接口
type QueryController struct {
	queries QueryAnswerer
	logger  *zap.Logger
}

// NewQueryController 创建问答控制器
func NewQueryController(queries QueryAnswerer, logger *zap.Logger) *QueryController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryController{queries: queries, logger: logger}
}

type answerQueryRequest struct {
	Query   string `json:"query"`
	HOACode string `json:"hoa_code"`
}

// AnswerQuery POST /api/v1/query/answer_query
// 参数可放在查询串、表单或JSON请求体中
func (c *QueryController) AnswerQuery(ctx *beecontext.Context) {
	req := answerQueryRequest{
		Query:   ctx.Input.Query("query"),
		HOACode: ctx.Input.Query("hoa_code"),
	}
	if req.Query == "" || req.HOACode == "" {
		if err := bindQueryBody(ctx, &req); err != nil {
			JSONError(ctx, c.logger, err)
			return
		}
	}

	if err := authorizeTenant(ctx, strings.TrimSpace(req.HOACode)); err != nil {
		JSONError(ctx, c.logger, err)
		return
	}

	answer, err := c.queries.Answer(ctx.Request.Context(), req.HOACode, req.Query)
	if err != nil {
		if answer != nil && errors.HasCode(err, errors.ErrCodeGeneration) {
			body := errorBody(translator.Translate(err))
			body["sources"] = answer.Sources
			c.logger.Error("answer generation failed",
				zap.String("hoa_code", req.HOACode),
				zap.Error(err))
			JSON(ctx, http.StatusBadGateway, body)
			return
		}
		JSONError(ctx, c.logger, err)
		return
	}

	JSON(ctx, http.StatusOK, answer)
}

// bindQueryBody 用JSON请求体补全缺失的参数
func bindQueryBody(ctx *beecontext.Context, req *answerQueryRequest) error {
	if !strings.HasPrefix(ctx.Input.Header("Content-Type"), "application/json") {
		return nil
	}
	body := ctx.Input.CopyBody(maxQueryBody)
	if len(body) == 0 {
		return nil
	}

	var fromBody answerQueryRequest
	if err := json.Unmarshal(body, &fromBody); err != nil {
		return errors.NewValidationError("Request body must be valid JSON").WithCause(err)
	}
	if req.Query == "" {
		req.Query = fromBody.Query
	}
	if req.HOACode == "" {
		req.HOACode = fromBody.HOACode
	}
	return nil
}
