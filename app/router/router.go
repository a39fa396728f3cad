package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/neighbr/backend-go/app/controllers"
	"github.com/neighbr/backend-go/app/middleware"
)

// APIPrefix 版本化接口前缀
const APIPrefix = "/api/v1"

// Options 路由选项
type Options struct {
	// Auth 为 nil 时不做认证
	Auth        web.FilterFunc
	CORSOrigins []string
	Logger      *zap.Logger
}

// Init registers all routes on the given register.
func Init(r *web.ControllerRegister, set *controllers.Set, opts Options) error {
	if len(opts.CORSOrigins) > 0 {
		if err := r.InsertFilter("/*", web.BeforeRouter, middleware.CORSMiddleware(opts.CORSOrigins)); err != nil {
			return err
		}
	}
	if opts.Logger != nil {
		if err := r.InsertFilter("/*", web.BeforeStatic, middleware.RequestStart()); err != nil {
			return err
		}
		if err := r.InsertFilter("/*", web.FinishRouter, middleware.RequestLogger(opts.Logger), web.WithReturnOnOutput(false)); err != nil {
			return err
		}
	}
	if opts.Auth != nil {
		for _, pattern := range []string{APIPrefix + "/*", "/upload/*", "/query/*"} {
			if err := r.InsertFilter(pattern, web.BeforeRouter, opts.Auth); err != nil {
				return err
			}
		}
	}

	r.Get("/", set.Health.Index)
	r.Get("/health", set.Health.Health)
	r.Handler("/metrics", promhttp.Handler())

	r.Post(APIPrefix+"/upload/upload_pdf", set.Documents.UploadPDF)
	r.Post(APIPrefix+"/query/answer_query", set.Query.AnswerQuery)
	r.Delete(APIPrefix+"/documents", set.Documents.DeleteDocument)
	r.Delete(APIPrefix+"/admin/communities/:hoa_code", set.Documents.PurgeCommunity)

	// 兼容旧前端的无前缀路径
	r.Post("/upload/upload_pdf", set.Documents.UploadPDF)
	r.Post("/query/answer_query", set.Query.AnswerQuery)

	return nil
}
