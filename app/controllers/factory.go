package controllers

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/neighbr/backend-go/internal/config"
	"github.com/neighbr/backend-go/internal/services"
)

// Set 路由需要的全部控制器
type Set struct {
	Health    *HealthController
	Query     *QueryController
	Documents *DocumentController
}

// ControllerFactory 控制器工厂
type ControllerFactory struct {
	container *dig.Container
}

// NewControllerFactory 创建控制器工厂
func NewControllerFactory(container *dig.Container) *ControllerFactory {
	return &ControllerFactory{
		container: container,
	}
}

// Build 从容器取出服务并组装控制器
func (f *ControllerFactory) Build(checks ...ReadinessCheck) (*Set, error) {
	var set *Set
	err := f.container.Invoke(func(
		cfg *config.Config,
		logger *zap.Logger,
		queries *services.QueryService,
		documents *services.IngestionService,
	) {
		set = &Set{
			Health:    NewHealthController(cfg.App.Version, checks...),
			Query:     NewQueryController(queries, logger.Named("query")),
			Documents: NewDocumentController(documents, cfg.Server.MaxUploadSize, logger.Named("documents")),
		}
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}
