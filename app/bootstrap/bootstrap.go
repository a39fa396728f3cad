package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beego/beego/v2/server/web"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/neighbr/backend-go/app/controllers"
	"github.com/neighbr/backend-go/app/middleware"
	"github.com/neighbr/backend-go/app/router"
	"github.com/neighbr/backend-go/internal/auth"
	"github.com/neighbr/backend-go/internal/config"
	"github.com/neighbr/backend-go/internal/database"
	"github.com/neighbr/backend-go/internal/di"
	"github.com/neighbr/backend-go/internal/kafka"
	"github.com/neighbr/backend-go/internal/knowledge"
	"github.com/neighbr/backend-go/internal/logger"
	"github.com/neighbr/backend-go/internal/services"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	Config    *config.Config
	Container *dig.Container

	loader       *config.Loader
	logger       *zap.Logger
	checks       []controllers.ReadinessCheck
	cleanupTasks []func() error
	cancel       context.CancelFunc
}

// Init bootstraps configuration, logger, database connections and other shared
// infrastructure components, then registers routes on beego's handler.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	loader := config.NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	// Initialize structured logger.
	if err := logger.InitLogger(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return nil, err
	}
	zlog := logger.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config: cfg,
		loader: loader,
		logger: zlog,
		cancel: cancel,
	}

	app.watchConfig()

	if cfg.Database.AutoMigrate && cfg.Knowledge.VectorStore.Provider == "postgres" {
		if err := database.MigrateUp(cfg.Database.URL, cfg.Database.MigrationsPath, newLogrus(cfg.Log.Level)); err != nil {
			app.Shutdown()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	container, err := di.Build(cfg, zlog)
	if err != nil {
		app.Shutdown()
		return nil, err
	}
	app.Container = container

	if err := app.initDatabase(ctx); err != nil {
		app.Shutdown()
		return nil, err
	}
	if err := app.initKnowledge(); err != nil {
		app.Shutdown()
		return nil, err
	}
	if cfg.Kafka.Enabled {
		if err := app.initKafka(); err != nil {
			app.Shutdown()
			return nil, err
		}
	}
	if err := app.initRoutes(web.BeeApp.Handlers); err != nil {
		app.Shutdown()
		return nil, err
	}

	return app, nil
}

// watchConfig 配置文件变化时调整日志级别
func (a *App) watchConfig() {
	a.loader.RegisterCallback(func(oldConfig, newConfig *config.Config) error {
		if oldConfig != nil && oldConfig.Log.Level == newConfig.Log.Level {
			return nil
		}
		logger.Info("Log level changed", zap.String("level", newConfig.Log.Level))
		return logger.SetLevel(newConfig.Log.Level)
	})
	if err := a.loader.StartWatching(func(err error) {
		logger.Error("Failed to reload configuration", zap.Error(err))
	}); err != nil {
		logger.Warn("Config watcher not started", zap.Error(err))
	}
}

// initDatabase 向量存储使用Postgres时启动健康检查与连接池指标
func (a *App) initDatabase(ctx context.Context) error {
	if a.Config.Knowledge.VectorStore.Provider != "postgres" {
		return nil
	}

	return a.Container.Invoke(func(db *gorm.DB) error {
		a.cleanupTasks = append(a.cleanupTasks, func() error {
			return database.Close(db)
		})

		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("get sql.DB: %w", err)
		}

		dbLogger := newLogrus(a.Config.Log.Level)
		checker := database.NewHealthChecker(sqlDB, dbLogger)
		collector := database.NewMetricsCollector(sqlDB, dbLogger)
		go checker.Start(ctx)
		go collector.Start(ctx)

		a.checks = append(a.checks, controllers.ReadinessCheck{Name: "database", Ready: checker.IsHealthy})
		return nil
	})
}

func (a *App) initKnowledge() error {
	return a.Container.Invoke(func(index knowledge.SimilarityIndex, embedder knowledge.Embedder) {
		a.checks = append(a.checks,
			controllers.ReadinessCheck{Name: "index", Ready: index.Ready},
			controllers.ReadinessCheck{Name: "embedder", Ready: embedder.Ready},
		)
		if closer, ok := index.(io.Closer); ok {
			a.cleanupTasks = append(a.cleanupTasks, closer.Close)
		}
	})
}

// initKafka 启动入库消费者；生产者不可用时跳过
func (a *App) initKafka() error {
	return a.Container.Invoke(func(producer *kafka.Producer, ingestion *services.IngestionService) {
		if producer == nil {
			return
		}
		a.cleanupTasks = append(a.cleanupTasks, producer.Close)

		cfg := a.Config.Kafka
		consumer, err := kafka.NewConsumer(cfg.Brokers, cfg.GroupID, []string{cfg.Topic}, a.logger.Named("kafka"))
		if err != nil {
			logger.Warn("Failed to initialize Kafka consumer", zap.Error(err))
			return
		}
		consumer.RegisterHandler(cfg.Topic, ingestion.HandleIngestEvent)
		consumer.Start()
		a.cleanupTasks = append(a.cleanupTasks, consumer.Close)
		logger.Info("Kafka ingest consumer started",
			zap.String("topic", cfg.Topic),
			zap.String("group_id", cfg.GroupID))
	})
}

func (a *App) initRoutes(register *web.ControllerRegister) error {
	set, err := controllers.NewControllerFactory(a.Container).Build(a.checks...)
	if err != nil {
		return err
	}

	opts := router.Options{
		CORSOrigins: a.Config.Server.CORSOrigins,
		Logger:      a.logger.Named("http"),
	}
	if a.Config.Auth.Enabled {
		err := a.Container.Invoke(func(jwtService *auth.JWTService) {
			opts.Auth = middleware.NewSecurityMiddleware(jwtService, a.logger.Named("auth")).AuthRequired()
		})
		if err != nil {
			return err
		}
	}
	return router.Init(register, set, opts)
}

// Run 启动HTTP服务，收到 SIGINT/SIGTERM 后等待处理中的请求结束
func (a *App) Run() error {
	web.BConfig.AppName = a.Config.App.Name
	web.BConfig.CopyRequestBody = true

	server := &http.Server{
		Addr:         ":" + a.Config.Server.Port,
		Handler:      web.BeeApp.Handlers,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("addr", server.Addr),
			zap.String("env", a.Config.App.Env),
			zap.String("addressing", a.Config.Knowledge.Addressing),
			zap.String("vector_store", a.Config.Knowledge.VectorStore.Provider))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger.Info("Shutting down server", zap.Duration("timeout", timeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}

	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}
	a.cleanupTasks = nil

	// Flush logger buffers.
	logger.Sync()
}

// newLogrus 数据库工具使用的logrus实例
func newLogrus(level string) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	return l
}
