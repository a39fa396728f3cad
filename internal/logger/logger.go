package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Options 日志配置
type Options struct {
	Level  string
	Format string // json | console
}

// New 根据配置构建Logger，级别由包内AtomicLevel控制，可在运行时调整
func New(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if strings.EqualFold(opts.Format, "console") {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if err := SetLevel(opts.Level); err != nil {
		return nil, err
	}
	config.Level = level

	l, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

// InitLogger 初始化全局日志系统
func InitLogger(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}
	Logger = l
	zap.ReplaceGlobals(Logger)
	return nil
}

// SetLevel 动态修改日志级别，空字符串视为info
func SetLevel(lvl string) error {
	if lvl == "" {
		lvl = "info"
	}
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(strings.ToLower(lvl))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", lvl, err)
	}
	level.SetLevel(parsed)
	return nil
}

// Level 当前日志级别
func Level() zapcore.Level {
	return level.Level()
}

// GetLogger 获取Logger实例
func GetLogger() *zap.Logger {
	if Logger == nil {
		// 如果没有初始化，使用默认配置
		Logger, _ = zap.NewProduction()
	}
	return Logger
}

// Sync 同步日志缓冲区
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Info 记录Info级别日志
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Error 记录Error级别日志
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Debug 记录Debug级别日志
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn 记录Warn级别日志
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Fatal 记录Fatal级别日志并退出程序
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}
