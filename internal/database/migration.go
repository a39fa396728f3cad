package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"
)

// MigrationManager 数据库迁移管理器
type MigrationManager struct {
	migrate   *migrate.Migrate
	sourceURL string
	logger    *logrus.Logger
}

// ResolveMigrationPath 转为绝对路径，空值取 ./migrations
func ResolveMigrationPath(migrationPath string) string {
	if migrationPath == "" {
		migrationPath = "./migrations"
	}
	if abs, err := filepath.Abs(migrationPath); err == nil {
		return abs
	}
	return migrationPath
}

// NewMigrationManager 创建迁移管理器
func NewMigrationManager(db *sql.DB, migrationPath string, logger *logrus.Logger) (*MigrationManager, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceURL := "file://" + ResolveMigrationPath(migrationPath)
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &MigrationManager{
		migrate:   m,
		sourceURL: sourceURL,
		logger:    logger,
	}, nil
}

// Up 执行所有待执行的迁移
func (mm *MigrationManager) Up() error {
	mm.logger.Info("Starting database migration up")

	err := mm.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		mm.logger.Info("No migrations to apply")
		return nil
	}
	recordMigration("up", err)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	mm.logger.Info("Database migrations completed successfully")
	return nil
}

// Goto 迁移到指定版本，可向上也可向下
func (mm *MigrationManager) Goto(version uint) error {
	mm.logger.Infof("Migrating to version %d", version)

	err := mm.migrate.Migrate(version)
	recordMigration("goto", err)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate to version %d: %w", version, err)
	}

	mm.logger.Infof("Successfully migrated to version %d", version)
	return nil
}

// Down 回滚最后一次迁移
func (mm *MigrationManager) Down() error {
	mm.logger.Info("Rolling back last migration")

	err := mm.migrate.Steps(-1)
	recordMigration("down", err)
	if err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	mm.logger.Info("Migration rollback completed")
	return nil
}

// Version 获取当前数据库版本，未迁移过时返回0
func (mm *MigrationManager) Version() (uint, bool, error) {
	version, dirty, err := mm.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Pending 是否存在比当前版本更高的迁移文件
func (mm *MigrationManager) Pending() (bool, error) {
	version, dirty, err := mm.Version()
	if err != nil {
		return false, err
	}
	if dirty {
		return false, fmt.Errorf("database is in dirty state at version %d", version)
	}

	src, err := source.Open(mm.sourceURL)
	if err != nil {
		return false, fmt.Errorf("failed to open migration source: %w", err)
	}
	defer src.Close()

	if version == 0 {
		_, err = src.First()
	} else {
		_, err = src.Next(version)
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read migration source: %w", err)
	}
	return true, nil
}

// ForceVersion 强制设置数据库版本（用于修复脏状态）
func (mm *MigrationManager) ForceVersion(version uint) error {
	mm.logger.Warnf("Force setting migration version to %d", version)

	if err := mm.migrate.Force(int(version)); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// MigrateUp 使用独立连接执行全部待执行迁移，启动时自动迁移使用
func MigrateUp(databaseURL, migrationPath string, logger *logrus.Logger) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	mm, err := NewMigrationManager(db, migrationPath, logger)
	if err != nil {
		db.Close()
		return err
	}
	defer mm.Close()

	return mm.Up()
}

// Close 关闭迁移管理器，同时关闭传入的连接
func (mm *MigrationManager) Close() error {
	sourceErr, dbErr := mm.migrate.Close()
	if sourceErr != nil || dbErr != nil {
		return fmt.Errorf("errors occurred while closing migrator: source=%v, db=%v", sourceErr, dbErr)
	}
	return nil
}

var migrationFilePattern = regexp.MustCompile(`^(\d+)_.+\.up\.sql$`)

// CreateMigrationFile 按下一个序号创建 up/down 迁移文件
func CreateMigrationFile(migrationPath, name string) (string, string, error) {
	name = strings.Trim(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_")), "_")
	if name == "" {
		return "", "", fmt.Errorf("migration name is empty")
	}
	if err := os.MkdirAll(migrationPath, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create migration directory: %w", err)
	}

	entries, err := os.ReadDir(migrationPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to read migration directory: %w", err)
	}
	next := uint64(1)
	for _, entry := range entries {
		match := migrationFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		if n, err := strconv.ParseUint(match[1], 10, 64); err == nil && n >= next {
			next = n + 1
		}
	}

	base := fmt.Sprintf("%06d_%s", next, name)
	up := filepath.Join(migrationPath, base+".up.sql")
	down := filepath.Join(migrationPath, base+".down.sql")
	for _, path := range []string{up, down} {
		if err := os.WriteFile(path, []byte("-- "+filepath.Base(path)+"\n"), 0o644); err != nil {
			return "", "", fmt.Errorf("failed to create %s: %w", path, err)
		}
	}
	return up, down, nil
}
