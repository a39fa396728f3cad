package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/neighbr/backend-go/internal/config"
	"github.com/neighbr/backend-go/internal/database"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func main() {
	var action = flag.String("action", "up", "Migration action: up, down, version, status, goto, force, create")
	var version = flag.Int("version", 0, "Target version for goto/force")
	var name = flag.String("name", "", "Migration name for create")
	var path = flag.String("path", "", "Migrations directory (defaults to database.migrations_path)")
	flag.Parse()

	_ = godotenv.Load()

	// 初始化配置
	cfg, err := config.NewLoader().Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	migrationsPath := *path
	if migrationsPath == "" {
		migrationsPath = cfg.Database.MigrationsPath
	}

	// 创建迁移文件不需要数据库
	if *action == "create" {
		if *name == "" {
			log.Fatal("Name must be specified for create action")
		}
		up, down, err := database.CreateMigrationFile(migrationsPath, *name)
		if err != nil {
			log.Fatalf("Failed to create migration: %v", err)
		}
		fmt.Printf("Created %s\nCreated %s\n", up, down)
		return
	}

	// 连接数据库
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// 测试连接
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// 创建日志器
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	migrationManager, err := database.NewMigrationManager(db, migrationsPath, logger)
	if err != nil {
		log.Fatalf("Failed to create migration manager: %v", err)
	}
	defer migrationManager.Close()

	// 执行迁移操作
	switch *action {
	case "up":
		fmt.Println("Running migrations up...")
		if err := migrationManager.Up(); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		fmt.Println("Migrations completed successfully")

	case "down":
		fmt.Println("Rolling back last migration...")
		if err := migrationManager.Down(); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		fmt.Println("Rollback completed successfully")

	case "version":
		version, dirty, err := migrationManager.Version()
		if err != nil {
			log.Fatalf("Failed to get version: %v", err)
		}
		fmt.Printf("Current version: %d", version)
		if dirty {
			fmt.Printf(" (dirty)")
		}
		fmt.Println()

	case "status":
		version, dirty, err := migrationManager.Version()
		if err != nil {
			log.Fatalf("Failed to get version: %v", err)
		}
		fmt.Printf("Current version: %d", version)
		if dirty {
			fmt.Printf(" (dirty - manual intervention required)")
		}
		fmt.Println()

		pending, err := migrationManager.Pending()
		if err != nil {
			log.Fatalf("Failed to check pending migrations: %v", err)
		}
		if pending {
			fmt.Println("Status: Pending migrations available")
		} else {
			fmt.Println("Status: All migrations applied")
		}

	case "goto":
		if *version == 0 {
			log.Fatal("Version must be specified for goto action")
		}
		fmt.Printf("Migrating to version %d...\n", *version)
		if err := migrationManager.Goto(uint(*version)); err != nil {
			log.Fatalf("Migration to version %d failed: %v", *version, err)
		}
		fmt.Printf("Successfully migrated to version %d\n", *version)

	case "force":
		if *version == 0 {
			log.Fatal("Version must be specified for force action")
		}
		if err := migrationManager.ForceVersion(uint(*version)); err != nil {
			log.Fatalf("Force version %d failed: %v", *version, err)
		}
		fmt.Printf("Forced version %d\n", *version)

	default:
		fmt.Printf("Unknown action: %s\n", *action)
		fmt.Println("Available actions: up, down, version, status, goto, force, create")
		os.Exit(1)
	}
}
