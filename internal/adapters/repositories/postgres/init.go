package postgres

import (
	"fmt"
	"regexp"
	"time"

	"github.com/iwtcode/hipotService/internal/adapters/repositories/postgres/test_run"
	"github.com/iwtcode/hipotService/internal/config"
	"github.com/iwtcode/hipotService/internal/domain/entities"
	"github.com/iwtcode/hipotService/internal/interfaces"
	"github.com/iwtcode/hipotService/internal/middleware/logging"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// gormWriter направляет сообщения gorm в логгер приложения.
type gormWriter struct {
	log *logging.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn(fmt.Sprintf(format, args...))
}

func dsn(db config.DatabaseConfig, name string) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		db.Host, db.Username, db.Password, name, db.Port)
}

// NewRepository подключается к БД результатов. При DB_ENABLE=false хранилище не используется (nil).
func NewRepository(cfg *config.AppConfig, appLogger *logging.Logger) (interfaces.TestRunRepository, error) {
	if !cfg.Database.Enable {
		appLogger.Info("Database storage is disabled, results will not be persisted.")
		return nil, nil
	}
	log := appLogger.WithPrefix("DB")

	if err := ensureDatabase(cfg.Database, log); err != nil {
		return nil, err
	}

	gormLogger := logger.New(gormWriter{log: log}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(postgres.Open(dsn(cfg.Database, cfg.Database.DBName)), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных '%s': %w", cfg.Database.DBName, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пула соединений: %w", err)
	}
	// запись идет раз в прогон, чтение - из истории
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(&entities.TestRun{}, &entities.TestResultRecord{}); err != nil {
		return nil, fmt.Errorf("ошибка выполнения автомиграций: %w", err)
	}

	log.Info("Results database ready", "db_name", cfg.Database.DBName)
	return test_run.NewTestRunRepository(db), nil
}

// ensureDatabase создает базу результатов через служебную БД 'postgres', если ее нет.
func ensureDatabase(cfg config.DatabaseConfig, log *logging.Logger) error {
	if !dbNamePattern.MatchString(cfg.DBName) {
		return fmt.Errorf("недопустимое имя БД '%s'", cfg.DBName)
	}

	db, err := gorm.Open(postgres.Open(dsn(cfg, "postgres")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("не удалось подключиться к служебной БД 'postgres': %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	var exists bool
	if err := db.Raw("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = ?)", cfg.DBName).Scan(&exists).Error; err != nil {
		return fmt.Errorf("не удалось проверить существование БД '%s': %w", cfg.DBName, err)
	}
	if exists {
		return nil
	}

	log.Info("Database not found. Creating...", "db_name", cfg.DBName)
	if err := db.Exec(fmt.Sprintf(`CREATE DATABASE "%s"`, cfg.DBName)).Error; err != nil {
		return fmt.Errorf("не удалось создать БД '%s': %w", cfg.DBName, err)
	}
	return nil
}
