package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

func (c PostgresConfig) DSN() string {
	ssl := c.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, ssl)
}

func gormConfig(quiet bool) *gorm.Config {
	cfg := &gorm.Config{DisableForeignKeyConstraintWhenMigrating: true}
	if quiet {
		cfg.Logger = gormLogger.Default.LogMode(gormLogger.Silent)
	}
	return cfg
}

func OpenPostgres(log *logger.Logger, cfg PostgresConfig) (*gorm.DB, error) {
	log = log.With("service", "PostgresService")
	log.Info("Connecting to Postgres...", "host", cfg.Host, "name", cfg.Name)
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig(true))
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	log.Info("Connected to Postgres")
	return db, nil
}

// OpenSQLite opens (creating if needed) a database file. ":memory:" works
// for throwaway runs.
func OpenSQLite(log *logger.Logger, path string) (*gorm.DB, error) {
	log = log.With("service", "SQLiteService")
	db, err := gorm.Open(sqlite.Open(path), gormConfig(true))
	if err != nil {
		log.Error("Failed to open SQLite", "path", path, "error", err)
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	log.Info("Opened SQLite", "path", path)
	return db, nil
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
