package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"healthdeck/internal/config"
	"healthdeck/internal/models"
)

// DB is the gorm-backed persistence layer. All methods are safe for concurrent use.
type DB struct {
	db  *gorm.DB
	sql *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the sqlite database at path, runs migrations and
// seeds default settings.
func Open(path string) (*DB, error) {
	// Ensure the directory exists (for Docker volumes)
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn().Err(err).Str("directory", dir).Msg("[DB] Could not create database directory")
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; WAL lets readers proceed during writes.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	gdb, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &DB{db: gdb, sql: sqlDB, now: time.Now}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("[DB] Database initialized")
	return d, nil
}

func (d *DB) migrate() error {
	if err := d.db.AutoMigrate(&models.Service{}, &models.HistoryEntry{}, &models.Setting{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Insert missing defaults without touching values an operator already changed.
	defaults := config.DefaultSettings()
	if err := d.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&defaults).Error; err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.sql.Close()
}
