package database

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/party-jam-system/pkg/models"
)

// DB wraps a gorm connection with the store operations the session
// engine needs. Production runs on MySQL; tests construct one over
// sqlite through New.
type DB struct {
	*gorm.DB
}

func NewMySQLDB(host, port, user, password, dbname string) (*DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return New(db)
}

// New migrates the schema and returns the store. The dialect is
// whatever the caller opened; every query in this package is portable
// across MySQL and sqlite.
func New(db *gorm.DB) (*DB, error) {
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &DB{DB: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	log.Info("running database migrations")

	return db.AutoMigrate(
		&models.Host{},
		&models.Room{},
		&models.Guest{},
		&models.QueueItem{},
		&models.Vote{},
	)
}
