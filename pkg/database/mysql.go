package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/listening-room-server/pkg/models"
)

type MySQLDB struct {
	*gorm.DB
}

func NewMySQLDB(host, port, user, password, dbname string) (*MySQLDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		user, password, host, port, dbname)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
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

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &MySQLDB{DB: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	logrus.Info("Running database migrations")

	return db.AutoMigrate(
		&models.PlayedTrack{},
	)
}

// SavePlayedTrack appends one entry to a room's play history.
func (db *MySQLDB) SavePlayedTrack(ctx context.Context, track *models.PlayedTrack) error {
	return db.WithContext(ctx).Create(track).Error
}

// RecentPlayedTracks returns the room's most recently started tracks, newest first.
func (db *MySQLDB) RecentPlayedTracks(ctx context.Context, roomID string, limit int) ([]models.PlayedTrack, error) {
	var tracks []models.PlayedTrack
	if err := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("started_at DESC").
		Limit(limit).
		Find(&tracks).Error; err != nil {
		return nil, err
	}
	return tracks, nil
}

func (db *MySQLDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
