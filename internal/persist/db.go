package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// savedSession is a single-row table; the row id is fixed.
type savedSession struct {
	ID        uint `gorm:"primaryKey"`
	GameID    string
	PlayerID  string
	IsHost    bool
	UpdatedAt time.Time
}

const savedSessionRow = 1

// DB keeps the record in a postgres table through gorm.
type DB struct {
	db *gorm.DB
}

func OpenDB(dsn string) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	if err := db.AutoMigrate(&savedSession{}); err != nil {
		return nil, fmt.Errorf("migrate session db: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Save(ctx context.Context, r Record) error {
	if err := r.validate(); err != nil {
		return err
	}
	row := savedSession{ID: savedSessionRow, GameID: r.GameID, PlayerID: r.PlayerID, IsHost: r.IsHost}
	return d.db.WithContext(ctx).Save(&row).Error
}

func (d *DB) Load(ctx context.Context) (Record, bool, error) {
	var row savedSession
	err := d.db.WithContext(ctx).First(&row, savedSessionRow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return Record{GameID: row.GameID, PlayerID: row.PlayerID, IsHost: row.IsHost}, true, nil
}

func (d *DB) Clear(ctx context.Context) error {
	return d.db.WithContext(ctx).Delete(&savedSession{}, savedSessionRow).Error
}

func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
