package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"zonewatch/internal/service/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// BlobPG is a single key/value blob row
type BlobPG struct {
	Key     string `gorm:"primaryKey;size:255"`
	Payload []byte `gorm:"type:bytea;not null"`

	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName overrides the table name
func (BlobPG) TableName() string {
	return "blobs"
}

// Init opens the database connection and migrates the blob table
func Init(url string) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Millisecond * 500,
			LogLevel:      logger.Warn,
		},
	)

	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}

	if err := db.AutoMigrate(&BlobPG{}); err != nil {
		return nil, fmt.Errorf("failed to migrate blob model: %w", err)
	}

	return db, nil
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// BlobStore keeps blobs in the "blobs" table
type BlobStore struct {
	db *gorm.DB
}

func NewBlobStore(db *gorm.DB) *BlobStore {
	return &BlobStore{db: db}
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var row BlobPG
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.Payload, nil
}

// Set upserts the blob, last writer wins
func (s *BlobStore) Set(ctx context.Context, key string, value []byte) error {
	row := BlobPG{Key: key, Payload: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
}

func (s *BlobStore) Remove(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&BlobPG{}, "key = ?", key).Error
}
