package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const sqliteCartKey = "cart"

type cartRow struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Payload   []byte    `gorm:"column:payload"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (cartRow) TableName() string { return "cart_store" }

// SQLiteStore keeps the cart payload in a single-row table, for installs
// where a plain file is too easy to lose or edit by hand.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store path required")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	if err := db.AutoMigrate(&cartRow{}); err != nil {
		return nil, fmt.Errorf("migrating sqlite store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Read(ctx context.Context) ([]byte, error) {
	var row cartRow
	err := s.db.WithContext(ctx).First(&row, "key = ?", sqliteCartKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotPersisted
		}
		return nil, fmt.Errorf("reading cart row: %w", err)
	}
	return row.Payload, nil
}

func (s *SQLiteStore) Write(ctx context.Context, payload []byte) error {
	row := cartRow{Key: sqliteCartKey, Payload: payload, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("writing cart row: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).Delete(&cartRow{}, "key = ?", sqliteCartKey).Error
	if err != nil {
		return fmt.Errorf("clearing cart row: %w", err)
	}
	return nil
}
