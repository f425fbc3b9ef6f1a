package localstore

import (
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// LocalValue is one persisted key/value pair.
type LocalValue struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// SQLite backs the store with a gorm-managed SQLite file, for setups where
// the CLI shares a database with the mock API.
type SQLite struct {
	db *gorm.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening local store db")
	}
	if err := db.AutoMigrate(&LocalValue{}); err != nil {
		return nil, errors.Wrap(err, "migrating local store db")
	}
	return &SQLite{db: db}, nil
}

// NewSQLiteDB wraps an already-open gorm handle.
func NewSQLiteDB(db *gorm.DB) (*SQLite, error) {
	if err := db.AutoMigrate(&LocalValue{}); err != nil {
		return nil, errors.Wrap(err, "migrating local store db")
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(key string) (string, bool, error) {
	var row LocalValue
	err := s.db.First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "reading local store db")
	}
	return row.Value, true, nil
}

func (s *SQLite) Set(key, value string) error {
	row := LocalValue{Key: key, Value: value}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
	return errors.Wrap(err, "writing local store db")
}

func (s *SQLite) Remove(key string) error {
	err := s.db.Delete(&LocalValue{}, "key = ?", key).Error
	return errors.Wrap(err, "removing from local store db")
}
