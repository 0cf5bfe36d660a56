// Package store persists fetched observation pages in SQLite so repeated
// queries replay from disk instead of the network.
package store

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/averho/wildset/internal/errors"
	"github.com/averho/wildset/internal/logging"
)

// Package-level logger specific to page persistence
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := "logs/store.log"
	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "store", serviceLevelVar)
	if err != nil || logger == nil {
		logger = logging.DiscardLogger("store")
		closeLogger = func() error { return nil }
	}
}

// Page is one raw result page keyed by its search fingerprint and number.
type Page struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex:idx_pages_key_num;size:1024;not null"`
	PageNum   int       `gorm:"uniqueIndex:idx_pages_key_num;not null"`
	Body      []byte    `gorm:"not null"`
	FetchedAt time.Time `gorm:"index;not null"`
}

// Store is a SQLite-backed page cache.
type Store struct {
	db *gorm.DB
}

// Open opens or creates the page cache database at path, migrating the
// schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("store").
				Category(errors.CategoryFileIO).
				FileContext(path, 0).
				Context("operation", "create_cache_directory").
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "open_database").
			Context("path", path).
			Build()
	}

	if err := db.AutoMigrate(&Page{}); err != nil {
		return nil, errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate_schema").
			Context("path", path).
			Build()
	}

	logger.Info("page cache opened", "path", path)
	return &Store{db: db}, nil
}

// Get returns the stored body for a page. found is false when the page is
// absent or older than maxAge (zero maxAge accepts any age).
func (s *Store) Get(key string, pageNum int, maxAge time.Duration) ([]byte, bool, error) {
	var p Page
	err := s.db.Where("key = ? AND page_num = ?", key, pageNum).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "get_page").
			Context("page", pageNum).
			Build()
	}
	if maxAge > 0 && time.Since(p.FetchedAt) > maxAge {
		return nil, false, nil
	}
	return p.Body, true, nil
}

// Put stores or replaces a page body.
func (s *Store) Put(key string, pageNum int, body []byte) error {
	p := Page{
		Key:       key,
		PageNum:   pageNum,
		Body:      body,
		FetchedAt: time.Now().UTC(),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}, {Name: "page_num"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "fetched_at"}),
	}).Create(&p).Error
	if err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "put_page").
			Context("page", pageNum).
			Build()
	}
	return nil
}

// Prune deletes pages fetched before now-maxAge and reports how many rows
// were removed.
func (s *Store) Prune(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res := s.db.Where("fetched_at < ?", cutoff).Delete(&Page{})
	if res.Error != nil {
		return 0, errors.New(res.Error).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "prune_pages").
			Build()
	}
	if res.RowsAffected > 0 {
		logger.Info("pruned stale pages", "removed", res.RowsAffected, "cutoff", cutoff)
	}
	return res.RowsAffected, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "close_database").
			Build()
	}
	if err := sqlDB.Close(); err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "close_database").
			Build()
	}
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}
