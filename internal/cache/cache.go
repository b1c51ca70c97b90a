// Package cache persists the query result cache (D1) in sqlite via gorm,
// in the same string-PK / datatypes.JSON / indexed-expiry style the
// teacher used for its stage/apply models, and opens the database with the
// teacher's retry-on-"database is locked" pattern.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Entry is the gorm model backing one cached query result.
type Entry struct {
	CacheKey  string `gorm:"primaryKey;column:cache_key"`
	Language  string `gorm:"index"`
	Result    datatypes.JSON
	HitCount  int64
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index"`
}

// Store is a read-through cache in front of an executor result.
type Store struct {
	db  *gorm.DB
	ttl time.Duration
}

// Open opens (creating if necessary) a sqlite-backed store at path. An
// empty or ":memory:" path opens an in-memory database, used by the "test"
// config profile.
func Open(path string, ttl time.Duration) (*Store, error) {
	db, err := openWithRetry(path)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("cache: migrate: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

func openWithRetry(path string) (*gorm.DB, error) {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			return db, nil
		}
		lastErr = err
		if !strings.Contains(err.Error(), "database is locked") {
			return nil, fmt.Errorf("cache: open %s: %w", path, err)
		}
		time.Sleep(500 * time.Millisecond)
	}
	return nil, fmt.Errorf("cache: open %s after retries: %w", path, lastErr)
}

// Key derives a cache key from the triple that determines a result:
// language, source code, and query text.
func Key(language, code, querySource string) string {
	h := sha256.New()
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(code))
	h.Write([]byte{0})
	h.Write([]byte(querySource))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached value (already unmarshaled into dst) and whether it
// was found and still fresh.
func (s *Store) Get(key string, dst any) bool {
	if s == nil {
		return false
	}
	var entry Entry
	if err := s.db.Where("cache_key = ?", key).First(&entry).Error; err != nil {
		return false
	}
	if time.Now().After(entry.ExpiresAt) {
		return false
	}
	if err := json.Unmarshal(entry.Result, dst); err != nil {
		return false
	}
	s.db.Model(&Entry{}).Where("cache_key = ?", key).
		Update("hit_count", gorm.Expr("hit_count + 1"))
	return true
}

// Put stores value under key with the store's configured TTL.
func (s *Store) Put(key, language string, value any) error {
	if s == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}
	entry := Entry{
		CacheKey:  key,
		Language:  language,
		Result:    datatypes.JSON(payload),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(s.ttl),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"result", "expires_at", "language"}),
	}).Create(&entry).Error
}

// Clear deletes every cache entry, used by the resource cleaner's
// emergency strategy.
func (s *Store) Clear() (int, error) {
	if s == nil {
		return 0, nil
	}
	res := s.db.Where("1 = 1").Delete(&Entry{})
	return int(res.RowsAffected), res.Error
}

// EvictExpired deletes entries past their TTL and returns the count.
func (s *Store) EvictExpired() (int, error) {
	if s == nil {
		return 0, nil
	}
	res := s.db.Where("expires_at < ?", time.Now()).Delete(&Entry{})
	return int(res.RowsAffected), res.Error
}

// QuickCheck runs sqlite's PRAGMA quick_check, mirroring the teacher's
// integrity-check-before-close pattern.
func (s *Store) QuickCheck() error {
	if s == nil {
		return nil
	}
	var result string
	if err := s.db.Raw("PRAGMA quick_check;").Scan(&result).Error; err != nil {
		return err
	}
	if result != "ok" {
		return errors.New("cache: integrity check failed: " + result)
	}
	return nil
}

// Close runs a final integrity check and closes the underlying connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	_ = s.QuickCheck()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
