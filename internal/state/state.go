// Package state persists opaque session values (active character, active
// campaign) between sessions in a sqlite key-value table. Watchers get a
// change notification on every Set instead of polling.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Well-known keys.
const (
	KeyActiveCharacter = "active_character"
	KeyActiveCampaign  = "active_campaign"
)

// Entry is one persisted key-value row.
type Entry struct {
	Key       string `gorm:"primaryKey"`
	Value     []byte
	UpdatedAt time.Time
}

type Store struct {
	db *gorm.DB

	mu       sync.Mutex
	watchers map[int]func(key string)
	nextID   int
}

// Open opens (or creates) the sqlite database at path. Use ":memory:" for
// tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("state: migrate: %w", err)
	}
	return &Store{db: db, watchers: make(map[int]func(string))}, nil
}

// Get returns the stored blob for key; ok is false when the key is absent.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var e Entry
	err := s.db.First(&e, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("state: get %s: %w", key, err)
	}
	return e.Value, true, nil
}

// Set upserts the blob for key and notifies watchers.
func (s *Store) Set(key string, value []byte) error {
	e := Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	if err := s.db.Save(&e).Error; err != nil {
		return fmt.Errorf("state: set %s: %w", key, err)
	}
	s.mu.Lock()
	fns := make([]func(string), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(key)
	}
	return nil
}

// Watch registers a change callback and returns an unsubscribe func.
// Callbacks run on the goroutine that called Set and must not block.
func (s *Store) Watch(fn func(key string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}
