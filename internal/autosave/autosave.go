// Package autosave periodically snapshots the transcript to disk so a
// crashed session can be restored.
package autosave

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"loremaster/internal/transcript"
)

type Saver struct {
	cron  *cron.Cron
	store *transcript.Store
	path  string
}

func New(store *transcript.Store, path string) *Saver {
	return &Saver{
		cron:  cron.New(cron.WithLocation(time.UTC)),
		store: store,
		path:  path,
	}
}

// Start schedules snapshots per the cron spec (e.g. "@every 5m").
func (s *Saver) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.Save(); err != nil {
			log.Printf("autosave failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("autosave: schedule %q: %w", spec, err)
	}
	s.cron.Start()
	log.Printf("autosave scheduled (%s) to %s", spec, s.path)
	return nil
}

func (s *Saver) Stop() {
	s.cron.Stop()
}

// Save writes one snapshot now. The write goes to a temp file first so a
// crash mid-write never corrupts the last good snapshot.
func (s *Saver) Save() error {
	data, err := s.store.Serialize()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("autosave: ensure dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("autosave: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("autosave: rename: %w", err)
	}
	return nil
}

// Restore loads the last snapshot into the store, if one exists.
func (s *Saver) Restore() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("autosave: read: %w", err)
	}
	return s.store.Deserialize(data)
}
