// Package transcript holds the ordered, append-only record of a session.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrMalformedTurn is returned by Append for turns without a valid role.
	ErrMalformedTurn = errors.New("transcript: malformed turn")
	// ErrInvalidTranscript is returned by Deserialize when the blob does not
	// decode to a turn sequence. The store is left untouched.
	ErrInvalidTranscript = errors.New("transcript: invalid transcript")
)

// Store owns the ordered turn sequence. Appends come from a single writer;
// reads may happen concurrently and always receive copies.
type Store struct {
	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// NewStoreWithClock allows tests to control timestamp assignment.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{now: now}
}

// Append validates the turn, assigns a timestamp if it has none and inserts
// it at the end, returning the assigned index. Timestamps never decrease:
// an assigned timestamp earlier than the previous turn's is bumped up.
func (s *Store) Append(t Turn) (int, error) {
	if err := t.validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Timestamp.IsZero() {
		t.Timestamp = s.now()
	}
	if n := len(s.turns); n > 0 && t.Timestamp.Before(s.turns[n-1].Timestamp) {
		t.Timestamp = s.turns[n-1].Timestamp
	}
	s.turns = append(s.turns, t.clone())
	return len(s.turns) - 1, nil
}

// Len reports the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// At returns a copy of the turn at index i.
func (s *Store) At(i int) (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.turns) {
		return Turn{}, false
	}
	return s.turns[i].clone(), true
}

// Slice returns the last n turns, oldest first. If n exceeds the transcript
// length the whole transcript is returned.
func (s *Store) Slice(n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n > len(s.turns) {
		n = len(s.turns)
	}
	out := make([]Turn, 0, n)
	for _, t := range s.turns[len(s.turns)-n:] {
		out = append(out, t.clone())
	}
	return out
}

// All returns a full ordered copy of the transcript.
func (s *Store) All() []Turn {
	return s.Slice(s.Len())
}

// Clear empties the transcript. Idempotent. All state derived from the
// transcript is invalid after Clear.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Serialize encodes the transcript as a JSON turn array.
func (s *Store) Serialize() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns
	if turns == nil {
		turns = []Turn{}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("transcript: serialize: %w", err)
	}
	return data, nil
}

// Deserialize replaces the store's contents with the decoded turn sequence.
// On any decode or validation failure the existing transcript is left
// untouched (all-or-nothing replace).
func (s *Store) Deserialize(blob []byte) error {
	var turns []Turn
	if err := json.Unmarshal(blob, &turns); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTranscript, err)
	}
	for i, t := range turns {
		if err := t.validate(); err != nil {
			return fmt.Errorf("%w: turn %d: %v", ErrInvalidTranscript, i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = turns
	return nil
}
