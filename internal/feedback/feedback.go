// Package feedback attaches ratings to transcript indices. The filtered
// exporter keeps only positively rated assistant turns.
package feedback

import "sync"

type Rating int

const (
	RatingNone Rating = iota
	RatingPositive
	RatingNegative
)

// Annotator is the in-session rating store. Ratings key off the transcript
// index of the rated assistant turn.
type Annotator struct {
	mu      sync.RWMutex
	ratings map[int]Rating
}

func NewAnnotator() *Annotator {
	return &Annotator{ratings: make(map[int]Rating)}
}

func (a *Annotator) Set(index int, r Rating) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r == RatingNone {
		delete(a.ratings, index)
		return
	}
	a.ratings[index] = r
}

func (a *Annotator) Get(index int) Rating {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ratings[index]
}

// All returns a copy of the rating map.
func (a *Annotator) All() map[int]Rating {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[int]Rating, len(a.ratings))
	for k, v := range a.ratings {
		out[k] = v
	}
	return out
}

// Clear drops all ratings; they are meaningless once the transcript they
// index into is gone.
func (a *Annotator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ratings = make(map[int]Rating)
}
