// Package retrieval defines the knowledge-augmentation boundary: a query in,
// ranked lore chunks out. Retrieval failures are always non-fatal to a turn.
package retrieval

import "context"

type Chunk struct {
	Text    string `json:"text"`
	Source  string `json:"source"`
	Section string `json:"section"`
}

type Analysis struct {
	IntentType string `json:"intent_type"`
}

type Result struct {
	Chunks   []Chunk  `json:"chunks"`
	Analysis Analysis `json:"analysis"`
}

type Service interface {
	Query(ctx context.Context, text string) (Result, error)
}
