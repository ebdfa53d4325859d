package retrieval

import (
	"context"
	"sort"
	"strings"
)

const defaultTopK = 4

// Document is one lore entry loaded into the in-process retriever.
type Document struct {
	Text    string
	Source  string
	Section string
}

// CorpusRetriever ranks lore documents by keyword overlap with the query.
// It deliberately implements no clever ranking; it only satisfies the
// Service contract for local play and tests.
type CorpusRetriever struct {
	docs []Document
	topK int
}

func NewCorpusRetriever(docs []Document) *CorpusRetriever {
	return &CorpusRetriever{docs: docs, topK: defaultTopK}
}

func (r *CorpusRetriever) Query(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	words := tokenize(text)
	type scored struct {
		doc   Document
		score int
	}
	var hits []scored
	for _, d := range r.docs {
		lower := strings.ToLower(d.Text + " " + d.Section)
		score := 0
		for w := range words {
			if strings.Contains(lower, w) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{doc: d, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > r.topK {
		hits = hits[:r.topK]
	}
	res := Result{Analysis: Analysis{IntentType: classifyIntent(text)}}
	for _, h := range hits {
		res.Chunks = append(res.Chunks, Chunk{Text: h.doc.Text, Source: h.doc.Source, Section: h.doc.Section})
	}
	return res, nil
}

func tokenize(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) < 3 {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func classifyIntent(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "who"), strings.HasPrefix(lower, "what"),
		strings.HasPrefix(lower, "where"), strings.HasPrefix(lower, "why"):
		return "lookup"
	case strings.Contains(lower, "attack"), strings.Contains(lower, "cast"),
		strings.Contains(lower, "roll"):
		return "action"
	default:
		return "narrative"
	}
}
