package telemetry

import (
	"sort"

	"loremaster/internal/transcript"
)

// ToolCallRecord is one tool invocation reconstructed from its start/result
// event pair.
type ToolCallRecord struct {
	CallID    string                 `json:"call_id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Result    string                 `json:"result,omitempty"`
	Completed bool                   `json:"completed"`
}

// Record aggregates the diagnostics believed to belong to one assistant
// transcript index. It is advisory: a best-effort reconstruction, never
// authoritative.
type Record struct {
	TurnIndex    int              `json:"turn_index"`
	Query        string           `json:"query,omitempty"`
	RAGChunks    int              `json:"rag_chunks"`
	Chunks       []Chunk          `json:"chunks,omitempty"`
	Provider     string           `json:"provider,omitempty"`
	Model        string           `json:"model,omitempty"`
	Temperature  float32          `json:"temperature,omitempty"`
	ProviderErr  string           `json:"provider_error,omitempty"`
	InputTokens  int              `json:"input_tokens"`
	OutputTokens int              `json:"output_tokens"`
	Cost         float64          `json:"cost"`
	HasUsage     bool             `json:"has_usage"`
	ToolCalls    []ToolCallRecord `json:"tool_calls"`
}

// Correlate rebuilds all records from the full event history and the current
// transcript. Events carry no transcript index, so the target of each
// provider-call is inferred positionally: the first assistant index not yet
// claimed by an earlier record, or the index the next assistant turn will
// occupy when diagnostics ran ahead of the Finalizing append. A provider
// call separated from the previous one only by tool invocations is a
// continuation of the same turn's agent loop and reuses that record rather
// than claiming a fresh index. A held retrieval event attaches to the next
// provider-call's target; tool-invocation and cost events attach to the most
// recent provider target. The function is pure: running it twice over the
// same inputs yields identical results.
func Correlate(events []Event, turns []transcript.Turn) []Record {
	var assistantIdx []int
	for i, t := range turns {
		if t.Role == transcript.RoleAssistant {
			assistantIdx = append(assistantIdx, i)
		}
	}

	records := make(map[int]*Record)
	claimed := 0      // count of assistant indices already bound to a record
	overflow := 0     // provider calls past the last appended assistant turn
	toolSeen := false // a tool ran since the last provider call
	var pending *RetrievalPayload
	var current *Record

	for _, e := range events {
		switch e.Kind {
		case KindRetrieval:
			p := *e.Retrieval
			pending = &p

		case KindProviderCall:
			// Tool invocations between two provider calls mean the second
			// call is the same turn's loop feeding results back; a pending
			// retrieval always marks a new turn.
			rec := current
			if rec == nil || !toolSeen || pending != nil {
				var target int
				if claimed < len(assistantIdx) {
					target = assistantIdx[claimed]
					claimed++
				} else {
					target = len(turns) + overflow
					overflow++
				}
				var ok bool
				rec, ok = records[target]
				if !ok {
					rec = &Record{TurnIndex: target, ToolCalls: []ToolCallRecord{}}
					records[target] = rec
				}
			}
			toolSeen = false
			rec.Provider = e.ProviderCall.Provider
			rec.Model = e.ProviderCall.Model
			rec.Temperature = e.ProviderCall.Temperature
			if e.ProviderCall.Err != "" {
				rec.ProviderErr = e.ProviderCall.Err
			}
			if pending != nil {
				rec.Query = pending.Query
				rec.Chunks = append(rec.Chunks, pending.Chunks...)
				rec.RAGChunks = len(rec.Chunks)
				pending = nil
			}
			current = rec

		case KindToolInvocation:
			if current == nil {
				continue // no anchor yet; nothing to attach to
			}
			toolSeen = true
			p := e.ToolInvocation
			if merged := mergeToolResult(current, p); merged {
				continue
			}
			current.ToolCalls = append(current.ToolCalls, ToolCallRecord{
				CallID:    p.CallID,
				Name:      p.Name,
				Arguments: p.Arguments,
				Result:    p.Result,
				Completed: p.Completed,
			})

		case KindCost:
			if current == nil {
				continue
			}
			current.InputTokens += e.Cost.InputTokens
			current.OutputTokens += e.Cost.OutputTokens
			current.Cost += e.Cost.Amount
			current.HasUsage = true
		}
	}

	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TurnIndex < out[j].TurnIndex })
	return out
}

// mergeToolResult folds a result-bearing invocation event into the earlier
// entry it completes, matched by call id or, failing that, by name over an
// entry still lacking a result.
func mergeToolResult(rec *Record, p *ToolInvocationPayload) bool {
	if !p.Completed {
		return false
	}
	for i := range rec.ToolCalls {
		tc := &rec.ToolCalls[i]
		if tc.Completed {
			continue
		}
		if (p.CallID != "" && tc.CallID == p.CallID) || (p.CallID == "" && tc.Name == p.Name) {
			tc.Result = p.Result
			tc.Completed = true
			return true
		}
	}
	return false
}

// Correlator binds a log and a store so callers can ask for the current
// records without threading both around.
type Correlator struct {
	log   *Log
	store *transcript.Store
}

func NewCorrelator(log *Log, store *transcript.Store) *Correlator {
	return &Correlator{log: log, store: store}
}

// Records recomputes all correlation records from scratch. Safe to call at
// any point mid-session; a subscriber attaching late sees the same aggregate
// as one that watched from the start.
func (c *Correlator) Records() []Record {
	return Correlate(c.log.All(), c.store.All())
}
