// Package telemetry holds the diagnostic event stream emitted during turn
// execution and the correlator that reconstructs, per assistant turn, which
// events belong to it. Events deliberately carry no transcript index; the
// correlation is a best-effort positional reconstruction (see Correlate).
package telemetry

import "time"

type Kind string

const (
	KindRetrieval      Kind = "retrieval"
	KindProviderCall   Kind = "provider-call"
	KindToolInvocation Kind = "tool-invocation"
	KindCost           Kind = "cost"
)

// Chunk mirrors a retrieved lore chunk. Kept local so the package stays a
// leaf the orchestrator can feed from any retriever.
type Chunk struct {
	Text    string `json:"text"`
	Source  string `json:"source"`
	Section string `json:"section"`
}

type RetrievalPayload struct {
	Query  string  `json:"query"`
	Chunks []Chunk `json:"chunks"`
}

type ProviderCallPayload struct {
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	Temperature    float32 `json:"temperature"`
	ToolsAvailable int     `json:"tools_available"`
	Err            string  `json:"error,omitempty"`
}

type ToolInvocationPayload struct {
	CallID    string                 `json:"call_id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Result    string                 `json:"result,omitempty"`
	// Completed marks the second event of a pair: the one carrying the
	// handler's result.
	Completed bool `json:"completed"`
}

type CostPayload struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Amount       float64 `json:"amount"`
}

// Event is a tagged union: exactly the payload matching Kind is non-nil.
type Event struct {
	Kind           Kind                   `json:"kind"`
	Timestamp      time.Time              `json:"timestamp"`
	Retrieval      *RetrievalPayload      `json:"retrieval,omitempty"`
	ProviderCall   *ProviderCallPayload   `json:"provider_call,omitempty"`
	ToolInvocation *ToolInvocationPayload `json:"tool_invocation,omitempty"`
	Cost           *CostPayload           `json:"cost,omitempty"`
}

func NewRetrievalEvent(ts time.Time, p RetrievalPayload) Event {
	return Event{Kind: KindRetrieval, Timestamp: ts, Retrieval: &p}
}

func NewProviderCallEvent(ts time.Time, p ProviderCallPayload) Event {
	return Event{Kind: KindProviderCall, Timestamp: ts, ProviderCall: &p}
}

func NewToolInvocationEvent(ts time.Time, p ToolInvocationPayload) Event {
	return Event{Kind: KindToolInvocation, Timestamp: ts, ToolInvocation: &p}
}

func NewCostEvent(ts time.Time, p CostPayload) Event {
	return Event{Kind: KindCost, Timestamp: ts, Cost: &p}
}
