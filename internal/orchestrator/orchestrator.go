// Package orchestrator drives one assistant turn at a time through the
// agent loop: retrieval, provider call, tool execution, finalize. It is the
// sole writer of both the transcript and the diagnostic event log.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"loremaster/internal/feedback"
	"loremaster/internal/llm"
	"loremaster/internal/retrieval"
	"loremaster/internal/session"
	"loremaster/internal/state"
	"loremaster/internal/telemetry"
	"loremaster/internal/tools"
	"loremaster/internal/transcript"
)

// ErrTurnInFlight is the synchronous rejection a caller gets when a turn is
// already being processed. Submissions are never queued.
var ErrTurnInFlight = errors.New("orchestrator: a turn is already in flight")

// maxToolIterations caps the tool-call loop so a misbehaving model cannot
// spin forever.
const maxToolIterations = 6

// KnowledgeLevel selects whether lore retrieval augments the turn.
type KnowledgeLevel string

const (
	KnowledgeNone KnowledgeLevel = "none"
	KnowledgeLore KnowledgeLevel = "lore"
)

// SubmitOptions qualifies a user submission.
type SubmitOptions struct {
	// InCharacter marks the submission as narrative speech rather than
	// meta/rules discussion.
	InCharacter bool
	// Knowledge enables lore retrieval for in-character turns.
	Knowledge KnowledgeLevel
}

// Progress stage names used on progress turns.
const (
	StageTurn      = "turn"
	StageRetrieval = "retrieval"
	StageProvider  = "provider"
	StageTool      = "tool"
)

// Options wires the orchestrator's collaborators.
type Options struct {
	Store        *transcript.Store
	Events       *telemetry.Log
	Provider     llm.Client
	Settings     llm.Settings
	Factory      *llm.Factory
	Retriever    retrieval.Service // optional
	Tools        *tools.Registry
	State        *state.Store // optional
	SystemPrompt string

	// Cost per 1K tokens used for the cost diagnostic event.
	InputCostPer1K  float64
	OutputCostPer1K float64

	ProviderWindow  int
	NarrativeWindow int

	Now func() time.Time
}

type subscriber struct {
	id int
	fn func(transcript.Turn)
}

type Orchestrator struct {
	store     *transcript.Store
	events    *telemetry.Log
	retriever retrieval.Service
	tools     *tools.Registry
	state     *state.Store
	feedback  *feedback.Annotator

	systemPrompt    string
	inCostPer1K     float64
	outCostPer1K    float64
	providerWindow  int
	narrativeWindow int
	now             func() time.Time

	mu       sync.Mutex
	inFlight bool
	provider llm.Client
	settings llm.Settings
	factory  *llm.Factory

	subMu  sync.Mutex
	subs   []subscriber
	nextID int
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:           opts.Store,
		events:          opts.Events,
		retriever:       opts.Retriever,
		tools:           opts.Tools,
		state:           opts.State,
		feedback:        feedback.NewAnnotator(),
		systemPrompt:    opts.SystemPrompt,
		inCostPer1K:     opts.InputCostPer1K,
		outCostPer1K:    opts.OutputCostPer1K,
		providerWindow:  opts.ProviderWindow,
		narrativeWindow: opts.NarrativeWindow,
		now:             opts.Now,
		provider:        opts.Provider,
		settings:        opts.Settings,
		factory:         opts.Factory,
	}
	if o.store == nil {
		o.store = transcript.NewStore()
	}
	if o.events == nil {
		o.events = telemetry.NewLog()
	}
	if o.tools == nil {
		o.tools = tools.NewRegistry()
	}
	if o.providerWindow <= 0 {
		o.providerWindow = session.DefaultProviderWindow
	}
	if o.narrativeWindow <= 0 {
		o.narrativeWindow = session.DefaultNarrativeWindow
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Submit runs one assistant turn to completion. It returns ErrTurnInFlight
// when another turn is active; turn-fatal failures are represented as data
// (an error turn plus a failed progress turn), not as a returned error, so
// subscribers only ever render what the transcript contains.
func (o *Orchestrator) Submit(ctx context.Context, content string, opts SubmitOptions) error {
	provider, settings, err := o.begin()
	if err != nil {
		return err
	}
	o.run(ctx, provider, settings, content, opts)
	return nil
}

// SubmitAsync reserves the single-flight slot synchronously (a second
// submission is still rejected immediately) and runs the turn on its own
// goroutine. Completion is observable through the progress stream.
func (o *Orchestrator) SubmitAsync(ctx context.Context, content string, opts SubmitOptions) error {
	provider, settings, err := o.begin()
	if err != nil {
		return err
	}
	go o.run(ctx, provider, settings, content, opts)
	return nil
}

func (o *Orchestrator) begin() (llm.Client, llm.Settings, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight {
		return nil, llm.Settings{}, ErrTurnInFlight
	}
	if o.provider == nil {
		return nil, llm.Settings{}, fmt.Errorf("orchestrator: no provider configured")
	}
	o.inFlight = true
	return o.provider, o.settings, nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.inFlight = false
	o.mu.Unlock()
}

// run executes the state machine for one turn. The provider client is
// captured at begin() so a concurrent provider swap never changes a turn
// mid-flight.
func (o *Orchestrator) run(ctx context.Context, provider llm.Client, settings llm.Settings, content string, opts SubmitOptions) {
	defer o.end()

	inChar := opts.InCharacter
	if _, err := o.store.Append(transcript.Turn{
		Role:        transcript.RoleUser,
		Content:     content,
		InCharacter: &inChar,
	}); err != nil {
		log.Printf("failed to append user turn: %v", err)
		return
	}

	o.emitProgress(StageTurn, transcript.ProgressStarted, "thinking")

	// Retrieving. Failure degrades: the turn proceeds unaugmented.
	var chunks []retrieval.Chunk
	if opts.InCharacter && opts.Knowledge == KnowledgeLore && o.retriever != nil {
		o.emitProgress(StageRetrieval, transcript.ProgressInProgress, "consulting lore")
		res, err := o.retriever.Query(ctx, content)
		if err != nil {
			log.Printf("retrieval failed, continuing without lore: %v", err)
		} else {
			chunks = res.Chunks
			o.events.Append(telemetry.NewRetrievalEvent(o.now(), telemetry.RetrievalPayload{
				Query:  content,
				Chunks: toTelemetryChunks(chunks),
			}))
		}
	}

	msgs := session.ProviderMessages(o.store, o.buildSystemPrompt(chunks), o.providerWindow)
	schemas := o.tools.Schemas()

	// Calling-Provider / Executing-Tool loop.
	var resp llm.Response
	var resultData json.RawMessage
	var resultKey string
	for iter := 0; ; iter++ {
		if iter >= maxToolIterations {
			o.fail(fmt.Sprintf("tool-call loop exceeded %d iterations", maxToolIterations))
			return
		}

		o.emitProgress(StageProvider, transcript.ProgressInProgress, "calling "+settings.Provider)
		var err error
		resp, err = provider.GenerateWithTools(ctx, msgs, schemas)
		call := telemetry.ProviderCallPayload{
			Provider:       settings.Provider,
			Model:          settings.Model,
			Temperature:    settings.Temperature,
			ToolsAvailable: len(schemas),
		}
		if err != nil {
			call.Err = err.Error()
			o.events.Append(telemetry.NewProviderCallEvent(o.now(), call))
			o.fail(fmt.Sprintf("provider call failed: %v", err))
			return
		}
		o.events.Append(telemetry.NewProviderCallEvent(o.now(), call))
		o.events.Append(telemetry.NewCostEvent(o.now(), telemetry.CostPayload{
			InputTokens:  resp.PromptTokens,
			OutputTokens: resp.CompletionTokens,
			Amount:       o.costOf(resp),
		}))

		if len(resp.ToolCalls) == 0 {
			break
		}

		// Tool dispatch is sequential: later calls may depend on earlier
		// results already appended to the transcript.
		for _, tc := range resp.ToolCalls {
			result, err := o.dispatchTool(ctx, tc)
			if err != nil {
				o.fail(fmt.Sprintf("tool %s failed: %v", tc.Function.Name, err))
				return
			}
			if key := resultStateKey(tc.Function.Name); key != "" {
				resultData = json.RawMessage(result)
				resultKey = key
			}
			msgs = append(msgs, llm.Message{
				Role:    "system",
				Content: fmt.Sprintf("Tool %s returned: %s", tc.Function.Name, result),
			})
		}
	}

	o.finalize(resp, inChar, resultData, resultKey)
}

// dispatchTool emits the start event, executes the call, emits the paired
// result event and appends the tool turn.
func (o *Orchestrator) dispatchTool(ctx context.Context, tc llm.ToolCall) (string, error) {
	name := tc.Function.Name
	o.emitProgress(StageTool, transcript.ProgressInProgress, "running "+name)
	o.events.Append(telemetry.NewToolInvocationEvent(o.now(), telemetry.ToolInvocationPayload{
		CallID:    tc.ID,
		Name:      name,
		Arguments: tc.Function.Arguments,
	}))

	result, err := o.tools.Execute(ctx, name, tc.Function.Arguments)
	if err != nil {
		o.events.Append(telemetry.NewToolInvocationEvent(o.now(), telemetry.ToolInvocationPayload{
			CallID:    tc.ID,
			Name:      name,
			Result:    fmt.Sprintf("error: %v", err),
			Completed: true,
		}))
		return "", err
	}

	o.events.Append(telemetry.NewToolInvocationEvent(o.now(), telemetry.ToolInvocationPayload{
		CallID:    tc.ID,
		Name:      name,
		Result:    result,
		Completed: true,
	}))

	args, _ := json.Marshal(tc.Function.Arguments)
	if _, err := o.store.Append(transcript.Turn{
		Role:       transcript.RoleTool,
		ToolCalls:  []transcript.ToolCall{{ID: tc.ID, Name: name, Arguments: args}},
		ToolResult: &transcript.ToolResult{CallID: tc.ID, Result: json.RawMessage(result)},
	}); err != nil {
		return "", err
	}
	return result, nil
}

// finalize appends the assistant turn, plus a result turn for structured
// generations, and completes the progress stream.
func (o *Orchestrator) finalize(resp llm.Response, inChar bool, resultData json.RawMessage, resultKey string) {
	if _, err := o.store.Append(transcript.Turn{
		Role:        transcript.RoleAssistant,
		Content:     resp.Content,
		InCharacter: &inChar,
	}); err != nil {
		log.Printf("failed to append assistant turn: %v", err)
	}

	if len(resultData) > 0 {
		if _, err := o.store.Append(transcript.Turn{
			Role:       transcript.RoleResult,
			ResultData: resultData,
		}); err != nil {
			log.Printf("failed to append result turn: %v", err)
		}
		if o.state != nil {
			if err := o.state.Set(resultKey, resultData); err != nil {
				log.Printf("failed to persist %s: %v", resultKey, err)
			}
		}
	}

	o.emitProgress(StageTurn, transcript.ProgressCompleted, "done")
}

// fail ends the turn: an error turn carrying the detail, then a failed
// progress turn. The transcript stays valid and the next turn may start.
func (o *Orchestrator) fail(detail string) {
	log.Printf("turn failed: %s", detail)
	if _, err := o.store.Append(transcript.Turn{
		Role:        transcript.RoleError,
		Content:     "The game master stumbles; try again.",
		ErrorDetail: detail,
	}); err != nil {
		log.Printf("failed to append error turn: %v", err)
	}
	o.emitProgress(StageTurn, transcript.ProgressFailed, detail)
}

// emitProgress appends the progress turn and pushes the identical turn to
// live subscribers. The timestamp is assigned here, before the append, so
// both views carry the same natural key and reconcile via Dedup.
func (o *Orchestrator) emitProgress(ptype string, status transcript.ProgressStatus, content string) {
	t := transcript.Turn{
		Role:           transcript.RoleProgress,
		Content:        content,
		Timestamp:      o.now(),
		ProgressType:   ptype,
		ProgressStatus: status,
	}
	if _, err := o.store.Append(t); err != nil {
		log.Printf("failed to append progress turn: %v", err)
		return
	}
	o.subMu.Lock()
	subs := append([]subscriber(nil), o.subs...)
	o.subMu.Unlock()
	for _, s := range subs {
		s.fn(t)
	}
}

func (o *Orchestrator) buildSystemPrompt(chunks []retrieval.Chunk) string {
	prompt := o.systemPrompt
	sctx := session.Build(o.store, o.narrativeWindow)
	if sctx.Character != "" {
		prompt += "\n\nActive character: " + sctx.Character
	}
	if sctx.Scenario != "" {
		prompt += "\nCurrent scene: " + sctx.Scenario
	}
	for i, c := range chunks {
		if i == 0 {
			prompt += "\n\nRelevant lore:"
		}
		prompt += fmt.Sprintf("\n- [%s / %s] %s", c.Source, c.Section, c.Text)
	}
	return prompt
}

func (o *Orchestrator) costOf(resp llm.Response) float64 {
	return float64(resp.PromptTokens)/1000*o.inCostPer1K +
		float64(resp.CompletionTokens)/1000*o.outCostPer1K
}

func resultStateKey(toolName string) string {
	switch toolName {
	case tools.ToolGenerateCharacter:
		return state.KeyActiveCharacter
	case tools.ToolGenerateCampaign:
		return state.KeyActiveCampaign
	}
	return ""
}

func toTelemetryChunks(chunks []retrieval.Chunk) []telemetry.Chunk {
	out := make([]telemetry.Chunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, telemetry.Chunk{Text: c.Text, Source: c.Source, Section: c.Section})
	}
	return out
}

// SubscribeProgress registers a live progress callback. Callbacks run on the
// turn's goroutine in append order and must not block. The returned func
// unsubscribes.
func (o *Orchestrator) SubscribeProgress(fn func(transcript.Turn)) func() {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	id := o.nextID
	o.nextID++
	o.subs = append(o.subs, subscriber{id: id, fn: fn})
	return func() {
		o.subMu.Lock()
		defer o.subMu.Unlock()
		for i, s := range o.subs {
			if s.id == id {
				o.subs = append(o.subs[:i], o.subs[i+1:]...)
				return
			}
		}
	}
}

// Transcript returns a full ordered copy of the session transcript.
func (o *Orchestrator) Transcript() []transcript.Turn {
	return o.store.All()
}

// Clear discards the transcript, the diagnostic stream and all derived
// state (correlation records, ratings).
func (o *Orchestrator) Clear() {
	o.store.Clear()
	o.events.Clear()
	o.feedback.Clear()
}

// Records recomputes the correlation records from the full event history.
func (o *Orchestrator) Records() []telemetry.Record {
	return telemetry.Correlate(o.events.All(), o.store.All())
}

// Rate attaches a feedback rating to the assistant turn at index.
func (o *Orchestrator) Rate(index int, r feedback.Rating) {
	o.feedback.Set(index, r)
}

// Ratings returns a copy of the current rating map.
func (o *Orchestrator) Ratings() map[int]feedback.Rating {
	return o.feedback.All()
}

// Store exposes the transcript store for persistence helpers (autosave,
// export of serialized transcripts).
func (o *Orchestrator) Store() *transcript.Store {
	return o.store
}

// SwapProvider replaces the active provider client without touching the
// transcript. The in-flight turn, if any, keeps the client it started with.
func (o *Orchestrator) SwapProvider(client llm.Client, settings llm.Settings) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.provider = client
	o.settings = settings
}

// ReloadProvider rebuilds the provider client from fresh settings using the
// configured vendor factory.
func (o *Orchestrator) ReloadProvider(settings llm.Settings) error {
	o.mu.Lock()
	factory := o.factory
	o.mu.Unlock()
	if factory == nil {
		return fmt.Errorf("orchestrator: no provider factory configured")
	}
	client, err := factory.CreateClient(settings)
	if err != nil {
		return fmt.Errorf("orchestrator: reload provider: %w", err)
	}
	o.SwapProvider(client, settings)
	return nil
}
