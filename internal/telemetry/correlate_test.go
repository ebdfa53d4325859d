package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loremaster/internal/transcript"
)

func ts(sec int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
}

func turn(role transcript.Role, content string) transcript.Turn {
	return transcript.Turn{Role: role, Content: content, Timestamp: ts(0)}
}

func TestCorrelationUnderRace(t *testing.T) {
	// Diagnostics are emitted before the assistant turn is appended, the
	// common case, since Finalizing appends last.
	events := []Event{
		NewRetrievalEvent(ts(1), RetrievalPayload{
			Query: "I search the alley",
			Chunks: []Chunk{
				{Text: "a", Source: "c", Section: "s1"},
				{Text: "b", Source: "c", Section: "s2"},
				{Text: "c", Source: "c", Section: "s3"},
			},
		}),
		NewProviderCallEvent(ts(2), ProviderCallPayload{Provider: "openai", Model: "gpt-4o-mini", Temperature: 0.8}),
		NewCostEvent(ts(3), CostPayload{InputTokens: 120, OutputTokens: 40, Amount: 0.002}),
	}
	turns := []transcript.Turn{
		turn(transcript.RoleUser, "I search the alley"),
		turn(transcript.RoleProgress, "thinking"),
		turn(transcript.RoleAssistant, "You find a discarded talisman."),
		turn(transcript.RoleProgress, "done"),
	}

	records := Correlate(events, turns)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, 2, rec.TurnIndex, "record must land on the assistant turn's final index")
	assert.Equal(t, 3, rec.RAGChunks)
	assert.Equal(t, "openai", rec.Provider)
	assert.Equal(t, "gpt-4o-mini", rec.Model)
	assert.True(t, rec.HasUsage)
	assert.Equal(t, 120, rec.InputTokens)
	assert.Equal(t, 40, rec.OutputTokens)
	assert.InDelta(t, 0.002, rec.Cost, 1e-9)
	assert.Empty(t, rec.ToolCalls)
}

func TestProviderCallBeforeAnyAssistantTurn(t *testing.T) {
	// Only the user turn exists when the provider-call event arrives: the
	// target is the transcript length at that instant, i.e. the index the
	// next assistant turn will occupy.
	events := []Event{
		NewProviderCallEvent(ts(1), ProviderCallPayload{Provider: "openai", Model: "m"}),
	}
	turns := []transcript.Turn{turn(transcript.RoleUser, "hello")}

	records := Correlate(events, turns)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].TurnIndex)
}

func TestRetrievalHeldUntilNextProviderCall(t *testing.T) {
	events := []Event{
		NewRetrievalEvent(ts(1), RetrievalPayload{Query: "q", Chunks: []Chunk{{Text: "x"}}}),
		NewProviderCallEvent(ts(2), ProviderCallPayload{Provider: "p", Model: "m"}),
		NewProviderCallEvent(ts(3), ProviderCallPayload{Provider: "p", Model: "m"}),
	}
	turns := []transcript.Turn{
		turn(transcript.RoleAssistant, "first"),
		turn(transcript.RoleAssistant, "second"),
	}

	records := Correlate(events, turns)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].RAGChunks, "retrieval merges into the first provider call's target")
	assert.Equal(t, "q", records[0].Query)
	assert.Zero(t, records[1].RAGChunks, "pending slot must be cleared after the merge")
}

func TestToolInvocationPairMerging(t *testing.T) {
	events := []Event{
		NewProviderCallEvent(ts(1), ProviderCallPayload{Provider: "p", Model: "m"}),
		NewToolInvocationEvent(ts(2), ToolInvocationPayload{
			CallID: "call-1", Name: "roll_dice",
			Arguments: map[string]interface{}{"notation": "2d6"},
		}),
		NewToolInvocationEvent(ts(3), ToolInvocationPayload{
			CallID: "call-1", Name: "roll_dice",
			Result: `{"total":9}`, Completed: true,
		}),
	}
	turns := []transcript.Turn{turn(transcript.RoleAssistant, "rolled")}

	records := Correlate(events, turns)
	require.Len(t, records, 1)
	require.Len(t, records[0].ToolCalls, 1, "result event must merge, not append")
	tc := records[0].ToolCalls[0]
	assert.Equal(t, "roll_dice", tc.Name)
	assert.Equal(t, `{"total":9}`, tc.Result)
	assert.True(t, tc.Completed)
	assert.Equal(t, "2d6", tc.Arguments["notation"])
}

func TestToolAndCostAttachToLatestProviderTarget(t *testing.T) {
	events := []Event{
		NewProviderCallEvent(ts(1), ProviderCallPayload{Provider: "p", Model: "m"}),
		NewCostEvent(ts(2), CostPayload{InputTokens: 10, OutputTokens: 5, Amount: 0.001}),
		NewProviderCallEvent(ts(3), ProviderCallPayload{Provider: "p", Model: "m"}),
		NewToolInvocationEvent(ts(4), ToolInvocationPayload{CallID: "c2", Name: "lore_lookup"}),
		NewCostEvent(ts(5), CostPayload{InputTokens: 20, OutputTokens: 8, Amount: 0.003}),
	}
	turns := []transcript.Turn{
		turn(transcript.RoleAssistant, "first"),
		turn(transcript.RoleAssistant, "second"),
	}

	records := Correlate(events, turns)
	require.Len(t, records, 2)
	assert.Equal(t, 10, records[0].InputTokens)
	assert.Empty(t, records[0].ToolCalls)
	assert.Equal(t, 20, records[1].InputTokens)
	require.Len(t, records[1].ToolCalls, 1)
	assert.Equal(t, "lore_lookup", records[1].ToolCalls[0].Name)
}

func TestToolLoopSharesOneRecord(t *testing.T) {
	// Two provider calls separated only by a tool invocation pair are one
	// agent loop for a single assistant turn: they must share one record,
	// sitting at the real assistant index, with usage accumulated.
	events := []Event{
		NewProviderCallEvent(ts(1), ProviderCallPayload{Provider: "p", Model: "m"}),
		NewCostEvent(ts(2), CostPayload{InputTokens: 100, OutputTokens: 10, Amount: 0.001}),
		NewToolInvocationEvent(ts(3), ToolInvocationPayload{CallID: "call-1", Name: "roll_dice"}),
		NewToolInvocationEvent(ts(4), ToolInvocationPayload{CallID: "call-1", Name: "roll_dice", Result: `{"total":14}`, Completed: true}),
		NewProviderCallEvent(ts(5), ProviderCallPayload{Provider: "p", Model: "m"}),
		NewCostEvent(ts(6), CostPayload{InputTokens: 140, OutputTokens: 20, Amount: 0.002}),
	}
	turns := []transcript.Turn{
		turn(transcript.RoleUser, "I sneak past"),
		turn(transcript.RoleProgress, "thinking"),
		turn(transcript.RoleTool, ""),
		turn(transcript.RoleAssistant, "You slip past the guard."),
		turn(transcript.RoleProgress, "done"),
	}

	records := Correlate(events, turns)
	require.Len(t, records, 1, "a tool loop must not mint a phantom record")
	rec := records[0]
	assert.Equal(t, 3, rec.TurnIndex)
	assert.Equal(t, 240, rec.InputTokens)
	assert.Equal(t, 30, rec.OutputTokens)
	assert.InDelta(t, 0.003, rec.Cost, 1e-9)
	require.Len(t, rec.ToolCalls, 1)
	assert.True(t, rec.ToolCalls[0].Completed)
}

func TestLoopRecordDoesNotStealNextTurnsIndex(t *testing.T) {
	// After a tool-loop turn, the next session turn's provider call must
	// claim the second assistant index, not cascade past it.
	events := []Event{
		NewProviderCallEvent(ts(1), ProviderCallPayload{Provider: "p", Model: "m"}),
		NewToolInvocationEvent(ts(2), ToolInvocationPayload{CallID: "c", Name: "n"}),
		NewProviderCallEvent(ts(3), ProviderCallPayload{Provider: "p", Model: "m"}),
		NewRetrievalEvent(ts(4), RetrievalPayload{Query: "next", Chunks: []Chunk{{Text: "x"}}}),
		NewProviderCallEvent(ts(5), ProviderCallPayload{Provider: "p", Model: "m2"}),
	}
	turns := []transcript.Turn{
		turn(transcript.RoleAssistant, "first"),
		turn(transcript.RoleAssistant, "second"),
	}

	records := Correlate(events, turns)
	require.Len(t, records, 2)
	assert.Equal(t, 0, records[0].TurnIndex)
	assert.Equal(t, 1, records[1].TurnIndex)
	assert.Equal(t, "next", records[1].Query)
	assert.Equal(t, "m2", records[1].Model)
}

func TestCostEventsAccumulateOnTheirTarget(t *testing.T) {
	events := []Event{
		NewProviderCallEvent(ts(1), ProviderCallPayload{Provider: "p", Model: "m"}),
		NewCostEvent(ts(2), CostPayload{InputTokens: 10, OutputTokens: 2, Amount: 0.001}),
		NewCostEvent(ts(3), CostPayload{InputTokens: 12, OutputTokens: 3, Amount: 0.001}),
	}
	turns := []transcript.Turn{turn(transcript.RoleAssistant, "a")}

	records := Correlate(events, turns)
	require.Len(t, records, 1)
	assert.Equal(t, 22, records[0].InputTokens)
	assert.Equal(t, 5, records[0].OutputTokens)
	assert.InDelta(t, 0.002, records[0].Cost, 1e-9)
}

func TestIdempotentRecompute(t *testing.T) {
	events := []Event{
		NewRetrievalEvent(ts(1), RetrievalPayload{Query: "q", Chunks: []Chunk{{Text: "x"}}}),
		NewProviderCallEvent(ts(2), ProviderCallPayload{Provider: "p", Model: "m"}),
		NewToolInvocationEvent(ts(3), ToolInvocationPayload{CallID: "c", Name: "n"}),
		NewToolInvocationEvent(ts(4), ToolInvocationPayload{CallID: "c", Name: "n", Result: "r", Completed: true}),
		NewCostEvent(ts(5), CostPayload{InputTokens: 1, OutputTokens: 1, Amount: 0.1}),
	}
	turns := []transcript.Turn{
		turn(transcript.RoleUser, "u"),
		turn(transcript.RoleAssistant, "a"),
	}

	first := Correlate(events, turns)
	second := Correlate(events, turns)
	assert.Equal(t, first, second)
}

func TestEventsWithoutAnchorAreSkipped(t *testing.T) {
	events := []Event{
		NewToolInvocationEvent(ts(1), ToolInvocationPayload{CallID: "c", Name: "n"}),
		NewCostEvent(ts(2), CostPayload{InputTokens: 9}),
	}
	records := Correlate(events, nil)
	assert.Empty(t, records)
}

func TestCorrelatorReadsLiveLogAndStore(t *testing.T) {
	log := NewLog()
	store := transcript.NewStore()
	c := NewCorrelator(log, store)

	log.Append(NewProviderCallEvent(ts(1), ProviderCallPayload{Provider: "p", Model: "m"}))
	require.Empty(t, Correlate(nil, nil))

	// Mid-session attach: record exists even before the assistant append,
	// pointing at the next expected index.
	records := c.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].TurnIndex)

	_, err := store.Append(transcript.Turn{Role: transcript.RoleAssistant, Content: "a"})
	require.NoError(t, err)
	records = c.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].TurnIndex)

	log.Clear()
	assert.Empty(t, c.Records(), "clearing diagnostics invalidates all records")
}
