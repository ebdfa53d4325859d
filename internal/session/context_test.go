package session

import (
	"encoding/json"
	"fmt"
	"testing"

	"loremaster/internal/transcript"
)

func appendTurn(t *testing.T, st *transcript.Store, turn transcript.Turn) {
	t.Helper()
	if _, err := st.Append(turn); err != nil {
		t.Fatalf("append failed: %v", err)
	}
}

func TestCharacterExtractionFromToolResult(t *testing.T) {
	st := transcript.NewStore()
	appendTurn(t, st, transcript.Turn{Role: transcript.RoleUser, Content: "roll me a character"})
	appendTurn(t, st, transcript.Turn{
		Role: transcript.RoleTool,
		ToolResult: &transcript.ToolResult{
			CallID: "call-1",
			Result: json.RawMessage(`{"character":{"name":"Kalwyn","class":"rogue"}}`),
		},
	})
	appendTurn(t, st, transcript.Turn{Role: transcript.RoleAssistant, Content: "Meet Kalwyn."})

	ctx := Build(st, DefaultNarrativeWindow)
	if ctx.Character == "" {
		t.Fatalf("character not extracted")
	}
	var ch map[string]interface{}
	if err := json.Unmarshal([]byte(ctx.Character), &ch); err != nil {
		t.Fatalf("character is not JSON: %v", err)
	}
	if ch["name"] != "Kalwyn" {
		t.Fatalf("wrong character: %v", ch)
	}
}

func TestLatestCharacterWins(t *testing.T) {
	st := transcript.NewStore()
	for _, name := range []string{"Oldwyn", "Newwyn"} {
		appendTurn(t, st, transcript.Turn{
			Role: transcript.RoleTool,
			ToolResult: &transcript.ToolResult{
				CallID: "c",
				Result: json.RawMessage(fmt.Sprintf(`{"character":{"name":%q}}`, name)),
			},
		})
	}
	ctx := Build(st, DefaultNarrativeWindow)
	var ch map[string]interface{}
	if err := json.Unmarshal([]byte(ctx.Character), &ch); err != nil {
		t.Fatal(err)
	}
	if ch["name"] != "Newwyn" {
		t.Fatalf("backward scan should find the most recent character, got %v", ch)
	}
}

func TestCharacterBeyondWindowIsNotFound(t *testing.T) {
	st := transcript.NewStore()
	appendTurn(t, st, transcript.Turn{
		Role: transcript.RoleTool,
		ToolResult: &transcript.ToolResult{
			CallID: "c",
			Result: json.RawMessage(`{"character":{"name":"Forgotten"}}`),
		},
	})
	// Push the character turn out of the window.
	for i := 0; i < DefaultNarrativeWindow; i++ {
		appendTurn(t, st, transcript.Turn{Role: transcript.RoleUser, Content: "chatter"})
	}
	ctx := Build(st, DefaultNarrativeWindow)
	if ctx.Character != "" {
		t.Fatalf("extraction scanned beyond the window: %q", ctx.Character)
	}
}

func TestScenarioExtraction(t *testing.T) {
	st := transcript.NewStore()
	appendTurn(t, st, transcript.Turn{Role: transcript.RoleUser, Content: "You enter the tavern by the docks"})
	appendTurn(t, st, transcript.Turn{Role: transcript.RoleAssistant, Content: "The tavern is loud."})
	appendTurn(t, st, transcript.Turn{Role: transcript.RoleUser, Content: "I order an ale"})

	ctx := Build(st, DefaultNarrativeWindow)
	if ctx.Scenario != "You enter the tavern by the docks" {
		t.Fatalf("scenario not extracted verbatim: %q", ctx.Scenario)
	}
}

func TestScenarioOnlyChecksLastThreeUserTurns(t *testing.T) {
	st := transcript.NewStore()
	appendTurn(t, st, transcript.Turn{Role: transcript.RoleUser, Content: "we are in the dungeon"})
	for i := 0; i < 3; i++ {
		appendTurn(t, st, transcript.Turn{Role: transcript.RoleUser, Content: fmt.Sprintf("filler %d", i)})
	}
	ctx := Build(st, DefaultNarrativeWindow)
	if ctx.Scenario != "" {
		t.Fatalf("scenario scan went past the last 3 user turns: %q", ctx.Scenario)
	}
}

func TestBuildIsBoundedOnLongTranscripts(t *testing.T) {
	st := transcript.NewStore()
	// 10k turns; Build must only ever look at the window it is given.
	for i := 0; i < 10000; i++ {
		appendTurn(t, st, transcript.Turn{Role: transcript.RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}
	ctx := Build(st, DefaultNarrativeWindow)
	if len(ctx.RecentTurns) != DefaultNarrativeWindow {
		t.Fatalf("window not bounded: %d turns", len(ctx.RecentTurns))
	}
}

func TestProviderMessages(t *testing.T) {
	st := transcript.NewStore()
	appendTurn(t, st, transcript.Turn{Role: transcript.RoleUser, Content: "hello"})
	appendTurn(t, st, transcript.Turn{Role: transcript.RoleProgress, Content: "thinking", ProgressStatus: transcript.ProgressStarted})
	appendTurn(t, st, transcript.Turn{Role: transcript.RoleAssistant, Content: "hi"})
	appendTurn(t, st, transcript.Turn{Role: transcript.RoleError, Content: "boom", ErrorDetail: "x"})

	msgs := ProviderMessages(st, "be a gm", DefaultProviderWindow)
	if len(msgs) != 3 {
		t.Fatalf("expected system+user+assistant, got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != "system" || msgs[0].Content != "be a gm" {
		t.Fatalf("system prompt not prepended: %+v", msgs[0])
	}
	for _, m := range msgs[1:] {
		if m.Role == "progress" || m.Role == "error" {
			t.Fatalf("non-conversational role reached the provider: %+v", m)
		}
	}
}

func TestProviderMessagesCapped(t *testing.T) {
	st := transcript.NewStore()
	for i := 0; i < 100; i++ {
		appendTurn(t, st, transcript.Turn{Role: transcript.RoleUser, Content: fmt.Sprintf("%d", i)})
	}
	msgs := ProviderMessages(st, "", 20)
	if len(msgs) != 20 {
		t.Fatalf("provider window not capped: %d", len(msgs))
	}
	if msgs[0].Content != "80" {
		t.Fatalf("window should hold the most recent turns, got first=%q", msgs[0].Content)
	}
}
