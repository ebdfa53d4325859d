// Package session derives a bounded view of the transcript for prompting:
// a recent-turn window plus the latest known character and scene.
package session

import (
	"encoding/json"
	"strings"

	"loremaster/internal/llm"
	"loremaster/internal/transcript"
)

const (
	// DefaultNarrativeWindow bounds character/scenario extraction.
	DefaultNarrativeWindow = 10
	// DefaultProviderWindow bounds the provider-facing message list; this is
	// the only place context size is deliberately capped to control
	// downstream provider cost.
	DefaultProviderWindow = 20

	// scenarioScan is how many trailing user turns are checked for a scene
	// description.
	scenarioScan = 3
)

// sceneKeywords mark a user turn as a scene description. Matching is
// case-insensitive substring.
var sceneKeywords = []string{
	"you are in", "you arrive", "you enter", "we are in",
	"the scene", "the room", "the party",
	"tavern", "dungeon", "forest", "alley", "castle", "cavern", "village",
}

// Context is recomputed on every append and never persisted independently
// of the transcript it was derived from.
type Context struct {
	RecentTurns []transcript.Turn
	// Character is the latest character sheet found in the window, as a JSON
	// string; empty when none was found.
	Character string
	// Scenario is the most recent scene-describing user turn, verbatim;
	// empty when none was found.
	Scenario string
}

// Build derives a Context from the last window turns of the store. Both
// extractions scan only the window, never the full transcript, so cost stays
// bounded as the session grows.
func Build(st *transcript.Store, window int) Context {
	if window <= 0 {
		window = DefaultNarrativeWindow
	}
	recent := st.Slice(window)
	return Context{
		RecentTurns: recent,
		Character:   extractCharacter(recent),
		Scenario:    extractScenario(recent),
	}
}

// extractCharacter scans backward; the first assistant or tool turn whose
// tool payload carries a "character" field wins.
func extractCharacter(turns []transcript.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		switch t.Role {
		case transcript.RoleAssistant:
			for _, tc := range t.ToolCalls {
				if c := characterField(tc.Arguments); c != "" {
					return c
				}
			}
		case transcript.RoleTool:
			if t.ToolResult != nil {
				if c := characterField(t.ToolResult.Result); c != "" {
					return c
				}
			}
		}
	}
	return ""
}

func characterField(blob json.RawMessage) string {
	if len(blob) == 0 {
		return ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(blob, &m); err != nil {
		return ""
	}
	raw, ok := m["character"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// extractScenario checks the last scenarioScan user turns, most recent
// first, for a scene-indicating keyword and returns the match verbatim.
func extractScenario(turns []transcript.Turn) string {
	seen := 0
	for i := len(turns) - 1; i >= 0 && seen < scenarioScan; i-- {
		t := turns[i]
		if t.Role != transcript.RoleUser {
			continue
		}
		seen++
		lower := strings.ToLower(t.Content)
		for _, kw := range sceneKeywords {
			if strings.Contains(lower, kw) {
				return t.Content
			}
		}
	}
	return ""
}

// ProviderMessages builds the provider-facing message list: an optional
// system turn followed by the last n conversational turns. Progress, error
// and result turns never reach the provider.
func ProviderMessages(st *transcript.Store, systemPrompt string, n int) []llm.Message {
	if n <= 0 {
		n = DefaultProviderWindow
	}
	var out []llm.Message
	if systemPrompt != "" {
		out = append(out, llm.Message{Role: "system", Content: systemPrompt})
	}
	for _, t := range st.Slice(n) {
		switch t.Role {
		case transcript.RoleUser, transcript.RoleAssistant, transcript.RoleSystem:
			if t.Content == "" {
				continue
			}
			out = append(out, llm.Message{Role: string(t.Role), Content: t.Content})
		case transcript.RoleTool:
			if t.ToolResult == nil {
				continue
			}
			out = append(out, llm.Message{Role: "system", Content: "Tool result: " + string(t.ToolResult.Result)})
		}
	}
	return out
}
