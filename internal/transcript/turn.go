package transcript

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Role identifies who (or what) produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
	RoleProgress  Role = "progress"
	RoleError     Role = "error"
	RoleResult    Role = "result"
)

// ProgressStatus is the lifecycle status carried by progress turns.
type ProgressStatus string

const (
	ProgressStarted    ProgressStatus = "started"
	ProgressInProgress ProgressStatus = "in-progress"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressFailed     ProgressStatus = "failed"
)

// ToolCall is one tool-execution request carried by an assistant turn.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResult ties a tool turn back to the assistant turn that requested it.
type ToolResult struct {
	CallID string          `json:"call_id"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Turn is one immutable entry in the session transcript.
// InCharacter is tri-state: nil means unspecified.
type Turn struct {
	Role           Role            `json:"role"`
	Content        string          `json:"content,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	InCharacter    *bool           `json:"in_character,omitempty"`
	ToolCalls      []ToolCall      `json:"tool_calls,omitempty"`
	ToolResult     *ToolResult     `json:"tool_result,omitempty"`
	ProgressType   string          `json:"progress_type,omitempty"`
	ProgressStatus ProgressStatus  `json:"progress_status,omitempty"`
	ResultData     json.RawMessage `json:"result_data,omitempty"`
	ErrorDetail    string          `json:"error_detail,omitempty"`
}

// Key is the natural key used for duplicate suppression when a push stream
// and a transcript re-read surface the same logical turn.
func (t Turn) Key() string {
	return string(t.Role) + "\x00" + strconv.FormatInt(t.Timestamp.UnixNano(), 10) + "\x00" + t.Content
}

func (t Turn) validate() error {
	switch t.Role {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool, RoleProgress, RoleError, RoleResult:
		return nil
	case "":
		return fmt.Errorf("%w: missing role", ErrMalformedTurn)
	default:
		return fmt.Errorf("%w: unknown role %q", ErrMalformedTurn, t.Role)
	}
}

// clone returns a deep copy so that stored turns can never be mutated
// through slices handed to callers.
func (t Turn) clone() Turn {
	out := t
	if t.InCharacter != nil {
		v := *t.InCharacter
		out.InCharacter = &v
	}
	if t.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(t.ToolCalls))
		for i, tc := range t.ToolCalls {
			out.ToolCalls[i] = tc
			out.ToolCalls[i].Arguments = append(json.RawMessage(nil), tc.Arguments...)
		}
	}
	if t.ToolResult != nil {
		tr := *t.ToolResult
		tr.Result = append(json.RawMessage(nil), t.ToolResult.Result...)
		out.ToolResult = &tr
	}
	if t.ResultData != nil {
		out.ResultData = append(json.RawMessage(nil), t.ResultData...)
	}
	return out
}

// Bool is a helper for the tri-state InCharacter field.
func Bool(v bool) *bool { return &v }

// Dedup drops turns whose natural key was already seen, keeping the first
// occurrence and preserving order. Used by subscribers reconciling the push
// stream against a transcript re-read.
func Dedup(turns []Turn) []Turn {
	seen := make(map[string]struct{}, len(turns))
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		k := t.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}
