// Package export re-serializes a finished transcript into interchange
// encodings for downstream reuse (fine-tuning corpora, chat tooling).
// Every transform is pure and total over well-formed transcripts, and each
// encoder has a decoder that round-trips the exported fields.
package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loremaster/internal/feedback"
	"loremaster/internal/transcript"
)

type Format string

const (
	FormatPlainPairs    Format = "plain-pairs"
	FormatFilteredPairs Format = "filtered-pairs"
	FormatThreaded      Format = "threaded"
	FormatDialoguePairs Format = "dialogue-pairs"
)

// ErrUnknownFormat is returned for format names outside the fixed set.
var ErrUnknownFormat = errors.New("export: unknown format")

// Formats lists the supported format names.
func Formats() []Format {
	return []Format{FormatPlainPairs, FormatFilteredPairs, FormatThreaded, FormatDialoguePairs}
}

// Encode renders the transcript in the named format. Ratings are only
// consulted by FormatFilteredPairs and may be nil otherwise.
func Encode(f Format, turns []transcript.Turn, ratings map[int]feedback.Rating) ([]byte, error) {
	switch f {
	case FormatPlainPairs:
		return encodePairs(PlainPairs(turns))
	case FormatFilteredPairs:
		return encodePairs(FilteredPairs(turns, ratings))
	case FormatThreaded:
		return json.MarshalIndent(Threaded(turns), "", "  ")
	case FormatDialoguePairs:
		return encodeDialogue(DialoguePairs(turns))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
}

// PairMessage is the flat {role, content} shape of the pair exports.
type PairMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PlainPairs flattens the transcript to {role, content}, omitting progress,
// error and result turns.
func PlainPairs(turns []transcript.Turn) []PairMessage {
	out := []PairMessage{}
	for _, t := range turns {
		switch t.Role {
		case transcript.RoleProgress, transcript.RoleError, transcript.RoleResult:
			continue
		}
		out = append(out, PairMessage{Role: string(t.Role), Content: t.Content})
	}
	return out
}

// FilteredPairs keeps only assistant turns carrying a positive rating, each
// paired with the nearest preceding user turn. Unrated and negatively rated
// assistant turns are dropped along with their user turn.
func FilteredPairs(turns []transcript.Turn, ratings map[int]feedback.Rating) []PairMessage {
	out := []PairMessage{}
	for i, t := range turns {
		if t.Role != transcript.RoleAssistant || ratings[i] != feedback.RatingPositive {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if turns[j].Role == transcript.RoleUser {
				out = append(out, PairMessage{Role: string(transcript.RoleUser), Content: turns[j].Content})
				break
			}
		}
		out = append(out, PairMessage{Role: string(transcript.RoleAssistant), Content: t.Content})
	}
	return out
}

func encodePairs(pairs []PairMessage) ([]byte, error) {
	return json.MarshalIndent(pairs, "", "  ")
}

// DecodePairs reverses encodePairs for both pair formats.
func DecodePairs(blob []byte) ([]PairMessage, error) {
	var out []PairMessage
	if err := json.Unmarshal(blob, &out); err != nil {
		return nil, fmt.Errorf("export: decode pairs: %w", err)
	}
	return out, nil
}

// Thread is the threaded form: the whole single-session transcript grouped
// under one synthetic thread id.
type Thread struct {
	ThreadID string          `json:"thread_id"`
	Messages []ThreadMessage `json:"messages"`
}

type ThreadMessage struct {
	Index     int       `json:"index"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Threaded groups the transcript into a single thread with ordered message
// objects.
func Threaded(turns []transcript.Turn) Thread {
	th := Thread{ThreadID: uuid.NewString(), Messages: []ThreadMessage{}}
	for i, t := range turns {
		th.Messages = append(th.Messages, ThreadMessage{
			Index:     i,
			Role:      string(t.Role),
			Content:   t.Content,
			Timestamp: t.Timestamp,
		})
	}
	return th
}

// DecodeThreaded reverses the threaded encoding.
func DecodeThreaded(blob []byte) (Thread, error) {
	var th Thread
	if err := json.Unmarshal(blob, &th); err != nil {
		return Thread{}, fmt.Errorf("export: decode threaded: %w", err)
	}
	return th, nil
}

// DialogueLine is one speaker-tagged line of the dialogue-pairs form, the
// shape third-party chat-corpus tooling expects.
type DialogueLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

const (
	SpeakerPlayer = "player"
	SpeakerGM     = "gm"
)

// DialoguePairs emits alternating speaker-tagged user/assistant turns.
func DialoguePairs(turns []transcript.Turn) []DialogueLine {
	out := []DialogueLine{}
	for _, t := range turns {
		switch t.Role {
		case transcript.RoleUser:
			out = append(out, DialogueLine{Speaker: SpeakerPlayer, Text: t.Content})
		case transcript.RoleAssistant:
			out = append(out, DialogueLine{Speaker: SpeakerGM, Text: t.Content})
		}
	}
	return out
}

func encodeDialogue(lines []DialogueLine) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, l := range lines {
		if err := enc.Encode(l); err != nil {
			return nil, fmt.Errorf("export: encode dialogue: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeDialogue reverses the JSONL dialogue encoding.
func DecodeDialogue(blob []byte) ([]DialogueLine, error) {
	var out []DialogueLine
	s := bufio.NewScanner(bytes.NewReader(blob))
	s.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	for s.Scan() {
		line := s.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var l DialogueLine
		if err := json.Unmarshal(line, &l); err != nil {
			return nil, fmt.Errorf("export: decode dialogue: %w", err)
		}
		out = append(out, l)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("export: decode dialogue: %w", err)
	}
	return out, nil
}
