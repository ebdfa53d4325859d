package tools

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
)

func TestRegistryDispatchAndIntrospection(t *testing.T) {
	r := NewRegistry()
	rng := rand.New(rand.NewSource(42))
	RegisterBuiltins(r, rng)

	schemas := r.Schemas()
	if len(schemas) != 3 {
		t.Fatalf("expected 3 builtin schemas, got %d", len(schemas))
	}
	names := r.Names()
	if names[0] != ToolRollDice || names[1] != ToolGenerateCharacter || names[2] != ToolGenerateCampaign {
		t.Fatalf("registration order not preserved: %v", names)
	}

	out, err := r.Execute(context.Background(), ToolRollDice, map[string]interface{}{"notation": "2d6"})
	if err != nil {
		t.Fatalf("roll_dice failed: %v", err)
	}
	var res RollResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if res.Total < 2 || res.Total > 12 {
		t.Fatalf("implausible 2d6 total %d", res.Total)
	}
}

func TestGenerateCharacterCarriesCharacterField(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, rand.New(rand.NewSource(7)))

	out, err := r.Execute(context.Background(), ToolGenerateCharacter, map[string]interface{}{"name": "Kalwyn", "class": "rogue"})
	if err != nil {
		t.Fatalf("generate_character failed: %v", err)
	}
	var payload struct {
		Character Character `json:"character"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if payload.Character.Name != "Kalwyn" || payload.Character.Class != "rogue" {
		t.Fatalf("unexpected character: %+v", payload.Character)
	}
	if len(payload.Character.Stats) != 6 {
		t.Fatalf("expected 6 stats, got %d", len(payload.Character.Stats))
	}
	for stat, v := range payload.Character.Stats {
		if v < 3 || v > 18 {
			t.Fatalf("stat %s=%d outside 3d6 range", stat, v)
		}
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Execute(context.Background(), "open_portal", nil); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}
