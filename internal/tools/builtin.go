package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"loremaster/internal/llm"
)

// Names of the built-in tools. The orchestrator treats the generator tools
// specially: their output becomes a result turn and is persisted as the
// active character/campaign.
const (
	ToolRollDice          = "roll_dice"
	ToolGenerateCharacter = "generate_character"
	ToolGenerateCampaign  = "generate_campaign"
)

// Character is the sheet produced by generate_character.
type Character struct {
	Name  string         `json:"name"`
	Class string         `json:"class"`
	Level int            `json:"level"`
	Stats map[string]int `json:"stats"`
}

// Campaign is the outline produced by generate_campaign.
type Campaign struct {
	Title   string   `json:"title"`
	Setting string   `json:"setting"`
	Hooks   []string `json:"hooks"`
}

var statNames = []string{"str", "dex", "con", "int", "wis", "cha"}

var defaultClasses = []string{"fighter", "wizard", "rogue", "cleric", "ranger", "bard"}

// RegisterBuiltins wires the built-in game tools into the registry. The rng
// is injected so tests can make rolls deterministic.
func RegisterBuiltins(r *Registry, rng *rand.Rand) {
	r.Register(llm.Tool{
		Type: "function",
		Function: llm.Function{
			Name:        ToolRollDice,
			Description: "Rolls dice using standard notation (e.g. 2d6+1, d20). Use whenever the rules call for a roll.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"notation": map[string]interface{}{
						"type":        "string",
						"description": "Dice notation such as 2d6+1 or d20",
					},
					"reason": map[string]interface{}{
						"type":        "string",
						"description": "What the roll is for (optional)",
					},
				},
				"required": []string{"notation"},
			},
		},
	}, func(ctx context.Context, args map[string]interface{}) (string, error) {
		notation, _ := args["notation"].(string)
		if notation == "" {
			return "", fmt.Errorf("roll_dice: notation is required")
		}
		res, err := Roll(rng, notation)
		if err != nil {
			return "", fmt.Errorf("roll_dice: %w", err)
		}
		return marshal(res)
	})

	r.Register(llm.Tool{
		Type: "function",
		Function: llm.Function{
			Name:        ToolGenerateCharacter,
			Description: "Generates a new player character sheet with rolled stats. Use when the user asks for a character.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Character name; a random one is picked if omitted",
					},
					"class": map[string]interface{}{
						"type":        "string",
						"description": "Character class (fighter, wizard, rogue, ...)",
					},
				},
				"required": []string{},
			},
		},
	}, func(ctx context.Context, args map[string]interface{}) (string, error) {
		name, _ := args["name"].(string)
		if name == "" {
			name = randomName(rng)
		}
		class, _ := args["class"].(string)
		if class == "" {
			class = defaultClasses[rng.Intn(len(defaultClasses))]
		}
		ch := Character{Name: name, Class: class, Level: 1, Stats: map[string]int{}}
		for _, s := range statNames {
			roll, err := Roll(rng, "3d6")
			if err != nil {
				return "", err
			}
			ch.Stats[s] = roll.Total
		}
		// The "character" key is what context extraction looks for.
		return marshal(map[string]interface{}{"character": ch})
	})

	r.Register(llm.Tool{
		Type: "function",
		Function: llm.Function{
			Name:        ToolGenerateCampaign,
			Description: "Generates a campaign outline: title, setting and adventure hooks. Use when the user asks to start a new campaign.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"setting": map[string]interface{}{
						"type":        "string",
						"description": "Desired setting or theme",
					},
				},
				"required": []string{},
			},
		},
	}, func(ctx context.Context, args map[string]interface{}) (string, error) {
		setting, _ := args["setting"].(string)
		if setting == "" {
			setting = "a rain-soaked port city ruled by rival guilds"
		}
		c := Campaign{
			Title:   fmt.Sprintf("The %s Ledger", []string{"Iron", "Ashen", "Gilded", "Hollow"}[rng.Intn(4)]),
			Setting: setting,
			Hooks: []string{
				"a smuggler's manifest names someone the party trusts",
				"the harbormaster pays in coin that vanishes by dawn",
				"something below the docks answers when the bells ring",
			},
		}
		return marshal(map[string]interface{}{"campaign": c})
	})
}

func marshal(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(b), nil
}

var nameParts = [][]string{
	{"Bre", "Kal", "Mor", "Sera", "Tho", "Vex"},
	{"gan", "dra", "wyn", "rik", "lis", "mund"},
}

func randomName(rng *rand.Rand) string {
	return nameParts[0][rng.Intn(len(nameParts[0]))] + nameParts[1][rng.Intn(len(nameParts[1]))]
}
