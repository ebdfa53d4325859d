package tools

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"loremaster/internal/llm"
)

// MCPSource dials a lore MCP server over stdio and registers its tools in a
// Registry, so the model can consult campaign lore the same way it rolls
// dice. Schemas are declared client-side; the server executes.
type MCPSource struct {
	client  *mcp.Client
	session *mcp.ClientSession
}

func NewMCPSource() *MCPSource {
	return &MCPSource{}
}

// Connect launches the lore MCP server as a subprocess and opens a session.
func (m *MCPSource) Connect(ctx context.Context, serverPath string) error {
	m.client = mcp.NewClient(&mcp.Implementation{
		Name:    "loremaster",
		Version: "1.0.0",
	}, nil)

	cmd := exec.CommandContext(ctx, serverPath)
	cmd.Env = append([]string{}, os.Environ()...)

	session, err := m.client.Connect(ctx, mcp.NewCommandTransport(cmd))
	if err != nil {
		return fmt.Errorf("failed to connect to lore MCP server: %w", err)
	}
	m.session = session
	log.Printf("connected to lore MCP server at %s", serverPath)
	return nil
}

func (m *MCPSource) Close() error {
	if m.session != nil {
		return m.session.Close()
	}
	return nil
}

// RegisterLoreTools adds the lore tools to the registry, backed by the MCP
// session.
func (m *MCPSource) RegisterLoreTools(r *Registry) {
	r.Register(llm.Tool{
		Type: "function",
		Function: llm.Function{
			Name:        "lore_lookup",
			Description: "Looks up campaign lore by topic. Use for questions about places, factions, creatures or history of the setting.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"topic": map[string]interface{}{
						"type":        "string",
						"description": "The topic to look up",
					},
				},
				"required": []string{"topic"},
			},
		},
	}, m.executor("lore_lookup"))

	r.Register(llm.Tool{
		Type: "function",
		Function: llm.Function{
			Name:        "list_lore_sections",
			Description: "Lists the lore sections available for this campaign.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
				"required":   []string{},
			},
		},
	}, m.executor("list_lore_sections"))
}

func (m *MCPSource) executor(name string) Executor {
	return func(ctx context.Context, args map[string]interface{}) (string, error) {
		if m.session == nil {
			return "", fmt.Errorf("lore MCP session not connected")
		}
		result, err := m.session.CallTool(ctx, &mcp.CallToolParams{
			Name:      name,
			Arguments: map[string]any(args),
		})
		if err != nil {
			return "", fmt.Errorf("mcp call %s: %w", name, err)
		}
		var text string
		for _, content := range result.Content {
			if tc, ok := content.(*mcp.TextContent); ok {
				text += tc.Text
			}
		}
		if result.IsError {
			return "", fmt.Errorf("mcp tool %s failed: %s", name, text)
		}
		return text, nil
	}
}
