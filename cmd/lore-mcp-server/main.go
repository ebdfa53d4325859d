// lore-mcp-server exposes campaign lore over MCP stdio so the assistant can
// consult it as a tool.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"loremaster/internal/campaign"
)

// LookupParams are the arguments for lore_lookup.
type LookupParams struct {
	Topic string `json:"topic" mcp:"the topic to look up in the campaign lore"`
}

// ListParams are the arguments for list_lore_sections.
type ListParams struct{}

type loreServer struct {
	camp *campaign.Campaign
}

func (s *loreServer) Lookup(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[LookupParams]) (*mcp.CallToolResultFor[any], error) {
	topic := strings.ToLower(params.Arguments.Topic)
	if topic == "" {
		return &mcp.CallToolResultFor[any]{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "topic is required"}},
		}, nil
	}

	var matches []string
	for _, sec := range s.camp.Lore {
		if strings.Contains(strings.ToLower(sec.Title), topic) ||
			strings.Contains(strings.ToLower(sec.Text), topic) {
			matches = append(matches, fmt.Sprintf("## %s\n%s", sec.Title, sec.Text))
		}
	}
	if len(matches) == 0 {
		return &mcp.CallToolResultFor[any]{
			Content: []mcp.Content{&mcp.TextContent{Text: "No lore found for " + params.Arguments.Topic}},
		}, nil
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: strings.Join(matches, "\n\n")}},
	}, nil
}

func (s *loreServer) ListSections(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[ListParams]) (*mcp.CallToolResultFor[any], error) {
	var titles []string
	for _, sec := range s.camp.Lore {
		titles = append(titles, sec.Title)
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: strings.Join(titles, "\n")}},
	}, nil
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	campaignPath := os.Getenv("CAMPAIGN_FILE_PATH")
	if campaignPath == "" {
		campaignPath = "campaign.yaml"
	}
	camp, err := campaign.Load(campaignPath)
	if err != nil {
		log.Fatalf("failed to load campaign: %v", err)
	}
	log.Printf("serving %d lore sections from %s", len(camp.Lore), campaignPath)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "loremaster-lore-mcp",
		Version: "1.0.0",
	}, nil)

	ls := &loreServer{camp: camp}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lore_lookup",
		Description: "Looks up campaign lore sections matching a topic",
	}, ls.Lookup)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_lore_sections",
		Description: "Lists the lore section titles available for this campaign",
	}, ls.ListSections)

	if err := server.Run(context.Background(), mcp.NewStdioTransport()); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
