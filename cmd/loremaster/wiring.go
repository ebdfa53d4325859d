package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"loremaster/internal/autosave"
	"loremaster/internal/campaign"
	"loremaster/internal/config"
	"loremaster/internal/orchestrator"
	"loremaster/internal/retrieval"
	"loremaster/internal/state"
	"loremaster/internal/tools"
	"loremaster/internal/transcript"
)

// session bundles everything a front needs plus its shutdown hooks.
type session struct {
	orch  *orchestrator.Orchestrator
	saver *autosave.Saver
	close func()
}

// buildSession wires the whole engine from environment config: provider
// client, campaign lore, tool registry (builtins plus optional MCP lore
// tools), persisted state and the restored transcript.
func buildSession(ctx context.Context, cfg *config.Config) (*session, error) {
	settings := cfg.LLMSettings()
	factory := cfg.LLMFactory()
	client, err := factory.CreateClient(settings)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	var retriever retrieval.Service
	systemPrompt := readSystemPrompt(cfg.SystemPromptPath)
	if camp, err := campaign.Load(cfg.CampaignFilePath); err != nil {
		log.Printf("no campaign loaded: %v", err)
	} else {
		retriever = retrieval.NewCorpusRetriever(camp.Documents())
		if camp.SystemPrompt != "" {
			systemPrompt = camp.SystemPrompt
		}
		log.Printf("campaign %q loaded with %d lore sections", camp.Name, len(camp.Lore))
	}

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, rand.New(rand.NewSource(time.Now().UnixNano())))

	var mcpSource *tools.MCPSource
	if cfg.LoreMCPServerPath != "" {
		mcpSource = tools.NewMCPSource()
		if err := mcpSource.Connect(ctx, cfg.LoreMCPServerPath); err != nil {
			log.Printf("lore MCP server unavailable: %v", err)
			mcpSource = nil
		} else {
			mcpSource.RegisterLoreTools(registry)
		}
	}

	var stateStore *state.Store
	if cfg.StateDBPath != "" {
		st, err := state.Open(cfg.StateDBPath)
		if err != nil {
			log.Printf("failed to open state db: %v", err)
		} else {
			stateStore = st
			stateStore.Watch(func(key string) {
				log.Printf("session state updated: %s", key)
			})
		}
	}

	store := transcript.NewStore()
	saver := autosave.New(store, cfg.AutosavePath)
	if err := saver.Restore(); err != nil {
		log.Printf("could not restore transcript: %v", err)
	} else if store.Len() > 0 {
		log.Printf("restored transcript with %d turns", store.Len())
	}

	orch := orchestrator.New(orchestrator.Options{
		Store:        store,
		Provider:     client,
		Settings:     settings,
		Factory:      factory,
		Retriever:    retriever,
		Tools:        registry,
		State:        stateStore,
		SystemPrompt: systemPrompt,
	})

	if err := saver.Start(cfg.AutosaveSpec); err != nil {
		log.Printf("autosave disabled: %v", err)
	}

	return &session{
		orch:  orch,
		saver: saver,
		close: func() {
			saver.Stop()
			if err := saver.Save(); err != nil {
				log.Printf("final autosave failed: %v", err)
			}
			if mcpSource != nil {
				_ = mcpSource.Close()
			}
		},
	}, nil
}

func readSystemPrompt(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("system prompt file not found or unreadable at %s: %v", path, err)
		return ""
	}
	return string(data)
}
