package orchestrator

import (
	"fmt"

	"loremaster/internal/config"
)

// ReloadProviderFromEnv re-reads provider credentials and model settings
// from the host environment and swaps the active provider client. The
// transcript is untouched.
func (o *Orchestrator) ReloadProviderFromEnv() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("orchestrator: reload from environment: %w", err)
	}
	factory := cfg.LLMFactory()
	settings := cfg.LLMSettings()
	client, err := factory.CreateClient(settings)
	if err != nil {
		return fmt.Errorf("orchestrator: reload from environment: %w", err)
	}
	o.mu.Lock()
	o.factory = factory
	o.mu.Unlock()
	o.SwapProvider(client, settings)
	return nil
}
