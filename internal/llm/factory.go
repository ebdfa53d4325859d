package llm

import (
	"fmt"
	"strings"
)

const (
	ProviderOpenAI = "openai"
	ProviderYandex = "yandex"
)

// Settings is the provider-independent model configuration the orchestrator
// passes through to whichever vendor adapter is active.
type Settings struct {
	Provider    string
	Model       string
	Temperature float32
}

// Factory creates LLM clients with consistent logic regardless of the
// configured vendor.
type Factory struct {
	OpenaiAPIKey       string
	OpenaiBaseURL      string
	OpenRouterReferrer string
	OpenRouterTitle    string
	YandexOAuthToken   string
	YandexFolderID     string
}

func (f *Factory) CreateClient(s Settings) (Client, error) {
	switch strings.ToLower(s.Provider) {
	case ProviderOpenAI:
		return NewOpenAI(f.OpenaiAPIKey, f.OpenaiBaseURL, s.Model, s.Temperature, f.OpenRouterReferrer, f.OpenRouterTitle), nil
	case ProviderYandex:
		return NewYandex(f.YandexOAuthToken, f.YandexFolderID)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", s.Provider)
	}
}
