package config

import (
	"fmt"
	"log"

	"github.com/caarlos0/env/v6"

	"loremaster/internal/llm"
)

type Config struct {
	// LLM settings
	LLMProvider    string  `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey   string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL  string  `env:"OPENAI_BASE_URL"`
	OpenAIModel    string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	Temperature    float64 `env:"LLM_TEMPERATURE" envDefault:"0.8"`
	YandexOAuth    string  `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID string  `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Session fronts
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	HTTPPort         int    `env:"HTTP_PORT" envDefault:"8080"`

	// Campaign and prompts
	CampaignFilePath string `env:"CAMPAIGN_FILE_PATH" envDefault:"campaign.yaml"`
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH" envDefault:"prompts/system_prompt.txt"`

	// Tooling
	LoreMCPServerPath string `env:"LORE_MCP_SERVER_PATH"`

	// Storage
	StateDBPath  string `env:"STATE_DB_PATH" envDefault:"data/session.db"`
	AutosavePath string `env:"AUTOSAVE_PATH" envDefault:"data/transcript.json"`
	AutosaveSpec string `env:"AUTOSAVE_SPEC" envDefault:"@every 5m"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// New is the fatal-on-error variant used by mains.
func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

// LLMFactory builds the vendor factory from the configured credentials.
func (c *Config) LLMFactory() *llm.Factory {
	return &llm.Factory{
		OpenaiAPIKey:       c.OpenAIAPIKey,
		OpenaiBaseURL:      c.OpenAIBaseURL,
		OpenRouterReferrer: c.OpenRouterReferrer,
		OpenRouterTitle:    c.OpenRouterTitle,
		YandexOAuthToken:   c.YandexOAuth,
		YandexFolderID:     c.YandexFolderID,
	}
}

// LLMSettings returns the provider-independent model settings.
func (c *Config) LLMSettings() llm.Settings {
	return llm.Settings{
		Provider:    c.LLMProvider,
		Model:       c.OpenAIModel,
		Temperature: float32(c.Temperature),
	}
}
