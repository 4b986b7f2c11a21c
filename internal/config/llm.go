package config

import "time"

// LLMConfig configures lead enrichment models.
type LLMConfig struct {
	// Provider forces a provider: openai, gemini or none. Empty picks the
	// first provider with a key.
	Provider    string `yaml:"provider" env:"LLM_PROVIDER"`
	OpenAIKey   string `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	GeminiKey   string `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	Model       string `yaml:"model" env:"OPENAI_MODEL"`
	GeminiModel string `yaml:"gemini_model" env:"GEMINI_MODEL"`
	BaseURL     string `yaml:"base_url" env:"OPENAI_BASE_URL"`
	Timeout     string `yaml:"timeout" env:"LLM_TIMEOUT"`
	Concurrency int    `yaml:"concurrency" env:"LLM_CONCURRENCY"`
}

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// ValidProviders lists accepted values for llm.provider ("" means auto).
var ValidProviders = []string{"", ProviderOpenAI, ProviderGemini, ProviderNone}

// GetActiveProvider returns the provider and API key to use.
// Priority: explicit provider setting > first available key.
func (c LLMConfig) GetActiveProvider() (provider string, apiKey string) {
	switch c.Provider {
	case ProviderNone:
		return "", ""
	case ProviderOpenAI:
		if c.OpenAIKey != "" {
			return ProviderOpenAI, c.OpenAIKey
		}
	case ProviderGemini:
		if c.GeminiKey != "" {
			return ProviderGemini, c.GeminiKey
		}
	}

	if c.OpenAIKey != "" {
		return ProviderOpenAI, c.OpenAIKey
	}
	if c.GeminiKey != "" {
		return ProviderGemini, c.GeminiKey
	}
	return "", ""
}

// Configured reports whether any model provider is usable.
func (c LLMConfig) Configured() bool {
	p, _ := c.GetActiveProvider()
	return p != ""
}

// GetTimeout returns the per-request model timeout.
func (c LLMConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 60*time.Second)
}
