package llm

import "time"

// Default configuration values. Temperature is fixed at 0 so repeated calls
// on identical input converge, though downstream parsing never assumes
// byte-identical output.
const (
	DefaultMaxTokens  = 8192
	DefaultTimeout    = 90 * time.Second
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second
)

// Config holds configuration for LLM clients.
type Config struct {
	// APIKey is the authentication key for the LLM API.
	APIKey string `json:"api_key,omitempty"`

	// Model is the model identifier to use for extraction and judging.
	Model string `json:"model,omitempty"`

	// BaseURL points the client at any OpenAI-compatible endpoint
	// (hosted API, local Ollama, gateway). Empty means the default.
	BaseURL string `json:"base_url,omitempty"`

	// Temperature controls randomness. Extraction runs at 0.
	Temperature float32 `json:"temperature"`

	// MaxTokens caps the completion length.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Timeout bounds a single call.
	Timeout time.Duration `json:"timeout,omitempty"`

	// MaxRetries bounds retry attempts on a failed call.
	MaxRetries int `json:"max_retries,omitempty"`
}

// NewConfig creates a Config with pipeline defaults.
func NewConfig() *Config {
	return &Config{
		Temperature: 0,
		MaxTokens:   DefaultMaxTokens,
		Timeout:     DefaultTimeout,
		MaxRetries:  DefaultMaxRetries,
	}
}
