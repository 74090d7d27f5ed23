package profile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the assistant server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where the assistant stores archived conversations
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// Provider configuration
	LLMProvider       string // LESSONLOOP_LLM_PROVIDER: explicit preference (openai, deepseek, ollama, offline)
	OpenAIAPIKey      string // LESSONLOOP_OPENAI_API_KEY
	OpenAIBaseURL     string // LESSONLOOP_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	OpenAIModel       string // LESSONLOOP_OPENAI_MODEL (default: gpt-4o-mini)
	DeepSeekAPIKey    string // LESSONLOOP_DEEPSEEK_API_KEY
	DeepSeekBaseURL   string // LESSONLOOP_DEEPSEEK_BASE_URL (default: https://api.deepseek.com)
	DeepSeekModel     string // LESSONLOOP_DEEPSEEK_MODEL (default: deepseek-chat)
	OllamaBaseURL     string // LESSONLOOP_OLLAMA_BASE_URL (default: http://localhost:11434)
	OllamaModel       string // LESSONLOOP_OLLAMA_MODEL (default: llama3.1)
	ProviderMaxTokens int    // LESSONLOOP_PROVIDER_MAX_TOKENS (default: 1024)

	// Rate limit configuration
	RateLimitEnabled bool // LESSONLOOP_RATE_LIMIT_ENABLED (default: true)

	// Response cache configuration
	ResponseCacheSize int // LESSONLOOP_RESPONSE_CACHE_SIZE (default: 512)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// FromEnv overlays environment variables onto the profile.
func (p *Profile) FromEnv() {
	p.Mode = getEnvOrDefault("LESSONLOOP_MODE", p.Mode)
	p.Addr = getEnvOrDefault("LESSONLOOP_ADDR", p.Addr)
	p.Port = getEnvInt("LESSONLOOP_PORT", p.Port)
	p.Data = getEnvOrDefault("LESSONLOOP_DATA", p.Data)
	p.DSN = getEnvOrDefault("LESSONLOOP_DSN", p.DSN)
	p.Driver = getEnvOrDefault("LESSONLOOP_DRIVER", p.Driver)

	p.LLMProvider = getEnvOrDefault("LESSONLOOP_LLM_PROVIDER", p.LLMProvider)
	p.OpenAIAPIKey = getEnvOrDefault("LESSONLOOP_OPENAI_API_KEY", p.OpenAIAPIKey)
	p.OpenAIBaseURL = getEnvOrDefault("LESSONLOOP_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.OpenAIModel = getEnvOrDefault("LESSONLOOP_OPENAI_MODEL", "gpt-4o-mini")
	p.DeepSeekAPIKey = getEnvOrDefault("LESSONLOOP_DEEPSEEK_API_KEY", p.DeepSeekAPIKey)
	p.DeepSeekBaseURL = getEnvOrDefault("LESSONLOOP_DEEPSEEK_BASE_URL", "https://api.deepseek.com")
	p.DeepSeekModel = getEnvOrDefault("LESSONLOOP_DEEPSEEK_MODEL", "deepseek-chat")
	p.OllamaBaseURL = getEnvOrDefault("LESSONLOOP_OLLAMA_BASE_URL", "http://localhost:11434")
	p.OllamaModel = getEnvOrDefault("LESSONLOOP_OLLAMA_MODEL", "llama3.1")
	p.ProviderMaxTokens = getEnvInt("LESSONLOOP_PROVIDER_MAX_TOKENS", 1024)

	p.RateLimitEnabled = getEnvBool("LESSONLOOP_RATE_LIMIT_ENABLED", true)
	p.ResponseCacheSize = getEnvInt("LESSONLOOP_RESPONSE_CACHE_SIZE", 512)
}

// Validate normalizes and validates the profile.
func (p *Profile) Validate() error {
	if p.Mode != "prod" && p.Mode != "dev" && p.Mode != "demo" {
		p.Mode = "dev"
	}
	if p.Port <= 0 {
		p.Port = 8081
	}
	if p.Data == "" {
		p.Data = "."
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	p.Driver = strings.ToLower(p.Driver)
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported database driver: %s", p.Driver)
	}
	if p.DSN == "" {
		if p.Driver == "postgres" {
			return errors.New("DSN is required for postgres driver")
		}
		p.DSN = fmt.Sprintf("%s/assistant_%s.db", p.Data, p.Mode)
	}
	return nil
}
