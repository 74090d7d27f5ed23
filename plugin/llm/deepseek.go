package llm

// DeepSeek speaks the OpenAI chat completion protocol, so its provider is
// the shared adapter pointed at the DeepSeek endpoint.

// NewDeepSeekProvider creates the DeepSeek backend.
func NewDeepSeekProvider(cfg *OpenAIConfig) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	return newOpenAICompatible("deepseek", cfg)
}
