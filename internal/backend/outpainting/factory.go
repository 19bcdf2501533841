package outpainting

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

type Config struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	APIKeyEnv   string  `yaml:"apiKeyEnv"`
	Temperature float64 `yaml:"temperature"`
	BaseURL     string  `yaml:"baseURL"`
}

const (
	defaultGeminiModel = "gemini-2.0-flash-preview-image-generation"
	defaultAPIKeyEnv   = "GEMINI_API_KEY"
)

func NewModel(ctx context.Context, config Config) (Model, error) {
	switch config.Provider {
	case "", "disabled":
		slog.Warn("generative model disabled, extension and generation requests will fail")
		return NewDisabledModel(), nil
	case "gemini":
		keyEnv := config.APIKeyEnv
		if keyEnv == "" {
			keyEnv = defaultAPIKeyEnv
		}
		apiKey := os.Getenv(keyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("%s environment variable not set", keyEnv)
		}
		name := config.Name
		if name == "" {
			name = defaultGeminiModel
		}
		model, err := NewGeminiModel(ctx, GeminiOptions{
			APIKey:      apiKey,
			Model:       name,
			Temperature: config.Temperature,
			BaseURL:     config.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("generative model initialized", "provider", config.Provider, "model", name)
		return model, nil
	}
	return nil, fmt.Errorf("unsupported model provider: %s", config.Provider)
}
