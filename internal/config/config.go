package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every configuration concern of the service.
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Upstream UpstreamConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		Upstream: loadUpstreamConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the model backend. Ark credentials select the eino
// backend; otherwise an OpenAI-compatible endpoint may be configured.
type AIConfig struct {
	// Ark (eino) backend.
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int

	// OpenAI-compatible fallback backend.
	OpenAIBaseURL string
	OpenAIAPIKey  string
}

// ArkEnabled reports whether the required Ark credentials are present.
func (c AIConfig) ArkEnabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// OpenAIEnabled reports whether an OpenAI-compatible endpoint is
// configured.
func (c AIConfig) OpenAIEnabled() bool {
	return c.OpenAIBaseURL != ""
}

// NewChatModel creates an Ark chat model for the given model id.
func (c AIConfig) NewChatModel(ctx context.Context, modelID string) (model.BaseChatModel, error) {
	if !c.ArkEnabled() {
		return nil, fmt.Errorf("ark credentials missing: provide ARK_API_KEY or AK/SK plus ARK_MODEL")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       modelID,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		OpenAIBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")), "/"),
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
	}, nil
}

// UpstreamConfig points at the user-facing application backend that owns
// profiles and chat-count accounting.
type UpstreamConfig struct {
	BaseURL string
	Token   string

	// Static profile fallback when no upstream is configured.
	Name    string
	Branch  string
	Subject string
	Course  string
}

// Enabled reports whether upstream profile/usage calls can be made.
func (c UpstreamConfig) Enabled() bool {
	return c.BaseURL != "" && c.Token != ""
}

func loadUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		BaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("UPSTREAM_BASE_URL")), "/"),
		Token:   strings.TrimSpace(os.Getenv("UPSTREAM_TOKEN")),
		Name:    strings.TrimSpace(os.Getenv("STUDENT_NAME")),
		Branch:  strings.TrimSpace(os.Getenv("STUDENT_BRANCH")),
		Subject: strings.TrimSpace(os.Getenv("STUDENT_SUBJECT")),
		Course:  strings.TrimSpace(os.Getenv("STUDENT_COURSE")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
