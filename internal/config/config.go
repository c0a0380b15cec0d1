package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every configurable piece of the console daemon.
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Agent    AgentConfig
	Sync     SyncConfig
	Upload   UploadConfig
	Assist   AssistConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	upstream, err := loadUpstreamConfig()
	if err != nil {
		return nil, err
	}

	agent, err := loadAgentConfig()
	if err != nil {
		return nil, err
	}

	syncCfg, err := loadSyncConfig()
	if err != nil {
		return nil, err
	}

	upload, err := loadUploadConfig(upstream)
	if err != nil {
		return nil, err
	}

	assist, err := loadAssistConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Upstream: upstream,
		Agent:    agent,
		Sync:     syncCfg,
		Upload:   upload,
		Assist:   assist,
	}, nil
}

// ServerConfig describes the local HTTP listener the console UI talks to.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as given.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// UpstreamConfig describes the helpdesk service endpoints and credentials.
type UpstreamConfig struct {
	BaseURL  string
	WSURL    string
	Token    string
	PageSize int
}

func loadUpstreamConfig() (UpstreamConfig, error) {
	baseURL := strings.TrimSpace(os.Getenv("UPSTREAM_BASE_URL"))
	if baseURL == "" {
		return UpstreamConfig{}, fmt.Errorf("UPSTREAM_BASE_URL is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	wsURL := strings.TrimSpace(os.Getenv("UPSTREAM_WS_URL"))
	if wsURL == "" {
		return UpstreamConfig{}, fmt.Errorf("UPSTREAM_WS_URL is required")
	}

	pageSize := 100
	if override, err := parseOptionalIntEnv("UPSTREAM_PAGE_SIZE"); err != nil {
		return UpstreamConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return UpstreamConfig{}, fmt.Errorf("UPSTREAM_PAGE_SIZE must be positive, got %d", *override)
		}
		pageSize = *override
	}

	return UpstreamConfig{
		BaseURL:  baseURL,
		WSURL:    wsURL,
		Token:    strings.TrimSpace(os.Getenv("UPSTREAM_TOKEN")),
		PageSize: pageSize,
	}, nil
}

// AgentConfig identifies the signed-in support agent.
type AgentConfig struct {
	ID string
}

func loadAgentConfig() (AgentConfig, error) {
	id := strings.TrimSpace(os.Getenv("AGENT_ID"))
	if id == "" {
		return AgentConfig{}, fmt.Errorf("AGENT_ID is required")
	}
	return AgentConfig{ID: id}, nil
}

// SyncConfig tunes the reconciliation engine.
type SyncConfig struct {
	SignatureTTL time.Duration
}

func loadSyncConfig() (SyncConfig, error) {
	ttl := 5 * time.Second
	if override, err := parseOptionalIntEnv("SYNC_SIGNATURE_TTL_SECONDS"); err != nil {
		return SyncConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return SyncConfig{}, fmt.Errorf("SYNC_SIGNATURE_TTL_SECONDS must be positive, got %d", *override)
		}
		ttl = time.Duration(*override) * time.Second
	}
	return SyncConfig{SignatureTTL: ttl}, nil
}

// UploadConfig describes the attachment store.
type UploadConfig struct {
	Endpoint    string
	Concurrency int
}

func loadUploadConfig(upstream UpstreamConfig) (UploadConfig, error) {
	endpoint := strings.TrimSpace(os.Getenv("UPLOAD_ENDPOINT"))
	if endpoint == "" {
		endpoint = upstream.BaseURL + "/files"
	}

	concurrency := 3
	if override, err := parseOptionalIntEnv("UPLOAD_CONCURRENCY"); err != nil {
		return UploadConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return UploadConfig{}, fmt.Errorf("UPLOAD_CONCURRENCY must be positive, got %d", *override)
		}
		concurrency = *override
	}

	return UploadConfig{Endpoint: endpoint, Concurrency: concurrency}, nil
}

// AssistConfig describes the optional reply-draft model.
type AssistConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
}

// Enabled reports whether the required credentials are present.
func (c AssistConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds the model instance from the configuration.
func (c AssistConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("assist credentials missing: set ARK_API_KEY + ARK_MODEL or AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAssistConfig() (AssistConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AssistConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AssistConfig{}, err
	}

	return AssistConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
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
