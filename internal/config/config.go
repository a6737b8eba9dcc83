package config

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Provider names accepted by AI_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// Session backends accepted by SESSION_BACKEND.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

const devJWTSecret = "animo-dev-secret-change-me"

// Config aggregates every setting of the service.
type Config struct {
	Server       ServerConfig
	AI           AIConfig
	Session      SessionConfig
	Database     DatabaseConfig
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	Presentation PresentationConfig
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

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}
	if err := checkSessionOutlivesTurn(session.TTL, ai.Timeout); err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	rateLimit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	presentation, err := loadPresentationConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:       server,
		AI:           ai,
		Session:      session,
		Database:     DatabaseConfig{URL: strings.TrimSpace(os.Getenv("DATABASE_URL"))},
		Auth:         auth,
		RateLimit:    rateLimit,
		Presentation: presentation,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
	// CharactersFile optionally points at a YAML character catalog.
	CharactersFile string
	CORSOrigins    []string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	cfg := ServerConfig{
		Addr:           ":" + port,
		CharactersFile: strings.TrimSpace(os.Getenv("CHARACTERS_FILE")),
		CORSOrigins:    splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		cfg.Addr = port
		return cfg, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return cfg, nil
}

// AIConfig selects and configures the generation backend.
type AIConfig struct {
	Provider   string
	Timeout    time.Duration
	MaxRetries int
	Gemini     GeminiConfig
	Ark        ArkConfig
	OpenAI     OpenAIConfig
}

// Enabled reports whether the selected provider has credentials.
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderGemini:
		return c.Gemini.Enabled()
	case ProviderArk:
		return c.Ark.Enabled()
	case ProviderOpenAI:
		return c.OpenAI.Enabled()
	default:
		return false
	}
}

// GeminiConfig configures the Google Gemini API backend.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Enabled reports whether an API key is present.
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// OpenAIConfig configures an OpenAI-compatible chat completion backend.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Enabled reports whether an API key is present.
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// ArkConfig describes the Volcengine Ark model used through eino.
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled reports whether the required keys are present.
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an Ark chat model from the configuration.
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + Model or an AK/SK pair")
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
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderGemini))
	switch provider {
	case ProviderGemini, ProviderArk, ProviderOpenAI:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 60*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	maxRetries := 2
	if override, err := parseOptionalIntEnv("AI_MAX_RETRIES"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 0 {
			return AIConfig{}, fmt.Errorf("invalid AI_MAX_RETRIES value %d: must be >= 0", *override)
		}
		maxRetries = *override
	}

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
		Provider:   provider,
		Timeout:    timeout,
		MaxRetries: maxRetries,
		Gemini: GeminiConfig{
			APIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		Ark: ArkConfig{
			APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:       strings.TrimSpace(os.Getenv("Model")),
			BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
		},
		OpenAI: OpenAIConfig{
			APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			Model:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		},
	}, nil
}

// SessionConfig describes where chat transcripts live and for how long.
type SessionConfig struct {
	Backend       string
	TTL           time.Duration
	SweepInterval time.Duration
	Redis         RedisConfig
}

// RedisConfig holds the Redis connection for the redis session backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// checkSessionOutlivesTurn rejects an idle TTL that a single generation could
// exceed; the session would expire before the character line is recorded.
func checkSessionOutlivesTurn(ttl, timeout time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if timeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT must be set when SESSION_TTL is %s", ttl)
	}
	if ttl <= timeout {
		return fmt.Errorf("invalid SESSION_TTL value %s: must exceed AI_TIMEOUT (%s)", ttl, timeout)
	}
	return nil
}

func loadSessionConfig() (SessionConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("SESSION_BACKEND", SessionBackendMemory))
	if backend != SessionBackendMemory && backend != SessionBackendRedis {
		return SessionConfig{}, fmt.Errorf("invalid SESSION_BACKEND value %q", backend)
	}

	ttl, err := parseDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}

	sweep, err := parseDurationEnv("SESSION_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	db := 0
	if override, err := parseOptionalIntEnv("REDIS_DB"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		db = *override
	}

	redis := RedisConfig{
		Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		Prefix:   getEnvOrDefault("REDIS_PREFIX", "animo:chat:"),
	}
	if backend == SessionBackendRedis && redis.Addr == "" {
		return SessionConfig{}, fmt.Errorf("REDIS_ADDR is required when SESSION_BACKEND=redis")
	}

	return SessionConfig{
		Backend:       backend,
		TTL:           ttl,
		SweepInterval: sweep,
		Redis:         redis,
	}, nil
}

// DatabaseConfig points at the Postgres database for accounts and watch
// lists. An empty URL keeps both in memory.
type DatabaseConfig struct {
	URL string
}

// AuthConfig configures token signing.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	// InsecureSecret is set when JWT_SECRET was not provided.
	InsecureSecret bool
}

func loadAuthConfig() (AuthConfig, error) {
	ttl, err := parseDurationEnv("JWT_TTL", 30*24*time.Hour)
	if err != nil {
		return AuthConfig{}, err
	}

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	insecure := secret == ""
	if insecure {
		secret = devJWTSecret
	}

	return AuthConfig{JWTSecret: secret, TokenTTL: ttl, InsecureSecret: insecure}, nil
}

// RateLimitConfig bounds chat requests per client.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// TrustedProxies are the peers whose forwarding headers name the client.
	TrustedProxies []netip.Prefix
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	cfg := RateLimitConfig{RequestsPerSecond: 2, Burst: 5}

	rps, err := parseOptionalFloatEnv("RATE_LIMIT_RPS")
	if err != nil {
		return RateLimitConfig{}, err
	}
	if rps != nil {
		cfg.RequestsPerSecond = *rps
	}

	burst, err := parseOptionalIntEnv("RATE_LIMIT_BURST")
	if err != nil {
		return RateLimitConfig{}, err
	}
	if burst != nil {
		cfg.Burst = *burst
	}

	if cfg.RequestsPerSecond > 0 && cfg.Burst < 1 {
		return RateLimitConfig{}, fmt.Errorf("invalid RATE_LIMIT_BURST value %d: must be >= 1", cfg.Burst)
	}

	proxies, err := parsePrefixList("TRUSTED_PROXIES")
	if err != nil {
		return RateLimitConfig{}, err
	}
	cfg.TrustedProxies = proxies
	return cfg, nil
}

// parsePrefixList reads a comma separated list of IP addresses or CIDR ranges.
func parsePrefixList(key string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, item := range splitList(os.Getenv(key)) {
		if strings.Contains(item, "/") {
			prefix, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("invalid %s entry %q: %w", key, item, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", key, item, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// Enabled reports whether rate limiting is on.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerSecond > 0
}

// PresentationConfig tunes the streamed reveal of replies.
type PresentationConfig struct {
	RevealCadence time.Duration
}

func loadPresentationConfig() (PresentationConfig, error) {
	cadence, err := parseDurationEnv("REVEAL_CADENCE", 5*time.Millisecond)
	if err != nil {
		return PresentationConfig{}, err
	}
	return PresentationConfig{RevealCadence: cadence}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
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
