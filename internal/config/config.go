package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Speech    SpeechConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Log       LogConfig
	RateLimit RateLimitConfig
	Reminder  ReminderConfig
	Weather   WeatherConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	rateLimit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	reminder, err := loadReminderConfig()
	if err != nil {
		return nil, err
	}

	weather, err := loadWeatherConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Speech:  speech,
		Storage: storage,
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Auth: AuthConfig{
			JWTSecret: strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")),
			Issuer:    strings.TrimSpace(os.Getenv("AUTH_JWT_ISSUER")),
		},
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
			File:   strings.TrimSpace(os.Getenv("LOG_FILE")),
		},
		RateLimit: rateLimit,
		Reminder:  reminder,
		Weather:   weather,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, CORSOrigins: corsOrigins()}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, CORSOrigins: corsOrigins()}, nil
}

// corsOrigins 解析逗号分隔的 CORS_ALLOWED_ORIGINS。
func corsOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// AI 模型提供方。
const (
	ProviderArk    = "ark"
	ProviderGemini = "gemini"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider      string
	APIKey        string
	AccessKey     string
	SecretKey     string
	GeminiAPIKey  string
	Model         string
	BaseURL       string
	Region        string
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	TriageEnabled bool
	HistoryLimit  int
	Timeout       time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderGemini:
		return c.GeminiAPIKey != ""
	default:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	}
}

// NewChatModel 使用配置创建一个支持工具调用的模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ToolCallingChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s credentials or model missing", c.Provider)
	}

	if c.Provider == ProviderGemini {
		client, err := genai.NewClient(ctx, c.geminiClientConfig())
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		temperature, topP := c.sampling()
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
	}

	return ark.NewChatModel(ctx, c.arkConfig())
}

func (c AIConfig) sampling() (temperature, topP *float32) {
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}
	return temperature, topP
}

// geminiClientConfig 每次请求的超时取 AI_TIMEOUT。
func (c AIConfig) geminiClientConfig() *genai.ClientConfig {
	cfg := &genai.ClientConfig{
		APIKey:  c.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.Timeout > 0 {
		timeout := c.Timeout
		cfg.HTTPOptions.Timeout = &timeout
	}
	return cfg
}

func (c AIConfig) arkConfig() *ark.ChatModelConfig {
	temperature, topP := c.sampling()
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
	if c.Timeout > 0 {
		timeout := c.Timeout
		cfg.Timeout = &timeout
	}
	return cfg
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderGemini))
	if provider != ProviderArk && provider != ProviderGemini {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	triage, err := parseBoolEnv("AI_TRIAGE_LLM_ENABLED", true)
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 10
	if override, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			historyLimit = 1
		} else {
			historyLimit = *override
		}
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 60*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	defaultModel := "gemini-2.5-flash"
	if provider == ProviderArk {
		defaultModel = ""
	}

	return AIConfig{
		Provider:      provider,
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		GeminiAPIKey:  strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		Model:         getEnvOrDefault("AI_MODEL", defaultModel),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		TriageEnabled: triage,
		HistoryLimit:  historyLimit,
		Timeout:       timeout,
	}, nil
}

// 语音服务提供方。
const (
	SpeechNone       = "none"
	SpeechVolcengine = "volcengine"
	SpeechGemini     = "gemini"
)

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	Provider     string
	AppID        string
	AccessToken  string
	GeminiAPIKey string
	GeminiModel  string
	Voice        string
	Speed        float32
	Volume       float32
	Language     string
	Timeout      time.Duration
}

// Enabled 表示语音合成是否可用。
func (c SpeechConfig) Enabled() bool {
	switch c.Provider {
	case SpeechVolcengine:
		return c.AppID != "" && c.AccessToken != ""
	case SpeechGemini:
		return c.GeminiAPIKey != ""
	default:
		return false
	}
}

func loadSpeechConfig() (SpeechConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("SPEECH_PROVIDER", SpeechGemini))
	switch provider {
	case SpeechNone, SpeechVolcengine, SpeechGemini:
	default:
		return SpeechConfig{}, fmt.Errorf("invalid SPEECH_PROVIDER value %q", provider)
	}

	timeout, err := parseDurationEnv("SPEECH_TIMEOUT", 30*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	if accessToken == "" {
		accessToken = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
	}

	// 未单独配置时复用对话模型的 Gemini 密钥
	geminiKey := strings.TrimSpace(os.Getenv("SPEECH_GEMINI_API_KEY"))
	if geminiKey == "" {
		geminiKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}

	return SpeechConfig{
		Provider:     provider,
		AppID:        strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken:  accessToken,
		GeminiAPIKey: geminiKey,
		GeminiModel:  getEnvOrDefault("SPEECH_GEMINI_MODEL", "gemini-2.5-flash-preview-tts"),
		Voice:        strings.TrimSpace(os.Getenv("SPEECH_TTS_VOICE")),
		Speed:        ttsSpeed,
		Volume:       ttsVolume,
		Language:     getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en-US"),
		Timeout:      timeout,
	}, nil
}

// 存储后端。
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// StorageConfig 描述持久化配置。
type StorageConfig struct {
	Driver string
	DSN    string
}

func loadStorageConfig() (StorageConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", StorageMemory))
	dsn := strings.TrimSpace(os.Getenv("STORAGE_DSN"))

	switch driver {
	case StorageMemory:
	case StorageSQLite:
		if dsn == "" {
			dsn = "data/healthwise.db"
		}
	case StoragePostgres:
		if dsn == "" {
			return StorageConfig{}, fmt.Errorf("STORAGE_DSN is required for postgres storage")
		}
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_DRIVER value %q", driver)
	}

	return StorageConfig{Driver: driver, DSN: dsn}, nil
}

// RedisConfig 描述 Redis 连接；Addr 为空表示不启用。
type RedisConfig struct {
	Addr     string
	Password string
}

// Enabled 表示是否配置了 Redis。
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// AuthConfig 描述 JWT 校验配置；未配置密钥时所有请求视为访客。
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// RateLimitConfig 描述基于 Redis 的限流参数。
type RateLimitConfig struct {
	Limit         int
	Window        time.Duration
	BlockDuration time.Duration
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	limit := 60
	if override, err := parseOptionalIntEnv("RATE_LIMIT_REQUESTS"); err != nil {
		return RateLimitConfig{}, err
	} else if override != nil {
		limit = *override
	}

	window, err := parseDurationEnv("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return RateLimitConfig{}, err
	}

	block, err := parseDurationEnv("RATE_LIMIT_BLOCK", 5*time.Minute)
	if err != nil {
		return RateLimitConfig{}, err
	}

	return RateLimitConfig{Limit: limit, Window: window, BlockDuration: block}, nil
}

// ReminderConfig 描述提醒调度参数。
type ReminderConfig struct {
	CheckInterval time.Duration
	Period        time.Duration
}

func loadReminderConfig() (ReminderConfig, error) {
	interval, err := parseDurationEnv("REMINDER_CHECK_INTERVAL", time.Hour)
	if err != nil {
		return ReminderConfig{}, err
	}
	period, err := parseDurationEnv("REMINDER_PERIOD", 24*time.Hour)
	if err != nil {
		return ReminderConfig{}, err
	}
	return ReminderConfig{CheckInterval: interval, Period: period}, nil
}

// WeatherConfig 描述天气缓存。
type WeatherConfig struct {
	CacheTTL time.Duration
}

func loadWeatherConfig() (WeatherConfig, error) {
	ttl, err := parseDurationEnv("WEATHER_CACHE_TTL", 15*time.Minute)
	if err != nil {
		return WeatherConfig{}, err
	}
	return WeatherConfig{CacheTTL: ttl}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	// 纯数字按秒处理
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
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

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
