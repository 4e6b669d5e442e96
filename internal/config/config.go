package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/canvass-coach/backend/internal/service/voice"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Gemini  GeminiConfig
	Coach   CoachConfig
	Voice   VoiceConfig
	Session SessionConfig
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

	coach, err := loadCoachConfig()
	if err != nil {
		return nil, err
	}

	voiceCfg, err := loadVoiceConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Gemini:  loadGeminiConfig(),
		Coach:   coach,
		Voice:   voiceCfg,
		Session: session,
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

	origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, CORSOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, CORSOrigins: origins}, nil
}

// AIConfig 描述 Ark 大模型相关配置。
type AIConfig struct {
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

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
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
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// GeminiConfig 描述 Gemini 评估模型配置。
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Enabled 表示是否配置了 Gemini 密钥。
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadGeminiConfig() GeminiConfig {
	return GeminiConfig{
		APIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
	}
}

// CoachProvider 选择反馈与提示的生成方式。
type CoachProvider string

const (
	CoachAuto      CoachProvider = "auto"
	CoachArk       CoachProvider = "ark"
	CoachGemini    CoachProvider = "gemini"
	CoachHeuristic CoachProvider = "heuristic"
	CoachNone      CoachProvider = "none"
)

// CoachConfig 描述教练反馈配置。
type CoachConfig struct {
	Provider CoachProvider
}

func loadCoachConfig() (CoachConfig, error) {
	provider := CoachProvider(strings.ToLower(getEnvOrDefault("COACH_PROVIDER", string(CoachAuto))))
	switch provider {
	case CoachAuto, CoachArk, CoachGemini, CoachHeuristic, CoachNone:
		return CoachConfig{Provider: provider}, nil
	default:
		return CoachConfig{}, fmt.Errorf("invalid COACH_PROVIDER value %q", provider)
	}
}

// VoiceConfig 描述各语音后端的连接参数。
type VoiceConfig struct {
	LiveURL       string
	LiveTokenURL  string
	LiveAPIKey    string
	LiveConfigID  string
	AltURL        string
	AltTokenURL   string
	AltAPIKey     string
	AltAuthScheme string
	AltKeepAlive  time.Duration
	ReplaySpeed   float64
	MockDelay     time.Duration
}

func loadVoiceConfig() (VoiceConfig, error) {
	keepAlive, err := parseOptionalIntEnv("ALT_KEEPALIVE_SECONDS")
	if err != nil {
		return VoiceConfig{}, err
	}
	altKeepAlive := voice.DefaultKeepAlive
	if keepAlive != nil && *keepAlive > 0 {
		altKeepAlive = time.Duration(*keepAlive) * time.Second
	}

	speed, err := parseOptionalFloatEnv("REPLAY_SPEED")
	if err != nil {
		return VoiceConfig{}, err
	}
	replaySpeed := 1.0 // 默认原速回放
	if speed != nil {
		if *speed <= 0 {
			return VoiceConfig{}, fmt.Errorf("invalid REPLAY_SPEED value %v: must be positive", *speed)
		}
		replaySpeed = *speed
	}

	delay, err := parseOptionalIntEnv("MOCK_CONNECT_DELAY_MS")
	if err != nil {
		return VoiceConfig{}, err
	}
	mockDelay := voice.DefaultMockDelay
	if delay != nil {
		mockDelay = time.Duration(*delay) * time.Millisecond
	}

	return VoiceConfig{
		LiveURL:       getEnvOrDefault("LIVE_AGENT_URL", "wss://api.hume.ai/v0/evi/chat"),
		LiveTokenURL:  strings.TrimSpace(os.Getenv("LIVE_TOKEN_URL")),
		LiveAPIKey:    strings.TrimSpace(os.Getenv("LIVE_API_KEY")),
		LiveConfigID:  strings.TrimSpace(os.Getenv("LIVE_CONFIG_ID")),
		AltURL:        getEnvOrDefault("ALT_AGENT_URL", "wss://agent.deepgram.com/v1/agent/converse"),
		AltTokenURL:   strings.TrimSpace(os.Getenv("ALT_TOKEN_URL")),
		AltAPIKey:     strings.TrimSpace(os.Getenv("ALT_API_KEY")),
		AltAuthScheme: getEnvOrDefault("ALT_AUTH_SCHEME", "Token"),
		AltKeepAlive:  altKeepAlive,
		ReplaySpeed:   replaySpeed,
		MockDelay:     mockDelay,
	}, nil
}

// Options 把配置转换为语音后端参数；令牌服务优先于静态密钥。
func (c VoiceConfig) Options() voice.Options {
	return voice.Options{
		Live: voice.LiveOptions{
			URL:      c.LiveURL,
			ConfigID: c.LiveConfigID,
			Tokens:   tokenSource(c.LiveTokenURL, c.LiveAPIKey),
		},
		Alternate: voice.AlternateOptions{
			URL:        c.AltURL,
			Tokens:     tokenSource(c.AltTokenURL, c.AltAPIKey),
			AuthScheme: c.AltAuthScheme,
			KeepAlive:  c.AltKeepAlive,
		},
		Replay: voice.ReplayOptions{Speed: c.ReplaySpeed},
		Mock:   voice.MockOptions{Delay: c.MockDelay},
	}
}

func tokenSource(tokenURL, apiKey string) voice.TokenSource {
	switch {
	case tokenURL != "":
		header := http.Header{}
		if apiKey != "" {
			header.Set("Authorization", "Bearer "+apiKey)
		}
		return voice.NewHTTPTokenSource(tokenURL, header, nil)
	case apiKey != "":
		return voice.StaticTokenSource(apiKey)
	default:
		return nil
	}
}

// SessionConfig 描述会话注册表配置。
type SessionConfig struct {
	ScriptsFile string
	IdleTimeout time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	timeout := 30 * time.Minute
	if raw := strings.TrimSpace(os.Getenv("SESSION_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_TIMEOUT value %q: %w", raw, err)
		}
		timeout = parsed
	}

	return SessionConfig{
		ScriptsFile: strings.TrimSpace(os.Getenv("SCRIPTS_FILE")),
		IdleTimeout: timeout,
	}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
