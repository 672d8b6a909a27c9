package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Log    LogConfig
	AI     AIConfig
	Image  ImageConfig
	Speech SpeechConfig
	Redis   RedisConfig
	Ads     AdsConfig
	Session SessionConfig
	// RandomSeed pins every random decision when non-zero.
	RandomSeed uint64 `env:"RANDOM_SEED" env-default:"0"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	cfg.AI.Provider = strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = ProviderGemini
	}
	switch cfg.AI.Provider {
	case ProviderGemini, ProviderArk:
	default:
		return nil, fmt.Errorf("invalid AI_PROVIDER value: %q", cfg.AI.Provider)
	}

	cfg.Speech.Provider = strings.ToLower(strings.TrimSpace(cfg.Speech.Provider))
	if cfg.Speech.Provider == "" {
		cfg.Speech.Provider = SpeechProviderWhisper
	}
	switch cfg.Speech.Provider {
	case SpeechProviderWhisper, SpeechProviderVolcengine:
	default:
		return nil, fmt.Errorf("invalid SPEECH_PROVIDER value: %q", cfg.Speech.Provider)
	}
	return &cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" env-default:"8080"`
	Addr string
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	if strings.Contains(port, ":") {
		// 允许直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}
	return ":" + port, nil
}

// LogConfig 描述 zap 日志配置。
type LogConfig struct {
	Level      string `env:"LOG_LEVEL" env-default:"info"`
	Encoding   string `env:"LOG_ENCODING" env-default:"json"`
	OutputPath string `env:"LOG_OUTPUT"`
}

const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
)

// AIConfig 描述文本生成相关配置。
type AIConfig struct {
	Provider string `env:"AI_PROVIDER" env-default:"gemini"`
	Gemini   GeminiConfig
	Ark      ArkConfig
}

// Enabled 表示所选的文本生成后端是否已配置。
func (c AIConfig) Enabled() bool {
	if c.Provider == ProviderArk {
		return c.Ark.Enabled()
	}
	return c.Gemini.Enabled()
}

type GeminiConfig struct {
	APIKey      string  `env:"GEMINI_API_KEY"`
	Model       string  `env:"GEMINI_MODEL" env-default:"gemini-2.5-flash"`
	Temperature float32 `env:"GEMINI_TEMPERATURE" env-default:"0.9"`
}

func (c GeminiConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// ArkConfig 描述火山方舟大模型配置。
type ArkConfig struct {
	APIKey      string  `env:"ARK_API_KEY"`
	AccessKey   string  `env:"ARK_ACCESS_KEY"`
	SecretKey   string  `env:"ARK_SECRET_KEY"`
	Model       string  `env:"ARK_MODEL"`
	BaseURL     string  `env:"ARK_BASE_URL" env-default:"https://ark.cn-beijing.volces.com/api/v3"`
	Region      string  `env:"ARK_REGION" env-default:"cn-beijing"`
	Temperature float32 `env:"ARK_TEMPERATURE"`
	TopP        float32 `env:"ARK_TOP_P"`
	MaxTokens   int     `env:"ARK_MAX_TOKENS"`
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。零值参数交给模型默认值。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	}
	if c.Temperature > 0 {
		t := c.Temperature
		cfg.Temperature = &t
	}
	if c.TopP > 0 {
		p := c.TopP
		cfg.TopP = &p
	}
	if c.MaxTokens > 0 {
		n := c.MaxTokens
		cfg.MaxTokens = &n
	}
	return ark.NewChatModel(ctx, cfg)
}

// ImageConfig 描述图像生成 (OpenAI 兼容接口) 配置。
type ImageConfig struct {
	APIKey  string `env:"IMAGE_API_KEY"`
	BaseURL string `env:"IMAGE_BASE_URL"`
	Model   string `env:"IMAGE_MODEL" env-default:"dall-e-3"`
	Size    string `env:"IMAGE_SIZE" env-default:"1024x1024"`
}

func (c ImageConfig) Enabled() bool { return c.APIKey != "" }

const (
	SpeechProviderWhisper    = "whisper"
	SpeechProviderVolcengine = "volcengine"
)

// SpeechConfig 描述语音识别配置，SPEECH_PROVIDER 选择 Whisper 或火山引擎。
type SpeechConfig struct {
	Provider   string        `env:"SPEECH_PROVIDER" env-default:"whisper"`
	APIKey     string        `env:"SPEECH_API_KEY"`
	BaseURL    string        `env:"SPEECH_BASE_URL"`
	Model      string        `env:"SPEECH_MODEL" env-default:"whisper-1"`
	Language   string        `env:"SPEECH_LANGUAGE" env-default:"en"`
	Timeout    time.Duration `env:"SPEECH_TIMEOUT" env-default:"30s"`
	Volcengine VolcengineASRConfig
}

// Enabled 表示所选的语音识别后端是否已配置。
func (c SpeechConfig) Enabled() bool {
	if c.Provider == SpeechProviderVolcengine {
		return c.Volcengine.Enabled()
	}
	return c.APIKey != ""
}

// VolcengineASRConfig 描述火山引擎大模型流式语音识别配置。
type VolcengineASRConfig struct {
	AppID       string `env:"VOLC_APP_ID"`
	AccessToken string `env:"VOLC_ACCESS_TOKEN"`
	URL         string `env:"VOLC_ASR_URL" env-default:"wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"`
	// ConcurrentMode 为 true 时使用并发版资源，否则使用小时版。
	ConcurrentMode bool          `env:"VOLC_ASR_CONCURRENT" env-default:"false"`
	ChunkInterval  time.Duration `env:"VOLC_ASR_CHUNK_INTERVAL" env-default:"200ms"`
}

func (c VolcengineASRConfig) Enabled() bool {
	return strings.TrimSpace(c.AppID) != "" && strings.TrimSpace(c.AccessToken) != ""
}

// RedisConfig 描述进度持久化配置，未配置时使用内存存储。
type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

func (c RedisConfig) Enabled() bool { return c.URL != "" }

// SessionConfig 描述内存中会话的回收策略。
type SessionConfig struct {
	IdleTimeout   time.Duration `env:"SESSION_IDLE_TIMEOUT" env-default:"30m"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" env-default:"1m"`
}

// AdsConfig 描述广告计时配置。
type AdsConfig struct {
	Interval      time.Duration `env:"AD_INTERVAL" env-default:"5m"`
	Tick          time.Duration `env:"AD_TICK" env-default:"1s"`
	TurnThreshold int           `env:"AD_TURN_THRESHOLD" env-default:"10"`
}
