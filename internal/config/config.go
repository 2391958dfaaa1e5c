package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/marsdhp/sme-interview/backend/internal/model/voice"
)

// Config aggregates every setting the service reads from the environment.
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	TTS       TTSConfig
	Interview InterviewConfig
	Paths     PathsConfig
	Auth      AuthConfig
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

	tts, err := loadTTSConfig()
	if err != nil {
		return nil, err
	}

	iv, err := loadInterviewConfig()
	if err != nil {
		return nil, err
	}

	paths := loadPathsConfig()

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, TTS: tts, Interview: iv, Paths: paths, Auth: auth}, nil
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

// AIConfig describes the conversational model used for interviewing and
// knowledge extraction.
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

// Enabled reports whether the required model credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("model credentials missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
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
	if maxTokens == nil {
		// Interview replies are deliberately short; cap the model accordingly.
		def := 300
		maxTokens = &def
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// TTSConfig describes the speech synthesis provider.
type TTSConfig struct {
	AppID       string
	AccessToken string
	Endpoint    string
	SampleRate  int
	Timeout     time.Duration
	Enabled     bool
}

func loadTTSConfig() (TTSConfig, error) {
	timeout, err := parseOptionalIntEnv("TTS_TIMEOUT_SECONDS")
	if err != nil {
		return TTSConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	sampleRate, err := parseOptionalIntEnv("TTS_SAMPLE_RATE")
	if err != nil {
		return TTSConfig{}, err
	}
	rate := 24000
	if sampleRate != nil {
		rate = *sampleRate
	}

	appID := strings.TrimSpace(os.Getenv("TTS_APP_ID"))
	accessToken := strings.TrimSpace(os.Getenv("TTS_ACCESS_TOKEN"))

	return TTSConfig{
		AppID:       appID,
		AccessToken: accessToken,
		Endpoint:    getEnvOrDefault("TTS_ENDPOINT", "wss://openspeech.bytedance.com/api/v1/tts/ws"),
		SampleRate:  rate,
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
		Enabled:     appID != "" && accessToken != "",
	}, nil
}

// InterviewConfig tunes the session engine: context window, extraction
// cadence, voice defaults, and the cost model.
type InterviewConfig struct {
	MaxContextMessages int
	ExtractionInterval int
	DefaultVoice       string
	DefaultSpeechRate  float64
	ProviderTimeout    time.Duration
	// Per-token model pricing in USD, applied to reported usage.
	InputTokenCost  float64
	OutputTokenCost float64
}

func loadInterviewConfig() (InterviewConfig, error) {
	maxMessages, err := parseOptionalIntEnv("MAX_CONTEXT_MESSAGES")
	if err != nil {
		return InterviewConfig{}, err
	}
	window := 30
	if maxMessages != nil {
		if *maxMessages < 0 {
			return InterviewConfig{}, fmt.Errorf("MAX_CONTEXT_MESSAGES must not be negative, got %d", *maxMessages)
		}
		window = *maxMessages
	}

	interval, err := parseOptionalIntEnv("EXTRACTION_INTERVAL")
	if err != nil {
		return InterviewConfig{}, err
	}
	extractEvery := 10
	if interval != nil {
		if *interval < 1 {
			return InterviewConfig{}, fmt.Errorf("EXTRACTION_INTERVAL must be at least 1, got %d", *interval)
		}
		extractEvery = *interval
	}

	timeout, err := parseOptionalIntEnv("PROVIDER_TIMEOUT_SECONDS")
	if err != nil {
		return InterviewConfig{}, err
	}
	timeoutSeconds := 60
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	speechRate, err := parseOptionalFloatEnv("DEFAULT_SPEECH_RATE")
	if err != nil {
		return InterviewConfig{}, err
	}
	rate := voice.DefaultSpeechRate
	if speechRate != nil {
		rate = voice.ClampRate(*speechRate)
	}

	inputCost, err := parseOptionalFloatEnv("MODEL_INPUT_TOKEN_COST")
	if err != nil {
		return InterviewConfig{}, err
	}
	outputCost, err := parseOptionalFloatEnv("MODEL_OUTPUT_TOKEN_COST")
	if err != nil {
		return InterviewConfig{}, err
	}
	in := 0.000003
	out := 0.000015
	if inputCost != nil {
		in = *inputCost
	}
	if outputCost != nil {
		out = *outputCost
	}

	return InterviewConfig{
		MaxContextMessages: window,
		ExtractionInterval: extractEvery,
		DefaultVoice:       getEnvOrDefault("DEFAULT_VOICE", voice.DefaultPreset),
		DefaultSpeechRate:  rate,
		ProviderTimeout:    time.Duration(timeoutSeconds) * time.Second,
		InputTokenCost:     in,
		OutputTokenCost:    out,
	}, nil
}

// PathsConfig locates durable data on disk.
type PathsConfig struct {
	DataDir       string
	DatabasePath  string
	AudioCacheDir string
	TokensFile    string
	ExportsDir    string
}

func loadPathsConfig() PathsConfig {
	dataDir := getEnvOrDefault("DATA_DIR", "./data")

	return PathsConfig{
		DataDir:       dataDir,
		DatabasePath:  getEnvOrDefault("DATABASE_PATH", filepath.Join(dataDir, "interviews.db")),
		AudioCacheDir: getEnvOrDefault("AUDIO_CACHE_DIR", filepath.Join(dataDir, "audio_cache")),
		TokensFile:    getEnvOrDefault("TOKENS_FILE", filepath.Join(dataDir, "tokens.json")),
		ExportsDir:    getEnvOrDefault("EXPORTS_DIR", filepath.Join(dataDir, "exports")),
	}
}

// EnsureDirectories creates the data directories if they are missing.
func (p PathsConfig) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.AudioCacheDir, p.ExportsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// AuthConfig gates API access behind bearer tokens.
type AuthConfig struct {
	Required bool
}

func loadAuthConfig() (AuthConfig, error) {
	required, err := parseBoolEnv("REQUIRE_AUTH", true)
	if err != nil {
		return AuthConfig{}, err
	}
	return AuthConfig{Required: required}, nil
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
