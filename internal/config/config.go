package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone     = "UTC"
	configPathEnv       = "GRADEPIPE_CONFIG"
	workspaceEnv        = "GRADEPIPE_WORKSPACE"
	logLevelEnv         = "LOG_LEVEL"
	openAIAPIKeyEnv     = "OPENAI_API_KEY"
	openAIModelEnv      = "OPENAI_MODEL"
	geminiAPIKeyEnv     = "GEMINI_API_KEY"
	geminiModelEnv      = "GEMINI_MODEL"
	databaseDSNEnv      = "DATABASE_DSN"
	redisAddrEnv        = "REDIS_ADDR"
	redisPasswordEnv    = "REDIS_PASSWORD"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv   = "TELEGRAM_CHAT_ID"
	defaultFooter       = "This was graded by AI and submitted after human review."
	defaultThreshold    = 0.7
	defaultConcurrency  = 4
	defaultGraderTokens = 1000
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Workspace     WorkspaceConfig    `yaml:"workspace"`
	LMS           LMSConfig          `yaml:"lms"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Materializer  MaterializerConfig `yaml:"materializer"`
	Grader        GraderConfig       `yaml:"grader"`
	Reviewer      ReviewerConfig     `yaml:"reviewer"`
	Export        ExportConfig       `yaml:"export"`
	Progress      ProgressConfig     `yaml:"progress"`
	Notifications NotificationConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// LoggingConfig selects the slog level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// WorkspaceConfig is where downloads, merged documents and exports live.
type WorkspaceConfig struct {
	Root string `yaml:"root" validate:"required"`
}

// LMSConfig points at the directory-backed LMS export.
type LMSConfig struct {
	Root string `yaml:"root" validate:"required"`
}

// PipelineConfig tunes the batch orchestrator.
type PipelineConfig struct {
	Concurrency           int           `yaml:"concurrency" validate:"min=1,max=64"`
	SubstitutionThreshold float64       `yaml:"substitutionThreshold" validate:"gt=0,lte=1"`
	GradeMissingAsZero    bool          `yaml:"gradeMissingAsZero"`
	FeedbackFooter        string        `yaml:"feedbackFooter"`
	SubmitterTimeout      time.Duration `yaml:"submitterTimeout"`
	Filter                string        `yaml:"filter" validate:"omitempty,oneof=submitted late all"`
}

// MaterializerConfig names the external document tools.
type MaterializerConfig struct {
	LibreOffice ConverterConfig `yaml:"libreoffice"`
	Pandoc      ConverterConfig `yaml:"pandoc"`
	OCR         OCRConfig       `yaml:"ocr"`
}

// ConverterConfig describes one conversion binary.
type ConverterConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Binary    string        `yaml:"binary"`
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
	RetryWait time.Duration `yaml:"retryWait"`
}

// OCRConfig describes page rendering and recognition binaries.
type OCRConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Renderer   string `yaml:"renderer"`
	Recognizer string `yaml:"recognizer"`
	PSM        int    `yaml:"psm"`
}

// GraderConfig defines how to contact the OpenAI-compatible grader.
type GraderConfig struct {
	Endpoint  string        `yaml:"endpoint" validate:"required,url"`
	Model     string        `yaml:"model" validate:"required"`
	APIKey    string        `yaml:"apiKey"`
	MaxTokens int           `yaml:"maxTokens"`
	Timeout   time.Duration `yaml:"timeout"`
	Vision    VisionConfig  `yaml:"vision"`
}

// VisionConfig controls page-image grading.
type VisionConfig struct {
	Enabled  bool `yaml:"enabled"`
	MaxPages int  `yaml:"maxPages"`
	DPI      int  `yaml:"dpi"`
	MaxWidth int  `yaml:"maxWidth"`
}

// ReviewerConfig defines how to contact the Gemini-compatible reviewer.
type ReviewerConfig struct {
	BaseURL string        `yaml:"baseUrl" validate:"required,url"`
	Model   string        `yaml:"model" validate:"required"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
}

// ExportConfig selects where batch results are written.
type ExportConfig struct {
	Driver string `yaml:"driver" validate:"oneof=csv postgres mysql"`
	DSN    string `yaml:"dsn" validate:"required_unless=Driver csv"`
	Table  string `yaml:"table"`
}

// ProgressConfig enables remote progress publishing.
type ProgressConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig mirrors redis.Options fields we need.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// SchedulerConfig defines recurring batches for `watch`.
type SchedulerConfig struct {
	Interval    time.Duration  `yaml:"interval"`
	Timezone    string         `yaml:"timezone"`
	Assignments []string       `yaml:"assignments"`
	location    *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads .env and the YAML file named by GRADEPIPE_CONFIG (if any),
// applies environment overrides and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load without .env handling; an empty path means defaults only.
func LoadFile(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{logLevelEnv, &c.Logging.Level},
		{workspaceEnv, &c.Workspace.Root},
		{openAIAPIKeyEnv, &c.Grader.APIKey},
		{openAIModelEnv, &c.Grader.Model},
		{geminiAPIKeyEnv, &c.Reviewer.APIKey},
		{geminiModelEnv, &c.Reviewer.Model},
		{databaseDSNEnv, &c.Export.DSN},
		{redisAddrEnv, &c.Progress.Redis.Addr},
		{redisPasswordEnv, &c.Progress.Redis.Password},
		{telegramTokenEnv, &c.Notifications.Telegram.BotToken},
		{telegramChatIDEnv, &c.Notifications.Telegram.ChatID},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("config: unknown timezone %s: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Workspace: WorkspaceConfig{Root: "data"},
		LMS:       LMSConfig{Root: "lms"},
		Pipeline: PipelineConfig{
			Concurrency:           defaultConcurrency,
			SubstitutionThreshold: defaultThreshold,
			FeedbackFooter:        defaultFooter,
			SubmitterTimeout:      10 * time.Minute,
			Filter:                "submitted",
		},
		Materializer: MaterializerConfig{
			LibreOffice: ConverterConfig{Enabled: true, Binary: "soffice", Timeout: 60 * time.Second, Retries: 3, RetryWait: time.Second},
			Pandoc:      ConverterConfig{Enabled: true, Binary: "pandoc", Timeout: 60 * time.Second},
			OCR:         OCRConfig{Enabled: true, Renderer: "pdftoppm", Recognizer: "tesseract", PSM: 6},
		},
		Grader: GraderConfig{
			Endpoint:  "https://api.openai.com/v1/chat/completions",
			Model:     "gpt-4o-mini",
			MaxTokens: defaultGraderTokens,
			Timeout:   90 * time.Second,
			Vision:    VisionConfig{Enabled: true, MaxPages: 8, DPI: 150, MaxWidth: 1600},
		},
		Reviewer: ReviewerConfig{
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "gemini-2.5-flash-lite",
			Timeout: 120 * time.Second,
		},
		Export:    ExportConfig{Driver: "csv", Table: "grading_results"},
		Progress:  ProgressConfig{Redis: RedisConfig{Channel: "gradepipe:progress"}},
		Scheduler: SchedulerConfig{Interval: 24 * time.Hour, Timezone: defaultTimezone, location: tz},
	}
}
