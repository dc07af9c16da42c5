// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendBigQuery = "bigquery"
)

// Model providers for extraction and speech-to-text.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Config holds every setting used by the binaries. Each binary validates
// only what it needs.
type Config struct {
	// Store
	StoreBackend string
	SQLitePath   string
	BQProject    string
	BQDataset    string

	// Models
	LLMProvider    string
	STTProvider    string
	OpenAIAPIKey   string
	OpenAITxnModel string
	OpenAISTTModel string
	GeminiModel    string
	GeminiSTTModel string

	// Limits
	MaxVoiceSeconds int
	MaxVoicePerDay  int

	// Locale
	Currency       string
	CurrencySymbol string
	PromptTimezone string
	UsageTimezone  string

	// Timeouts
	ExtractionTimeout    time.Duration
	TranscriptionTimeout time.Duration
	DownloadTimeout      time.Duration

	// Transports
	TelegramBotToken string
	ShortcutSecret   string
	APIToken         string
	Port             string

	// Optional integrations
	VoiceArchiveBucket string
	NotionToken        string
	NotionDatabaseID   string

	// Workers
	WorkerCount int
	QueueSize   int

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup, which has the signature
// of os.LookupEnv.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	env := envReader{lookup: lookup}

	cfg := &Config{
		StoreBackend: strings.ToLower(env.str("STORE_BACKEND", BackendSQLite)),
		SQLitePath:   env.str("SQLITE_PATH", "finance.db"),
		BQProject:    env.str("BQ_PROJECT", ""),
		BQDataset:    env.str("BQ_DATASET", "finance"),

		LLMProvider:    strings.ToLower(env.str("LLM_PROVIDER", ProviderOpenAI)),
		STTProvider:    strings.ToLower(env.str("STT_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:   env.str("OPENAI_API_KEY", ""),
		OpenAITxnModel: env.str("OPENAI_TXN_MODEL", "gpt-4o-mini"),
		OpenAISTTModel: env.str("OPENAI_STT_MODEL", "whisper-1"),
		GeminiModel:    env.str("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiSTTModel: env.str("GEMINI_STT_MODEL", "gemini-2.5-flash"),

		MaxVoiceSeconds: env.intVal("MAX_VOICE_SECONDS", 30),
		MaxVoicePerDay:  env.intVal("MAX_VOICE_PER_DAY", 20),

		Currency:       env.str("CURRENCY", "INR"),
		CurrencySymbol: env.str("CURRENCY_SYMBOL", "₹"),
		PromptTimezone: env.str("PROMPT_TIMEZONE", "Asia/Kolkata"),
		UsageTimezone:  env.str("USAGE_TIMEZONE", "UTC"),

		ExtractionTimeout:    env.duration("EXTRACTION_TIMEOUT", 8*time.Second),
		TranscriptionTimeout: env.duration("TRANSCRIPTION_TIMEOUT", 30*time.Second),
		DownloadTimeout:      env.duration("DOWNLOAD_TIMEOUT", 20*time.Second),

		TelegramBotToken: env.str("TELEGRAM_BOT_TOKEN", ""),
		ShortcutSecret:   env.str("SHORTCUT_SECRET", ""),
		APIToken:         env.str("API_TOKEN", ""),
		Port:             env.str("PORT", "8080"),

		VoiceArchiveBucket: env.str("VOICE_ARCHIVE_BUCKET", ""),
		NotionToken:        env.str("NOTION_TOKEN", ""),
		NotionDatabaseID:   env.str("NOTION_DATABASE_ID", ""),

		WorkerCount: env.intVal("WORKER_COUNT", 5),
		QueueSize:   env.intVal("QUEUE_SIZE", 100),

		LogLevel:  env.str("LOG_LEVEL", "info"),
		LogFormat: env.str("LOG_FORMAT", "console"),
	}

	if len(env.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(env.errs...))
	}
	return cfg, nil
}

// Validate checks settings shared by every binary.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendBigQuery:
		if c.BQProject == "" || c.BQDataset == "" {
			errs = append(errs, errors.New("BQ_PROJECT and BQ_DATASET are required for the bigquery backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not one of sqlite, bigquery", c.StoreBackend))
	}

	for name, p := range map[string]string{"LLM_PROVIDER": c.LLMProvider, "STT_PROVIDER": c.STTProvider} {
		switch p {
		case ProviderGemini, ProviderNone:
		case ProviderOpenAI:
			if c.OpenAIAPIKey == "" {
				errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required when %s=openai", name))
			}
		default:
			errs = append(errs, fmt.Errorf("%s %q is not one of gemini, openai, none", name, p))
		}
	}

	if c.MaxVoiceSeconds <= 0 {
		errs = append(errs, errors.New("MAX_VOICE_SECONDS must be positive"))
	}
	if c.MaxVoicePerDay < 0 {
		errs = append(errs, errors.New("MAX_VOICE_PER_DAY must not be negative"))
	}
	if c.WorkerCount <= 0 {
		errs = append(errs, errors.New("WORKER_COUNT must be positive"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("QUEUE_SIZE must be positive"))
	}
	for name, tz := range map[string]string{"PROMPT_TIMEZONE": c.PromptTimezone, "USAGE_TIMEZONE": c.UsageTimezone} {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if (c.NotionToken == "") != (c.NotionDatabaseID == "") {
		errs = append(errs, errors.New("NOTION_TOKEN and NOTION_DATABASE_ID must be set together"))
	}

	return errors.Join(errs...)
}

// ValidateBot checks settings required by the Telegram bot.
func (c *Config) ValidateBot() error {
	err := c.Validate()
	if c.TelegramBotToken == "" {
		err = errors.Join(err, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	return err
}

// ValidateAPI checks settings required by the HTTP API.
func (c *Config) ValidateAPI() error {
	err := c.Validate()
	if c.ShortcutSecret == "" {
		err = errors.Join(err, errors.New("SHORTCUT_SECRET is required"))
	}
	if c.Port == "" {
		err = errors.Join(err, errors.New("PORT is required"))
	}
	return err
}

// PromptLocation returns the timezone stated in the extraction prompt.
func (c *Config) PromptLocation() *time.Location {
	return loadLocation(c.PromptTimezone)
}

// UsageLocation returns the timezone that defines a usage day.
func (c *Config) UsageLocation() *time.Location {
	return loadLocation(c.UsageTimezone)
}

// NotionEnabled reports whether the Notion mirror is configured.
func (c *Config) NotionEnabled() bool {
	return c.NotionToken != "" && c.NotionDatabaseID != ""
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *envReader) intVal(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

// duration accepts Go durations ("8s") or a bare number of seconds.
func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
