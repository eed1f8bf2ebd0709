package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Log        LogConfig
	CORS       CORSConfig
	Extraction ExtractionConfig
	OCR        OCRConfig
	Model      ModelConfig
	Duplicate  DuplicateConfig
	Lock       LockConfig
	Redis      RedisConfig
	Inbox      InboxConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"`
	StoreBackend string        `mapstructure:"store"`
}

// MaxUploadBytes returns the upload limit in bytes.
func (s *ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB << 20
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ExtractionConfig controls direct text extraction.
type ExtractionConfig struct {
	MinTextChars int `mapstructure:"min_text_chars"`
}

// OCRConfig controls the OCR fallback.
type OCRConfig struct {
	Engine        string `mapstructure:"engine"`
	PdftoppmPath  string `mapstructure:"pdftoppm_path"`
	TesseractPath string `mapstructure:"tesseract_path"`
	TessdataDir   string `mapstructure:"tessdata_dir"`
	Language      string `mapstructure:"language"`
	DPI           int    `mapstructure:"dpi"`
	MaxPages      int    `mapstructure:"max_pages"`
	Enhance       bool   `mapstructure:"enhance"`
	TimeoutSecs   int    `mapstructure:"timeout_secs"`
	AzureEndpoint string `mapstructure:"azure_endpoint"`
	AzureKey      string `mapstructure:"azure_key"`
}

// Timeout returns the OCR deadline.
func (o *OCRConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSecs) * time.Second
}

// ModelConfig selects and tunes the generative model used for extraction.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Endpoint    string  `mapstructure:"endpoint"`
	Name        string  `mapstructure:"name"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float64 `mapstructure:"temperature"`
	TimeoutSecs int     `mapstructure:"timeout_secs"`
}

// Timeout returns the model call deadline.
func (m *ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSecs) * time.Second
}

// DuplicateConfig holds duplicate detection weights and limits.
type DuplicateConfig struct {
	ExactWeight    int `mapstructure:"exact_weight"`
	PartialWeight  int `mapstructure:"partial_weight"`
	QuantityWeight int `mapstructure:"quantity_weight"`
	MinScore       int `mapstructure:"min_score"`
	MaxResults     int `mapstructure:"max_results"`
	LookbackHours  int `mapstructure:"lookback_hours"`
}

// LockConfig selects the per-natural-key lock backend.
type LockConfig struct {
	Backend      string        `mapstructure:"backend"`
	TTL          time.Duration `mapstructure:"ttl"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	RetryCount   int           `mapstructure:"retry_count"`
}

// RedisConfig holds Redis connection settings for the distributed locker.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// InboxConfig controls the directory inbox worker.
type InboxConfig struct {
	Dir          string        `mapstructure:"dir"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Concurrency  int           `mapstructure:"concurrency"`
}

var (
	knownProviders  = map[string]bool{"ollama": true, "openai": true}
	knownOCREngines = map[string]bool{"tesseract": true, "azure": true}
	knownLockers    = map[string]bool{"local": true, "redis": true}
	knownStores     = map[string]bool{"postgres": true, "memory": true}
)

// Validate checks the loaded values for internal consistency.
func (c *Config) Validate() error {
	var errs []error
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		errs = append(errs, fmt.Errorf("model.temperature must be within [0,1], got %v", c.Model.Temperature))
	}
	if c.Model.TimeoutSecs <= 0 {
		errs = append(errs, errors.New("model.timeout_secs must be positive"))
	}
	if c.OCR.TimeoutSecs <= 0 {
		errs = append(errs, errors.New("ocr.timeout_secs must be positive"))
	}
	if !knownProviders[c.Model.Provider] {
		errs = append(errs, fmt.Errorf("unknown model.provider %q", c.Model.Provider))
	}
	if !knownOCREngines[c.OCR.Engine] {
		errs = append(errs, fmt.Errorf("unknown ocr.engine %q", c.OCR.Engine))
	}
	if c.OCR.Engine == "azure" && (c.OCR.AzureEndpoint == "" || c.OCR.AzureKey == "") {
		errs = append(errs, errors.New("ocr.azure_endpoint and ocr.azure_key are required for the azure engine"))
	}
	if !knownLockers[c.Lock.Backend] {
		errs = append(errs, fmt.Errorf("unknown lock.backend %q", c.Lock.Backend))
	}
	if !knownStores[c.Server.StoreBackend] {
		errs = append(errs, fmt.Errorf("unknown server.store %q", c.Server.StoreBackend))
	}
	if c.Extraction.MinTextChars < 1 {
		errs = append(errs, errors.New("extraction.min_text_chars must be at least 1"))
	}
	if c.Inbox.Concurrency < 1 {
		errs = append(errs, errors.New("inbox.concurrency must be at least 1"))
	}
	if c.Duplicate.MaxResults < 1 {
		errs = append(errs, errors.New("duplicate.max_results must be at least 1"))
	}
	return errors.Join(errs...)
}

// Load reads configuration from environment variables with the MEDORDERS_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEDORDERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "180s")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("server.store", "postgres")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "medorders")
	v.SetDefault("db.password", "medorders_secret")
	v.SetDefault("db.name", "medorders")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000,http://localhost:5173")

	v.SetDefault("extraction.min_text_chars", 10)

	// OCR defaults
	v.SetDefault("ocr.engine", "tesseract")
	v.SetDefault("ocr.pdftoppm_path", "pdftoppm")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.tessdata_dir", "")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.max_pages", 0)
	v.SetDefault("ocr.enhance", false)
	v.SetDefault("ocr.timeout_secs", 120)
	v.SetDefault("ocr.azure_endpoint", "")
	v.SetDefault("ocr.azure_key", "")

	// Model defaults
	v.SetDefault("model.provider", "ollama")
	v.SetDefault("model.endpoint", "http://localhost:11434")
	v.SetDefault("model.name", "llama3.1:8b")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.temperature", 0.1)
	v.SetDefault("model.timeout_secs", 120)

	// Duplicate detection defaults
	v.SetDefault("duplicate.exact_weight", 3)
	v.SetDefault("duplicate.partial_weight", 2)
	v.SetDefault("duplicate.quantity_weight", 1)
	v.SetDefault("duplicate.min_score", 2)
	v.SetDefault("duplicate.max_results", 5)
	v.SetDefault("duplicate.lookback_hours", 0)

	// Lock defaults
	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.ttl", "30s")
	v.SetDefault("lock.retry_backoff", "100ms")
	v.SetDefault("lock.retry_count", 50)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("inbox.dir", "")
	v.SetDefault("inbox.poll_interval", "5s")
	v.SetDefault("inbox.concurrency", 2)

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":               "MEDORDERS_SERVER_PORT",
		"server.read_timeout":       "MEDORDERS_SERVER_READ_TIMEOUT",
		"server.write_timeout":      "MEDORDERS_SERVER_WRITE_TIMEOUT",
		"server.environment":        "MEDORDERS_SERVER_ENVIRONMENT",
		"server.max_upload_mb":      "MEDORDERS_SERVER_MAX_UPLOAD_MB",
		"server.store":              "MEDORDERS_SERVER_STORE",
		"db.host":                   "MEDORDERS_DB_HOST",
		"db.port":                   "MEDORDERS_DB_PORT",
		"db.user":                   "MEDORDERS_DB_USER",
		"db.password":               "MEDORDERS_DB_PASSWORD",
		"db.name":                   "MEDORDERS_DB_NAME",
		"db.sslmode":                "MEDORDERS_DB_SSLMODE",
		"db.max_open":               "MEDORDERS_DB_MAX_OPEN",
		"db.max_idle":               "MEDORDERS_DB_MAX_IDLE",
		"log.level":                 "MEDORDERS_LOG_LEVEL",
		"log.format":                "MEDORDERS_LOG_FORMAT",
		"cors.allowed_origins":      "MEDORDERS_CORS_ALLOWED_ORIGINS",
		"extraction.min_text_chars": "MEDORDERS_EXTRACTION_MIN_TEXT_CHARS",
		"ocr.engine":                "MEDORDERS_OCR_ENGINE",
		"ocr.pdftoppm_path":         "MEDORDERS_OCR_PDFTOPPM_PATH",
		"ocr.tesseract_path":        "MEDORDERS_OCR_TESSERACT_PATH",
		"ocr.tessdata_dir":          "MEDORDERS_OCR_TESSDATA_DIR",
		"ocr.language":              "MEDORDERS_OCR_LANGUAGE",
		"ocr.dpi":                   "MEDORDERS_OCR_DPI",
		"ocr.max_pages":             "MEDORDERS_OCR_MAX_PAGES",
		"ocr.enhance":               "MEDORDERS_OCR_ENHANCE",
		"ocr.timeout_secs":          "MEDORDERS_OCR_TIMEOUT_SECS",
		"ocr.azure_endpoint":        "MEDORDERS_OCR_AZURE_ENDPOINT",
		"ocr.azure_key":             "MEDORDERS_OCR_AZURE_KEY",
		"model.provider":            "MEDORDERS_MODEL_PROVIDER",
		"model.endpoint":            "MEDORDERS_MODEL_ENDPOINT",
		"model.name":                "MEDORDERS_MODEL_NAME",
		"model.api_key":             "MEDORDERS_MODEL_API_KEY",
		"model.temperature":         "MEDORDERS_MODEL_TEMPERATURE",
		"model.timeout_secs":        "MEDORDERS_MODEL_TIMEOUT_SECS",
		"duplicate.exact_weight":    "MEDORDERS_DUPLICATE_EXACT_WEIGHT",
		"duplicate.partial_weight":  "MEDORDERS_DUPLICATE_PARTIAL_WEIGHT",
		"duplicate.quantity_weight": "MEDORDERS_DUPLICATE_QUANTITY_WEIGHT",
		"duplicate.min_score":       "MEDORDERS_DUPLICATE_MIN_SCORE",
		"duplicate.max_results":     "MEDORDERS_DUPLICATE_MAX_RESULTS",
		"duplicate.lookback_hours":  "MEDORDERS_DUPLICATE_LOOKBACK_HOURS",
		"lock.backend":              "MEDORDERS_LOCK_BACKEND",
		"lock.ttl":                  "MEDORDERS_LOCK_TTL",
		"lock.retry_backoff":        "MEDORDERS_LOCK_RETRY_BACKOFF",
		"lock.retry_count":          "MEDORDERS_LOCK_RETRY_COUNT",
		"redis.addr":                "MEDORDERS_REDIS_ADDR",
		"redis.password":            "MEDORDERS_REDIS_PASSWORD",
		"redis.db":                  "MEDORDERS_REDIS_DB",
		"inbox.dir":                 "MEDORDERS_INBOX_DIR",
		"inbox.poll_interval":       "MEDORDERS_INBOX_POLL_INTERVAL",
		"inbox.concurrency":         "MEDORDERS_INBOX_CONCURRENCY",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Container platforms set PORT. Use it if MEDORDERS_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("MEDORDERS_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
		MaxUploadMB:  v.GetInt64("server.max_upload_mb"),
		StoreBackend: v.GetString("server.store"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{AllowedOrigins: corsOrigins}

	cfg.Extraction = ExtractionConfig{
		MinTextChars: v.GetInt("extraction.min_text_chars"),
	}
	cfg.OCR = OCRConfig{
		Engine:        v.GetString("ocr.engine"),
		PdftoppmPath:  v.GetString("ocr.pdftoppm_path"),
		TesseractPath: v.GetString("ocr.tesseract_path"),
		TessdataDir:   v.GetString("ocr.tessdata_dir"),
		Language:      v.GetString("ocr.language"),
		DPI:           v.GetInt("ocr.dpi"),
		MaxPages:      v.GetInt("ocr.max_pages"),
		Enhance:       v.GetBool("ocr.enhance"),
		TimeoutSecs:   v.GetInt("ocr.timeout_secs"),
		AzureEndpoint: v.GetString("ocr.azure_endpoint"),
		AzureKey:      v.GetString("ocr.azure_key"),
	}
	cfg.Model = ModelConfig{
		Provider:    v.GetString("model.provider"),
		Endpoint:    v.GetString("model.endpoint"),
		Name:        v.GetString("model.name"),
		APIKey:      v.GetString("model.api_key"),
		Temperature: v.GetFloat64("model.temperature"),
		TimeoutSecs: v.GetInt("model.timeout_secs"),
	}
	cfg.Duplicate = DuplicateConfig{
		ExactWeight:    v.GetInt("duplicate.exact_weight"),
		PartialWeight:  v.GetInt("duplicate.partial_weight"),
		QuantityWeight: v.GetInt("duplicate.quantity_weight"),
		MinScore:       v.GetInt("duplicate.min_score"),
		MaxResults:     v.GetInt("duplicate.max_results"),
		LookbackHours:  v.GetInt("duplicate.lookback_hours"),
	}
	cfg.Lock = LockConfig{
		Backend:      v.GetString("lock.backend"),
		TTL:          v.GetDuration("lock.ttl"),
		RetryBackoff: v.GetDuration("lock.retry_backoff"),
		RetryCount:   v.GetInt("lock.retry_count"),
	}
	cfg.Redis = RedisConfig{
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}
	cfg.Inbox = InboxConfig{
		Dir:          v.GetString("inbox.dir"),
		PollInterval: v.GetDuration("inbox.poll_interval"),
		Concurrency:  v.GetInt("inbox.concurrency"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
