package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       App       `mapstructure:"app"`
	Database  Database  `mapstructure:"database"`
	AI        AI        `mapstructure:"ai"`
	Content   Content   `mapstructure:"content"`
	Affiliate Affiliate `mapstructure:"affiliate"`
	Trends    Trends    `mapstructure:"trends"`
	Image     Image     `mapstructure:"image"`
	Retry     Retry     `mapstructure:"retry"`
	Schedule  Schedule  `mapstructure:"schedule"`
	Lock      Lock      `mapstructure:"lock"`
	Server    Server    `mapstructure:"server"`
	Logging   Logging   `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	SiteName   string `mapstructure:"site_name"`
	SiteDomain string `mapstructure:"site_domain"`
	Author     string `mapstructure:"author"`
	DataDir    string `mapstructure:"data_dir"`
	ConfigFile string `mapstructure:"config_file"`
}

// Database selects the relational store
type Database struct {
	Driver          string `mapstructure:"driver"` // sqlite3 or postgres
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     string  `mapstructure:"timeout"`
	MaxTokens   int32   `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// OpenAIConfig holds OpenAI image generation configuration
type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	ImageModel string `mapstructure:"image_model"`
	BaseURL    string `mapstructure:"base_url"`
	Timeout    string `mapstructure:"timeout"`
}

// Content holds article generation and dedup settings
type Content struct {
	PostsPerCycle      int     `mapstructure:"posts_per_cycle"`
	MinWordCount       int     `mapstructure:"min_word_count"`
	MaxWordCount       int     `mapstructure:"max_word_count"`
	WordCountTolerance float64 `mapstructure:"word_count_tolerance"`
	WordCountPolicy    string  `mapstructure:"word_count_policy"` // accept, retry or reject
	TitleSimilarity    float64 `mapstructure:"title_similarity"`
	TopicSimilarity    float64 `mapstructure:"topic_similarity"`
	WordOverlap        float64 `mapstructure:"word_overlap"`
	FallbackTopicsFile string  `mapstructure:"fallback_topics_file"`
}

// Affiliate holds link injection settings
type Affiliate struct {
	MaxLinksPerArticle int `mapstructure:"max_links_per_article"`
}

// Trends holds topic discovery settings
type Trends struct {
	Enabled         bool     `mapstructure:"enabled"`
	FeedURL         string   `mapstructure:"feed_url"`
	Geos            []string `mapstructure:"geos"`
	RateLimit       string   `mapstructure:"rate_limit"`
	MaxResults      int      `mapstructure:"max_results"`
	DefaultCategory string   `mapstructure:"default_category"`
	Timeout         string   `mapstructure:"timeout"`
}

// Image holds featured image settings
type Image struct {
	Enabled        bool          `mapstructure:"enabled"`
	Sources        []string      `mapstructure:"sources"` // dalle, unsplash, google
	RequestSize    string        `mapstructure:"request_size"`
	MaxWidth       int           `mapstructure:"max_width"`
	Quality        int           `mapstructure:"quality"`
	PlaceholderURL string        `mapstructure:"placeholder_url"`
	Storage        string        `mapstructure:"storage"` // filesystem or minio
	LocalDir       string        `mapstructure:"local_dir"`
	PublicBaseURL  string        `mapstructure:"public_base_url"`
	Unsplash       UnsplashImage `mapstructure:"unsplash"`
	Google         GoogleImage   `mapstructure:"google"`
	MinIO          MinIO         `mapstructure:"minio"`
}

// UnsplashImage holds Unsplash search credentials
type UnsplashImage struct {
	AccessKey string `mapstructure:"access_key"`
}

// GoogleImage holds Google Custom Search credentials for image search
type GoogleImage struct {
	APIKey   string `mapstructure:"api_key"`
	SearchID string `mapstructure:"search_id"`
}

// MinIO holds object storage settings
type MinIO struct {
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Bucket        string `mapstructure:"bucket"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// Retry gates bounded retries of transport failures
type Retry struct {
	Enabled        bool    `mapstructure:"enabled"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
	InitialBackoff string  `mapstructure:"initial_backoff"`
	MaxBackoff     string  `mapstructure:"max_backoff"`
	Multiplier     float64 `mapstructure:"multiplier"`
}

// Schedule holds the daily run time
type Schedule struct {
	Hour       int  `mapstructure:"hour"`
	Minute     int  `mapstructure:"minute"`
	RunOnStart bool `mapstructure:"run_on_start"`
}

// Lock holds cross-run advisory lock settings
type Lock struct {
	Backend string    `mapstructure:"backend"` // database, redis or none
	TTL     string    `mapstructure:"ttl"`
	Redis   RedisLock `mapstructure:"redis"`
}

// RedisLock holds Redis connection settings
type RedisLock struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Server holds HTTP trigger settings
type Server struct {
	Address string `mapstructure:"address"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".blogwire")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// Reset clears the cached configuration and viper state. Used by tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.site_name", "Blog Wire")
	viper.SetDefault("app.author", "Ryan Pate")
	viper.SetDefault("app.data_dir", ".blogwire")

	viper.SetDefault("database.driver", "sqlite3")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.timeout", "120s")
	viper.SetDefault("ai.gemini.max_tokens", 16384)
	viper.SetDefault("ai.gemini.temperature", 0.8)
	viper.SetDefault("ai.openai.image_model", "gpt-image-1")
	viper.SetDefault("ai.openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("ai.openai.timeout", "60s")

	viper.SetDefault("content.posts_per_cycle", 1)
	viper.SetDefault("content.min_word_count", 2000)
	viper.SetDefault("content.max_word_count", 3500)
	viper.SetDefault("content.word_count_tolerance", 0.1)
	viper.SetDefault("content.word_count_policy", "retry")
	viper.SetDefault("content.title_similarity", 0.75)
	viper.SetDefault("content.topic_similarity", 0.70)
	viper.SetDefault("content.word_overlap", 0.6)
	viper.SetDefault("content.fallback_topics_file", "custom_topics.txt")

	viper.SetDefault("affiliate.max_links_per_article", 3)

	viper.SetDefault("trends.enabled", true)
	viper.SetDefault("trends.feed_url", "https://trends.google.com/trending/rss")
	viper.SetDefault("trends.geos", []string{"US"})
	viper.SetDefault("trends.rate_limit", "1s")
	viper.SetDefault("trends.max_results", 20)
	viper.SetDefault("trends.default_category", "trending")
	viper.SetDefault("trends.timeout", "15s")

	viper.SetDefault("image.enabled", true)
	viper.SetDefault("image.sources", []string{"dalle"})
	viper.SetDefault("image.request_size", "1024x1024")
	viper.SetDefault("image.max_width", 1200)
	viper.SetDefault("image.quality", 85)
	viper.SetDefault("image.storage", "filesystem")
	viper.SetDefault("image.local_dir", "static/images/blog")
	viper.SetDefault("image.public_base_url", "/static/images/blog")
	viper.SetDefault("image.minio.bucket", "blogwire-images")

	viper.SetDefault("retry.enabled", false)
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.initial_backoff", "1s")
	viper.SetDefault("retry.max_backoff", "30s")
	viper.SetDefault("retry.multiplier", 2.0)

	viper.SetDefault("schedule.hour", 8)
	viper.SetDefault("schedule.minute", 0)
	viper.SetDefault("schedule.run_on_start", true)

	viper.SetDefault("lock.backend", "database")
	viper.SetDefault("lock.ttl", "2h")
	viper.SetDefault("lock.redis.addr", "localhost:6379")

	viper.SetDefault("server.address", ":5001")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("ai.openai.api_key", []string{
		"OPENAI_API_KEY",
	})

	bindEnvKeys("image.unsplash.access_key", []string{
		"UNSPLASH_ACCESS_KEY",
	})

	bindEnvKeys("image.google.api_key", []string{
		"GOOGLE_CUSTOM_SEARCH_API_KEY",
		"GOOGLE_CSE_API_KEY",
	})

	bindEnvKeys("image.google.search_id", []string{
		"GOOGLE_CUSTOM_SEARCH_ID",
		"GOOGLE_CSE_ID",
	})

	bindEnvKeys("image.minio.endpoint", []string{"MINIO_ENDPOINT"})
	bindEnvKeys("image.minio.access_key", []string{"MINIO_ACCESS_KEY", "MINIO_ROOT_USER"})
	bindEnvKeys("image.minio.secret_key", []string{"MINIO_SECRET_KEY", "MINIO_ROOT_PASSWORD"})

	bindEnvKeys("lock.redis.addr", []string{"REDIS_ADDRESS", "REDIS_ADDR"})
	bindEnvKeys("lock.redis.password", []string{"REDIS_PASSWORD"})

	bindEnvKeys("app.site_domain", []string{"SITE_DOMAIN"})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"BLOGWIRE_DEBUG",
	})

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		viper.Set("database.driver", "postgres")
		viper.Set("database.dsn", normalizePostgresURL(dsn))
	}
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// normalizePostgresURL rewrites the legacy postgres:// scheme some hosts still hand out.
func normalizePostgresURL(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") {
		return "postgresql://" + strings.TrimPrefix(dsn, "postgres://")
	}
	return dsn
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.Image.LocalDir != "" {
		config.Image.LocalDir = expandPath(config.Image.LocalDir)
	}
	if config.Content.FallbackTopicsFile != "" {
		config.Content.FallbackTopicsFile = expandPath(config.Content.FallbackTopicsFile)
	}

	if config.Database.DSN == "" && config.Database.Driver == "sqlite3" {
		config.Database.DSN = filepath.Join(config.App.DataDir, "blogwire.db")
	}

	durations := map[string]string{
		"database.conn_max_lifetime": config.Database.ConnMaxLifetime,
		"ai.gemini.timeout":          config.AI.Gemini.Timeout,
		"ai.openai.timeout":          config.AI.OpenAI.Timeout,
		"trends.rate_limit":          config.Trends.RateLimit,
		"trends.timeout":             config.Trends.Timeout,
		"retry.initial_backoff":      config.Retry.InitialBackoff,
		"retry.max_backoff":          config.Retry.MaxBackoff,
		"lock.ttl":                   config.Lock.TTL,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures configuration values are coherent.
// API keys are checked by the clients that need them so that offline commands keep working.
func validateConfig(config *Config) error {
	var errors []string

	switch config.Database.Driver {
	case "sqlite3", "postgres":
	default:
		errors = append(errors, fmt.Sprintf("Unknown database driver: %s. Supported: sqlite3, postgres", config.Database.Driver))
	}
	if config.Database.Driver == "postgres" && config.Database.DSN == "" {
		errors = append(errors, "Postgres requires a DSN. Set DATABASE_URL or database.dsn")
	}

	c := config.Content
	if c.MinWordCount <= 0 || c.MaxWordCount < c.MinWordCount {
		errors = append(errors, fmt.Sprintf("Invalid word count range: [%d, %d]", c.MinWordCount, c.MaxWordCount))
	}
	if c.WordCountTolerance < 0 || c.WordCountTolerance >= 1 {
		errors = append(errors, fmt.Sprintf("content.word_count_tolerance must be in [0, 1): %v", c.WordCountTolerance))
	}
	switch c.WordCountPolicy {
	case "accept", "retry", "reject":
	default:
		errors = append(errors, fmt.Sprintf("Unknown word count policy: %s. Supported: accept, retry, reject", c.WordCountPolicy))
	}
	if c.PostsPerCycle < 1 {
		errors = append(errors, "content.posts_per_cycle must be at least 1")
	}

	if config.Affiliate.MaxLinksPerArticle < 0 {
		errors = append(errors, "affiliate.max_links_per_article cannot be negative")
	}

	if config.Image.MaxWidth <= 0 {
		errors = append(errors, "image.max_width must be positive")
	}
	if config.Image.Quality < 1 || config.Image.Quality > 100 {
		errors = append(errors, fmt.Sprintf("image.quality must be between 1 and 100: %d", config.Image.Quality))
	}
	switch config.Image.Storage {
	case "filesystem":
	case "minio":
		if config.Image.MinIO.Endpoint == "" || config.Image.MinIO.Bucket == "" {
			errors = append(errors, "MinIO storage requires endpoint and bucket. Set MINIO_ENDPOINT and image.minio.bucket")
		}
	default:
		errors = append(errors, fmt.Sprintf("Unknown image storage: %s. Supported: filesystem, minio", config.Image.Storage))
	}
	for _, src := range config.Image.Sources {
		switch src {
		case "dalle", "unsplash", "google":
		default:
			errors = append(errors, fmt.Sprintf("Unknown image source: %s. Supported: dalle, unsplash, google", src))
		}
	}

	switch config.Lock.Backend {
	case "database", "redis", "none":
	default:
		errors = append(errors, fmt.Sprintf("Unknown lock backend: %s. Supported: database, redis, none", config.Lock.Backend))
	}

	if config.Schedule.Hour < 0 || config.Schedule.Hour > 23 || config.Schedule.Minute < 0 || config.Schedule.Minute > 59 {
		errors = append(errors, fmt.Sprintf("Invalid schedule time %02d:%02d", config.Schedule.Hour, config.Schedule.Minute))
	}

	if config.Retry.Enabled && config.Retry.MaxAttempts < 1 {
		errors = append(errors, "retry.max_attempts must be at least 1 when retry is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Duration parses a duration value that already passed postProcessConfig.
// Empty values fall back to def.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// WordCountBounds returns the inclusive word count range after applying the tolerance.
func (c Content) WordCountBounds() (int, int) {
	lo := int(math.Round(float64(c.MinWordCount) * (1 - c.WordCountTolerance)))
	hi := int(math.Round(float64(c.MaxWordCount) * (1 + c.WordCountTolerance)))
	return lo, hi
}

// Convenience getters for commonly used configuration values
func GetApp() App             { return Get().App }
func GetDatabase() Database   { return Get().Database }
func GetAI() AI               { return Get().AI }
func GetContent() Content     { return Get().Content }
func GetImage() Image         { return Get().Image }
func GetLogging() Logging     { return Get().Logging }
func GetGeminiAPIKey() string { return Get().AI.Gemini.APIKey }
func GetOpenAIAPIKey() string { return Get().AI.OpenAI.APIKey }
func IsDebugMode() bool       { return Get().App.Debug }
