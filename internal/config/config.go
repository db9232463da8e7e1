// File: internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort     string
	Environment    string
	LogLevel       string
	AllowedOrigins []string

	// Access tokens
	TokenSecret string
	TokenExpiry time.Duration

	// Durable store: "gorm" (DB_DRIVER sqlite or mysql) or "rest".
	StoreBackend string
	DBDriver     string
	DatabaseDSN  string
	StoreURL     string
	StoreAPIKey  string

	// Model provider
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	ModelAPI       string // "responses" or "chat_completions"
	ChatModel      string
	UtilityModel   string
	EmbeddingModel string

	// Retrieval
	PineconeAPIKey    string
	PineconeIndexHost string
	RetrievalTopK     int

	// Notifications
	NotifyAPIURL     string
	NotifyAPIKey     string
	NotifyTemplateID string
	NotifyFrom       string

	// Company cache, production only
	RedisURL string
	CacheTTL time.Duration

	// Background jobs
	RabbitURL   string
	RabbitQueue string
	WorkerCount int
	JobQueue    int

	// Chat pipeline
	ChatMaxMessages    int
	ChatHistoryLimit   int
	RateLimitPerMinute int
	RateLimitBurst     int
	ShutdownTimeout    time.Duration

	// StreamingBodies is read by the widget CLI; false forces SSE.
	StreamingBodies bool
}

// Load reads configuration from environment variables or .env file.
func Load() (*Config, error) {
	env := strings.ToLower(os.Getenv("ENV"))
	if env != "production" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found; continuing with environment variables")
		}
	}

	cfg := &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		Environment:    env,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		TokenSecret: getEnv("TOKEN_SECRET", ""),
		TokenExpiry: time.Duration(getEnvAsInt("TOKEN_EXPIRY", 86400)) * time.Second,

		StoreBackend: strings.ToLower(getEnv("STORE", "gorm")),
		DBDriver:     strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DatabaseDSN:  getEnv("DATABASE_DSN", ""),
		StoreURL:     getEnv("STORE_URL", ""),
		StoreAPIKey:  getEnv("STORE_API_KEY", ""),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ModelAPI:       strings.ToLower(getEnv("MODEL_API", "responses")),
		ChatModel:      getEnv("CHAT_MODEL", "gpt-4o-mini"),
		UtilityModel:   getEnv("OPENAI_UTILITY_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),

		PineconeAPIKey:    getEnv("PINECONE_API_KEY", ""),
		PineconeIndexHost: getEnv("PINECONE_INDEX_HOST", ""),
		RetrievalTopK:     getEnvAsInt("RAG_TOPK", 5),

		NotifyAPIURL:     getEnv("NOTIFY_API_URL", ""),
		NotifyAPIKey:     getEnv("NOTIFY_API_KEY", ""),
		NotifyTemplateID: getEnv("NOTIFY_TEMPLATE_ID", ""),
		NotifyFrom:       getEnv("NOTIFY_FROM", ""),

		RedisURL: getEnv("REDIS_URL", ""),
		CacheTTL: getEnvAsDuration("CACHE_TTL", 5*time.Minute),

		RabbitURL:   getEnv("RABBIT_URL", ""),
		RabbitQueue: getEnv("RABBIT_QUEUE", "chatwidget.email_capture"),
		WorkerCount: getEnvAsInt("WORKER_COUNT", 4),
		JobQueue:    getEnvAsInt("JOB_QUEUE_SIZE", 256),

		ChatMaxMessages:    getEnvAsInt("CHAT_MAX_MESSAGES", 50),
		ChatHistoryLimit:   getEnvAsInt("CHAT_HISTORY_LIMIT", 20),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		StreamingBodies:    getEnvAsBool("STREAMING_BODIES", true),
	}

	if cfg.TokenSecret == "" && !cfg.IsProduction() {
		log.Println("Warning: TOKEN_SECRET not set; using an insecure development secret")
		cfg.TokenSecret = "development-token-secret"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CacheEnabled reports whether company reads go through Redis. Caching is
// never used outside production.
func (c *Config) CacheEnabled() bool {
	return c.IsProduction() && c.RedisURL != ""
}

// RateLimitEnabled is false when RATE_LIMIT_PER_MINUTE is zero.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimitPerMinute > 0
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "gorm":
		if c.DBDriver != "sqlite" && c.DBDriver != "mysql" {
			return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
		}
	case "rest":
		if c.StoreURL == "" {
			return fmt.Errorf("STORE_URL is required when STORE=rest")
		}
	default:
		return fmt.Errorf("unsupported STORE %q", c.StoreBackend)
	}
	if c.ModelAPI != "responses" && c.ModelAPI != "chat_completions" {
		return fmt.Errorf("unsupported MODEL_API %q", c.ModelAPI)
	}

	// Validation for production environments
	if c.IsProduction() {
		missing := []string{}
		if c.TokenSecret == "" {
			missing = append(missing, "TOKEN_SECRET")
		}
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
		if c.PineconeAPIKey == "" {
			missing = append(missing, "PINECONE_API_KEY")
		}
		if c.NotifyAPIURL != "" && c.NotifyAPIKey == "" {
			missing = append(missing, "NOTIFY_API_KEY")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required production environment variables: %v", missing)
		}
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an env var as an integer, with a fallback.
func getEnvAsInt(key string, defaultValue int) int {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as integer. Using default value.", key)
		return defaultValue
	}
	return intValue
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(strValue); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Warning: could not parse env var %s as duration. Using default value.", key)
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as bool. Using default value.", key)
		return defaultValue
	}
	return b
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
