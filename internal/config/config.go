package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	LLM           LLMConfig
	Transcription TranscriptionConfig
	Storage       StorageConfig
	MongoDB       MongoDBConfig
	Telegram      TelegramConfig
	JWT           JWTConfig
	S3            S3Config
	InfluxDB      InfluxDBConfig
	Prompts       PromptsConfig
	Log           LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	Host            string
	AuthIssueTokens bool // expose POST /auth/token (development only)
}

// LLM providers
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// LLMConfig holds the chat completion backend settings
type LLMConfig struct {
	Provider    string
	OpenAIKey   string
	OpenAIModel string
	OpenAIURL   string // Optional: OpenAI-compatible endpoint
	Temperature float64
	GeminiKey   string
	GeminiModel string
	Timeout     time.Duration
}

// TranscriptionConfig holds speech-to-text settings
type TranscriptionConfig struct {
	Model string
}

// Store backends
const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// StorageConfig selects the task repository and conversation store backends
type StorageConfig struct {
	TaskStore         string
	ConversationStore string
	SQLitePath        string
	DatabaseURL       string
}

// MongoDBConfig holds MongoDB connection details
type MongoDBConfig struct {
	URI                    string
	Username               string
	Password               string
	Host                   string
	Port                   string
	Database               string
	TaskCollection         string
	ConversationCollection string
	AuthSource             string // Database to authenticate against (default: admin)
}

// TelegramConfig holds bot settings. An empty token disables the bot.
type TelegramConfig struct {
	BotToken       string
	TimeoutSeconds int
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

// S3Config holds the voice archive bucket. An empty bucket disables archiving.
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional: for S3-compatible services like MinIO
}

// InfluxDBConfig holds turn metric export settings. An empty URL disables export.
type InfluxDBConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// PromptsConfig points at an optional prompt catalog overriding the built-in one
type PromptsConfig struct {
	File string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string // json or console
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8085"),
			Host:            getEnv("HOST", "0.0.0.0"),
			AuthIssueTokens: getEnvBool("AUTH_ISSUE_TOKENS", false),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
			OpenAIKey:   getEnv("OPENAI_API_KEY", ""),
			OpenAIModel: getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
			OpenAIURL:   getEnv("OPENAI_BASE_URL", ""),
			Temperature: getEnvFloat("OPENAI_TEMPERATURE", 0),
			GeminiKey:   getEnv("GEMINI_API_KEY", ""),
			GeminiModel: getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		},
		Transcription: TranscriptionConfig{
			Model: getEnv("WHISPER_MODEL", "whisper-1"),
		},
		Storage: StorageConfig{
			TaskStore:         strings.ToLower(getEnv("TASK_STORE", StoreMemory)),
			ConversationStore: strings.ToLower(getEnv("CONVERSATION_STORE", StoreMemory)),
			SQLitePath:        getEnv("SQLITE_PATH", "conversations.db"),
			DatabaseURL:       getEnv("DATABASE_URL", ""),
		},
		MongoDB: MongoDBConfig{
			URI:                    getEnv("MONGODB_URI", ""),
			Username:               getEnv("MONGODB_USERNAME", ""),
			Password:               getEnv("MONGODB_PASSWORD", ""),
			Host:                   getEnv("MONGODB_HOST", "localhost"),
			Port:                   getEnv("MONGODB_PORT", "27017"),
			Database:               getEnv("MONGODB_DATABASE", "taskbot"),
			TaskCollection:         getEnv("MONGODB_TASK_COLLECTION", "tasks"),
			ConversationCollection: getEnv("MONGODB_CONVERSATION_COLLECTION", "conversations"),
			AuthSource:             getEnv("MONGODB_AUTH_SOURCE", "admin"),
		},
		Telegram: TelegramConfig{
			BotToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
			TimeoutSeconds: getEnvInt("TELEGRAM_TIMEOUT_SECONDS", 30),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			TTL:    getEnvDuration("JWT_TTL", 24*time.Hour),
		},
		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""), // Optional for MinIO/custom S3
		},
		InfluxDB: InfluxDBConfig{
			URL:    getEnv("INFLUXDB2_URL", ""),
			Token:  getEnv("INFLUXDB2_TOKEN", ""),
			Org:    getEnv("INFLUXDB2_ORG", ""),
			Bucket: getEnv("INFLUXDB2_BUCKET", ""),
		},
		Prompts: PromptsConfig{
			File: getEnv("PROMPTS_FILE", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ValidateConfig validates that required configuration values are present
func ValidateConfig(config *Config) error {
	switch config.LLM.Provider {
	case ProviderOpenAI:
		if config.LLM.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case ProviderGemini:
		if config.LLM.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q (expected openai or gemini)", config.LLM.Provider)
	}
	if config.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}

	switch config.Storage.TaskStore {
	case StoreMemory:
	case StoreMongo:
		if config.MongoDB.URI == "" && config.MongoDB.Host == "" {
			return fmt.Errorf("MONGODB_URI or MONGODB_HOST is required when TASK_STORE=mongo")
		}
	case StorePostgres:
		if config.Storage.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when TASK_STORE=postgres")
		}
	default:
		return fmt.Errorf("unsupported TASK_STORE %q (expected memory, mongo or postgres)", config.Storage.TaskStore)
	}

	switch config.Storage.ConversationStore {
	case StoreMemory:
	case StoreSQLite:
		if config.Storage.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when CONVERSATION_STORE=sqlite")
		}
	case StoreMongo:
		if config.MongoDB.URI == "" && config.MongoDB.Host == "" {
			return fmt.Errorf("MONGODB_URI or MONGODB_HOST is required when CONVERSATION_STORE=mongo")
		}
	default:
		return fmt.Errorf("unsupported CONVERSATION_STORE %q (expected memory, sqlite or mongo)", config.Storage.ConversationStore)
	}

	if config.S3.Bucket != "" && (config.S3.AccessKeyID == "") != (config.S3.SecretAccessKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
	}
	if config.InfluxDB.URL != "" && (config.InfluxDB.Org == "" || config.InfluxDB.Bucket == "") {
		return fmt.Errorf("INFLUXDB2_ORG and INFLUXDB2_BUCKET are required when INFLUXDB2_URL is set")
	}

	switch config.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported LOG_FORMAT %q (expected json or console)", config.Log.Format)
	}
	return nil
}

// MongoEnabled reports whether any store uses MongoDB
func (c *Config) MongoEnabled() bool {
	return c.Storage.TaskStore == StoreMongo || c.Storage.ConversationStore == StoreMongo
}

// Helper functions for environment variable access
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
