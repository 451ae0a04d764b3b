package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerPort string
	JWTSecret  string
	Postgres   PostgresConfig
	Mongo      MongoConfig
	Redis      RedisConfig
	Logging    LoggingConfig
	GenAI      GenAIConfig
	Engine     EngineConfig
}

type PostgresConfig struct {
	DSN               string
	Host              string
	Port              int
	User              string
	Password          string
	Database          string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

// GenAIConfig points at the OpenAI-compatible generation backend.
type GenAIConfig struct {
	PrimaryEndpoint string
	BackupEndpoint  string
	APIKey          string
	Model           string
	Temperature     float64
}

func (g GenAIConfig) BaseURL() string {
	if strings.TrimSpace(g.PrimaryEndpoint) != "" {
		return strings.TrimRight(g.PrimaryEndpoint, "/")
	}
	return ""
}

// EngineConfig tunes the conversation orchestrator. Zero values fall back to
// the engine defaults at construction time.
type EngineConfig struct {
	HistoryWindow     int
	MinReplyDelay     time.Duration
	MaxReplyDelay     time.Duration
	SkillCheckChance  float64
	SkillDifficulty   int
	GenerationTimeout time.Duration
}

func LoadConfig() (*Config, error) {
	port := envOrDefault("PORT", "8080")
	jwtSecret := envOrDefault("JWT_SECRET", "dev-secret")

	pgPort, _ := strconv.Atoi(envOrDefault("POSTGRES_PORT", "5432"))
	maxConns := parseInt32(envOrDefault("POSTGRES_MAX_CONNS", "8"), 8)
	minConns := parseInt32(envOrDefault("POSTGRES_MIN_CONNS", "1"), 1)

	logging := LoggingConfig{
		Level:        strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		Encoding:     strings.ToLower(envOrDefault("LOG_ENCODING", "console")),
		Development:  parseBool(envOrDefault("LOG_DEVELOPMENT", "false"), false),
		EnableCaller: parseBool(envOrDefault("LOG_CALLER", "false"), false),
		ServiceName:  envOrDefault("SERVICE_NAME", "doodle-mind-server"),
	}

	cfg := &Config{
		ServerPort: port,
		JWTSecret:  jwtSecret,
		Postgres: PostgresConfig{
			DSN:               os.Getenv("POSTGRES_DSN"),
			Host:              envOrDefault("POSTGRES_HOST", "localhost"),
			Port:              pgPort,
			User:              envOrDefault("POSTGRES_USER", "postgres"),
			Password:          envOrDefault("POSTGRES_PASSWORD", "postgres"),
			Database:          envOrDefault("POSTGRES_DB", "doodle"),
			MaxConns:          maxConns,
			MinConns:          minConns,
			MaxConnLifetime:   parseDuration(envOrDefault("POSTGRES_MAX_CONN_LIFETIME", "1h"), time.Hour),
			MaxConnIdleTime:   parseDuration(envOrDefault("POSTGRES_MAX_CONN_IDLE", "30m"), 30*time.Minute),
			HealthCheckPeriod: parseDuration(envOrDefault("POSTGRES_HEALTH_CHECK_PERIOD", "1m"), time.Minute),
			ConnectTimeout:    parseDuration(envOrDefault("POSTGRES_CONNECT_TIMEOUT", "5s"), 5*time.Second),
		},
		Mongo: MongoConfig{
			URI:            envOrDefault("MONGO_URI", "mongodb://localhost:27017"),
			Database:       envOrDefault("MONGO_DATABASE", "doodle"),
			ConnectTimeout: parseDuration(envOrDefault("MONGO_CONNECT_TIMEOUT", "5s"), 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       int(parseInt32(envOrDefault("REDIS_DB", "0"), 0)),
		},
		Logging: logging,
		GenAI: GenAIConfig{
			PrimaryEndpoint: envOrDefault("GENAI_ENDPOINT", "https://openai.qiniu.com/v1"),
			BackupEndpoint:  envOrDefault("GENAI_BACKUP_ENDPOINT", "https://api.qnaigc.com/v1"),
			APIKey:          os.Getenv("GENAI_API_KEY"),
			Model:           envOrDefault("GENAI_MODEL", "doubao-1.5-pro"),
			Temperature:     parseFloat(envOrDefault("GENAI_TEMPERATURE", "1.0"), 1.0),
		},
		Engine: EngineConfig{
			HistoryWindow:     int(parseInt32(envOrDefault("ENGINE_HISTORY_WINDOW", "8"), 8)),
			MinReplyDelay:     parseDuration(envOrDefault("ENGINE_MIN_REPLY_DELAY", "1s"), time.Second),
			MaxReplyDelay:     parseDuration(envOrDefault("ENGINE_MAX_REPLY_DELAY", "3s"), 3*time.Second),
			SkillCheckChance:  parseFloat(envOrDefault("ENGINE_SKILL_CHECK_CHANCE", "0.15"), 0.15),
			SkillDifficulty:   int(parseInt32(envOrDefault("ENGINE_SKILL_DIFFICULTY", "8"), 8)),
			GenerationTimeout: parseDuration(envOrDefault("ENGINE_GENERATION_TIMEOUT", "30s"), 30*time.Second),
		},
	}

	return cfg, nil
}

func (c PostgresConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt32(value string, fallback int32) int32 {
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return int32(i)
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}
