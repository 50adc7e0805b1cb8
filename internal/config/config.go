package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	ClinicTimezone string

	// Z-API outbound delivery
	ZAPIInstanceID    string
	ZAPIToken         string
	ZAPIClientToken   string
	ZAPIBaseURL       string
	SendMaxAttempts   int
	SendRetryBaseWait time.Duration

	// Inbound webhook gate
	WebhookSecret        string
	DedupWindow          time.Duration
	MaxMessagesPerMinute int
	Cooldown             time.Duration

	// Conversation pipeline
	WorkerCount         int
	HandoffTTL          time.Duration
	MaxInlineToolCalls  int
	MaxRepeatedSameCall int
	MaxToolRounds       int
	MaxTextChars        int
	MaxProfileChars     int
	MaxToolOutputChars  int

	// LLM completion service
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	LLMMaxTokens  int

	// Reminder sweep
	ReminderInterval time.Duration
	MetricsPort      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		ClinicTimezone: getEnv("CLINIC_TZ", "America/Sao_Paulo"),

		ZAPIInstanceID:    getEnv("Z_API_INSTANCE_ID", ""),
		ZAPIToken:         getEnv("Z_API_TOKEN", ""),
		ZAPIClientToken:   getEnv("Z_API_CLIENT_TOKEN", ""),
		ZAPIBaseURL:       getEnv("Z_API_BASE_URL", "https://api.z-api.io"),
		SendMaxAttempts:   getEnvAsInt("SEND_MAX_ATTEMPTS", 3),
		SendRetryBaseWait: getEnvAsDuration("SEND_RETRY_BASE_WAIT", 2*time.Second),

		WebhookSecret:        getEnv("WEBHOOK_SIGNATURE_SECRET", ""),
		DedupWindow:          getEnvAsDuration("DEDUP_WINDOW", 300*time.Second),
		MaxMessagesPerMinute: getEnvAsInt("MAX_MESSAGES_PER_MINUTE", 10),
		Cooldown:             getEnvAsDuration("COOLDOWN", 2*time.Second),

		WorkerCount:         getEnvAsInt("WORKER_COUNT", 2),
		HandoffTTL:          getEnvAsDuration("HANDOFF_TTL", 15*time.Minute),
		MaxInlineToolCalls:  getEnvAsInt("MAX_INLINE_TOOL_CALLS", 3),
		MaxRepeatedSameCall: getEnvAsInt("MAX_REPEATED_INLINE_SAME_CALL", 2),
		MaxToolRounds:       getEnvAsInt("MAX_TOOL_ROUNDS", 3),
		MaxTextChars:        getEnvAsInt("MAX_TEXT_CHARS", 1200),
		MaxProfileChars:     getEnvAsInt("MAX_PROFILE_CHARS", 600),
		MaxToolOutputChars:  getEnvAsInt("MAX_TOOL_OUTPUT_CHARS", 800),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:  getEnvAsInt("LLM_MAX_TOKENS", 700),

		ReminderInterval: getEnvAsDuration("SCHEDULER_INTERVAL", 600*time.Second),
		MetricsPort:      getEnv("METRICS_PORT", "9091"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	// Plain integers are treated as seconds for compatibility with the
	// older SCHEDULER_INTERVAL=600 style of configuration.
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
