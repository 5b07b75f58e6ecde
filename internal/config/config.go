package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by VERITAS_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("VERITAS_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

// AnalyzerProvider returns the configured claim analyzer provider.
// Defaults to "openai" if not set.
// Valid values: openai, anthropic, mock
func AnalyzerProvider() string {
	p := os.Getenv("ANALYZER_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// AnalyzerAPIKey returns the API key for the configured analyzer provider.
func AnalyzerAPIKey() string {
	switch AnalyzerProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// AnalyzerTimeout bounds one analyzer call. Defaults to 30s.
func AnalyzerTimeout() time.Duration {
	d, err := time.ParseDuration(os.Getenv("ANALYZER_TIMEOUT"))
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "openai" if not set.
// Valid values: openai, mock
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingModel returns the embedding model name. Empty means the
// provider's default; changing it requires re-embedding stored units.
func EmbeddingModel() string {
	return os.Getenv("EMBEDDING_MODEL")
}

// FeedbackBatchSize caps one feedback drain pass. Defaults to 100.
func FeedbackBatchSize() int {
	n, err := strconv.Atoi(os.Getenv("FEEDBACK_BATCH_SIZE"))
	if err != nil || n <= 0 {
		return 100
	}
	return n
}

// EvaluationInterval spaces the periodic evaluation job. Defaults to 1h.
func EvaluationInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("EVALUATION_INTERVAL"))
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
