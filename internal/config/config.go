package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Sentiment selects the classification model.
type Sentiment struct {
	Provider      string
	Model         string
	LexiconPath   string
	Endpoint      string
	APIToken      string
	OpenAIAPIKey  string
	BedrockRegion string
	Timeout       time.Duration
	RateLimit     float64
}

// Worker holds configuration for the Kafka -> Elasticsearch worker.
type Worker struct {
	Common
	Sentiment      Sentiment
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	AlertsTopic    string
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
	CommitInterval time.Duration
	Concurrency    int
	MetricsAddr    string
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr       string
	DefaultPage    int
	MaxPage        int
	AnalysisWindow int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// Collector configures the feed poller.
type Collector struct {
	KafkaBrokers   []string
	KafkaTopic     string
	Feeds          []string
	Interval       time.Duration
	FetchTimeout   time.Duration
	Channel        string
	Product        string
	Region         string
	DedupeCapacity int
	DedupeTTL      time.Duration
	MetricsAddr    string
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	loadDotEnv()

	c := &Worker{
		Common:         loadCommon(),
		Sentiment:      loadSentiment(),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "feedback_raw"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "feedback-worker"),
		AlertsTopic:    getEnv("KAFKA_ALERTS_TOPIC", "feedback_alerts"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 50),
		CommitInterval: getDuration("WORKER_COMMIT_INTERVAL", "2s"),
		Concurrency:    getInt("WORKER_CONCURRENCY", 8),
		MetricsAddr:    getEnv("METRICS_ADDR", ""),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.Concurrency <= 0 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if c.CommitInterval <= 0 {
		return nil, fmt.Errorf("WORKER_COMMIT_INTERVAL must be positive")
	}
	if c.Sentiment.RateLimit < 0 {
		return nil, fmt.Errorf("SENTIMENT_RATE_LIMIT cannot be negative")
	}
	switch c.Sentiment.Provider {
	case "lexicon", "huggingface", "openai", "bedrock":
	default:
		return nil, fmt.Errorf("SENTIMENT_PROVIDER %q is not one of lexicon, huggingface, openai, bedrock", c.Sentiment.Provider)
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	loadDotEnv()

	c := &API{
		Common:         loadCommon(),
		BindAddr:       getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage:    getInt("API_PAGE_SIZE", 20),
		MaxPage:        getInt("API_MAX_PAGE_SIZE", 100),
		AnalysisWindow: getInt("API_ANALYSIS_WINDOW", 1000),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if c.AnalysisWindow <= 0 || c.AnalysisWindow > 10000 {
		return nil, fmt.Errorf("API_ANALYSIS_WINDOW must be between 1 and 10000")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	loadDotEnv()

	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "2160h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

// LoadCollector builds a Collector config from environment variables.
func LoadCollector() (*Collector, error) {
	loadDotEnv()

	c := &Collector{
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "feedback_raw"),
		Feeds:          splitAndTrim(getEnv("COLLECTOR_FEEDS", "")),
		Interval:       getDuration("COLLECTOR_INTERVAL", "15m"),
		FetchTimeout:   getDuration("COLLECTOR_FETCH_TIMEOUT", "30s"),
		Channel:        getEnv("COLLECTOR_CHANNEL", "App Review"),
		Product:        getEnv("COLLECTOR_PRODUCT", "Mobile App"),
		Region:         getEnv("COLLECTOR_REGION", "unknown"),
		DedupeCapacity: getInt("COLLECTOR_DEDUPE_CAPACITY", 5000),
		DedupeTTL:      getDuration("COLLECTOR_DEDUPE_TTL", "168h"),
		MetricsAddr:    getEnv("METRICS_ADDR", ""),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if len(c.Feeds) == 0 {
		return nil, fmt.Errorf("COLLECTOR_FEEDS must contain at least one feed URL")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("COLLECTOR_INTERVAL must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("COLLECTOR_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadEnvFile loads variables from a dotenv file without overriding ones already set.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadDotEnv() {
	dotenvOnce.Do(func() {
		if err := LoadEnvFile(getEnv("ENV_FILE", ".env")); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	})
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "feedback"),
	}
}

func loadSentiment() Sentiment {
	return Sentiment{
		Provider:      strings.ToLower(getEnv("SENTIMENT_PROVIDER", "lexicon")),
		Model:         getEnv("SENTIMENT_MODEL", ""),
		LexiconPath:   getEnv("SENTIMENT_LEXICON_PATH", ""),
		Endpoint:      getEnv("SENTIMENT_ENDPOINT", ""),
		APIToken:      getEnv("SENTIMENT_API_TOKEN", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		BedrockRegion: getEnv("BEDROCK_REGION", "us-east-1"),
		Timeout:       getDuration("SENTIMENT_TIMEOUT", "10s"),
		RateLimit:     getFloat("SENTIMENT_RATE_LIMIT", 0),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
