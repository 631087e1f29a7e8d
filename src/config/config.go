package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	DatabaseURL    string
	AuditDBPath    string
	RedisAddr      string
	RedisChannel   string
	JWTSecret      string
	AllowedOrigins []string
	ReadOnly       bool
	LogMode        string
	ThresholdsFile string

	// EventQueueSize bounds the events waiting for the broker.
	EventQueueSize      int
	EventPublishTimeout time.Duration

	Engine EngineConfig
}

// EngineConfig holds the tunables of the validation and anomaly rules.
type EngineConfig struct {
	ProjectionWindow        int
	AnomalyMinHistory       int
	FrequencySpikeCount     int
	FrequencySpikeWindow    time.Duration
	CategoryShiftMinHistory int
	MetricsWindow           int
	// PendingDecisions is how many recent decisions stay in memory for
	// feedback; older ones are looked up in the journal.
	PendingDecisions        int
	HistoryCacheTTL         time.Duration
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ProjectionWindow:        5,
		AnomalyMinHistory:       5,
		FrequencySpikeCount:     5,
		FrequencySpikeWindow:    48 * time.Hour,
		CategoryShiftMinHistory: 10,
		MetricsWindow:           1000,
		PendingDecisions:        10000,
		HistoryCacheTTL:         30 * time.Second,
	}
}

func Load() (Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	def := DefaultEngineConfig()
	cfg := Config{
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		AuditDBPath:         getEnv("AUDIT_DB_PATH", ""),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisChannel:        getEnv("REDIS_CHANNEL", "budget-engine"),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		AllowedOrigins:      splitList(getEnv("ALLOWED_ORIGINS", "")),
		ReadOnly:            getBool("READ_ONLY", false),
		LogMode:             getEnv("LOG_MODE", "development"),
		ThresholdsFile:      getEnv("THRESHOLDS_FILE", ""),
		EventQueueSize:      getInt("EVENT_QUEUE_SIZE", 256),
		EventPublishTimeout: getDuration("EVENT_PUBLISH_TIMEOUT", 2*time.Second),
		Engine: EngineConfig{
			ProjectionWindow:        getInt("PROJECTION_WINDOW", def.ProjectionWindow),
			AnomalyMinHistory:       getInt("ANOMALY_MIN_HISTORY", def.AnomalyMinHistory),
			FrequencySpikeCount:     getInt("FREQUENCY_SPIKE_COUNT", def.FrequencySpikeCount),
			FrequencySpikeWindow:    getDuration("FREQUENCY_SPIKE_WINDOW", def.FrequencySpikeWindow),
			CategoryShiftMinHistory: getInt("CATEGORY_SHIFT_MIN_HISTORY", def.CategoryShiftMinHistory),
			MetricsWindow:           getInt("METRICS_WINDOW", def.MetricsWindow),
			PendingDecisions:        getInt("METRICS_PENDING_DECISIONS", def.PendingDecisions),
			HistoryCacheTTL:         getDuration("HISTORY_CACHE_TTL", def.HistoryCacheTTL),
		},
	}

	if err := cfg.Engine.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (e EngineConfig) Validate() error {
	switch {
	case e.ProjectionWindow < 2:
		return fmt.Errorf("PROJECTION_WINDOW must be at least 2, got %d", e.ProjectionWindow)
	case e.AnomalyMinHistory < 2:
		return fmt.Errorf("ANOMALY_MIN_HISTORY must be at least 2, got %d", e.AnomalyMinHistory)
	case e.FrequencySpikeCount < 2:
		return fmt.Errorf("FREQUENCY_SPIKE_COUNT must be at least 2, got %d", e.FrequencySpikeCount)
	case e.FrequencySpikeWindow <= 0:
		return fmt.Errorf("FREQUENCY_SPIKE_WINDOW must be positive")
	case e.CategoryShiftMinHistory < 1:
		return fmt.Errorf("CATEGORY_SHIFT_MIN_HISTORY must be positive")
	case e.MetricsWindow < 1:
		return fmt.Errorf("METRICS_WINDOW must be positive")
	case e.PendingDecisions < 1:
		return fmt.Errorf("METRICS_PENDING_DECISIONS must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(getEnv(key, ""))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(getEnv(key, ""))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(getEnv(key, ""))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
