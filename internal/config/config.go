// Package config loads gigrank's runtime settings from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/roach88/gigrank/internal/coord"
	"github.com/roach88/gigrank/internal/engine"
	"github.com/roach88/gigrank/internal/httpapi"
	"github.com/roach88/gigrank/internal/pipeline"
	"github.com/roach88/gigrank/internal/store"
)

// Config holds all runtime settings.
type Config struct {
	DBPath      string
	DataRoot    string
	ProfilePath string

	Addr            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration

	JudgeURL       string
	JudgeModel     string
	JudgeAPIKey    string
	JudgeTimeout   time.Duration
	JudgeBatchSize int
	BatchRanking   bool

	WriteLockTimeout time.Duration
	BusyTimeout      time.Duration
	CycleInterval    time.Duration
	Watch            bool
	WatchDebounce    time.Duration
	RetryQueuePath   string
	RetryQueueSize   int

	LogLevel slog.Level
}

// Load reads the given .env files (".env" when none are named) and then the
// environment. Variables already set in the environment win over the files.
// A missing .env file is not an error.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBPath:      getEnv("GIGRANK_DB", "gigrank.db"),
		DataRoot:    getEnv("DATA_ROOT", defaultDataRoot()),
		ProfilePath: getEnv("PROFILE_PATH", ""),

		Addr:            getEnv("HTTP_ADDR", httpapi.DefaultAddr),
		CORSOrigins:     getEnvList("CORS_ORIGINS"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", httpapi.DefaultShutdownTimeout),

		JudgeURL:       getEnv("JUDGE_URL", ""),
		JudgeModel:     getEnv("JUDGE_MODEL", "local-model"),
		JudgeAPIKey:    getEnv("JUDGE_API_KEY", ""),
		JudgeTimeout:   getEnvDuration("JUDGE_TIMEOUT", 60*time.Second),
		JudgeBatchSize: getEnvInt("JUDGE_BATCH_SIZE", pipeline.DefaultJudgeBatchSize),
		BatchRanking:   getEnvBool("JUDGE_BATCH_RANKING", true),

		WriteLockTimeout: getEnvDuration("DB_WRITE_LOCK_TIMEOUT", coord.DefaultLockTimeout),
		BusyTimeout:      getEnvDuration("SQLITE_BUSY_TIMEOUT", store.DefaultBusyTimeout),
		CycleInterval:    getEnvDuration("CYCLE_INTERVAL", engine.DefaultCycleInterval),
		Watch:            getEnvBool("WATCH", true),
		WatchDebounce:    getEnvDuration("WATCH_DEBOUNCE", engine.DefaultWatchDebounce),
		RetryQueuePath:   getEnv("RETRY_QUEUE_PATH", ""),
		RetryQueueSize:   getEnvInt("RETRY_QUEUE_MAX", engine.DefaultRetryQueueSize),

		LogLevel: level,
	}
	return cfg, cfg.Validate()
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("GIGRANK_DB is empty"))
	}
	if c.JudgeBatchSize < 1 {
		errs = append(errs, fmt.Errorf("JUDGE_BATCH_SIZE must be positive, got %d", c.JudgeBatchSize))
	}
	if c.RetryQueueSize < 1 {
		errs = append(errs, fmt.Errorf("RETRY_QUEUE_MAX must be positive, got %d", c.RetryQueueSize))
	}
	for name, d := range map[string]time.Duration{
		"DB_WRITE_LOCK_TIMEOUT": c.WriteLockTimeout,
		"CYCLE_INTERVAL":        c.CycleInterval,
		"JUDGE_TIMEOUT":         c.JudgeTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	return errors.Join(errs...)
}

// JudgeEnabled reports whether an external judge is configured.
func (c *Config) JudgeEnabled() bool {
	return c.JudgeURL != ""
}

func defaultDataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, "Downloads", "upwork_dna")
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := getEnv(key, ""); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
		slog.Warn("ignoring invalid integer setting", "key", key, "value", val)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := getEnv(key, ""); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
		slog.Warn("ignoring invalid boolean setting", "key", key, "value", val)
	}
	return fallback
}

// getEnvDuration accepts Go durations ("45s", "5m") or plain seconds ("45").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := getEnv(key, "")
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	slog.Warn("ignoring invalid duration setting", "key", key, "value", val)
	return fallback
}

func getEnvList(key string) []string {
	val := getEnv(key, "")
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
