// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/ichi/internal/game"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"
)

// Config holds everything the server and historian read from the environment.
// A .env file is picked up by godotenv/autoload in the binaries.
type Config struct {
	Port     string `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	// Turn defaults, overridable per game through house rules.
	TurnTimerSec      int  `env:"ICHI_TURN_TIMER_SEC,default=30"`
	PenaltyDrawCount  int  `env:"ICHI_PENALTY_DRAW_COUNT,default=1"`
	InitialHandSize   int  `env:"ICHI_INITIAL_HAND_SIZE,default=7"`
	CancelStaleTimers bool `env:"ICHI_CANCEL_STALE_TIMERS,default=true"`

	TokenExpire time.Duration `env:"TOKEN_EXPIRE_TIME,default=72h"`

	RedisAddr   string        `env:"REDIS_ADDR,default=localhost:6379"`
	RedisDB     int           `env:"REDIS_DB,default=0"`
	QueueName   string        `env:"HISTORIAN_QUEUE_NAME,default=ichi_actions"`
	BatchSize   int           `env:"HISTORIAN_BATCH_SIZE,default=20"`
	FlushDelay  time.Duration `env:"HISTORIAN_FLUSH_INTERVAL,default=500ms"`
	MaxFailures int           `env:"HISTORIAN_MAX_FAILURES,default=3"`
	Inactivity  time.Duration `env:"GAME_INACTIVITY_TIMEOUT,default=10m"`

	DatabaseURL string `env:"DATABASE_URL"`
}

// Load decodes the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode env: %w", err)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if err := cfg.HouseRules().Validate(); err != nil {
		return Config{}, fmt.Errorf("house rule defaults: %w", err)
	}
	if cfg.BatchSize < 1 {
		return Config{}, fmt.Errorf("HISTORIAN_BATCH_SIZE must be at least 1, got %d", cfg.BatchSize)
	}
	return cfg, nil
}

// HouseRules returns the default rules new games start from.
func (c Config) HouseRules() game.HouseRules {
	return game.HouseRules{
		TurnTimerSec:      c.TurnTimerSec,
		PenaltyDrawCount:  c.PenaltyDrawCount,
		InitialHandSize:   c.InitialHandSize,
		CancelStaleTimers: c.CancelStaleTimers,
	}
}

// NewLogger builds the process logger at the configured level.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}
