package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"lootfun/internal/bus"
	"lootfun/internal/game"
	"lootfun/internal/session"
)

// DefaultSessionIdleTTL is how long the API keeps a session nobody calls.
const DefaultSessionIdleTTL = 30 * time.Minute

type APIConfig struct {
	Addr         string
	TuningFile   string
	Tuning       game.Tuning
	Timing       session.Timing
	Limits       session.Limits
	BreakAfter   int
	FeedCapacity int
	FeedLifetime time.Duration
	Crowd        bool
	CrowdEvery   time.Duration
	CORSOrigins  []string
	ServerSeed   string
	AllowInject  bool

	// sessions with no request for this long are closed; 0 keeps them forever
	SessionIdleTTL time.Duration
}

type CLIConfig struct {
	APIBaseURL string
}

// LoadDotEnv reads the first .env file it finds. Real environment variables
// always win over the file.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env", "../.env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			return
		}
	}
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("LOOTFUN_API_ADDR", ":8080")
	}

	timing := session.DefaultTiming()
	timing.AutoplayEvery = envDurationDefault("LOOTFUN_AUTOPLAY_EVERY", timing.AutoplayEvery)
	timing.SettleDelay = envDurationDefault("LOOTFUN_SETTLE_DELAY", timing.SettleDelay)

	cfg := APIConfig{
		Addr:         addr,
		TuningFile:   strings.TrimSpace(os.Getenv("LOOTFUN_TUNING_FILE")),
		Timing:       timing,
		Limits:       session.DefaultLimits(),
		BreakAfter:   envIntDefault("LOOTFUN_BREAK_THRESHOLD", game.DefaultBreakThreshold),
		FeedCapacity: envIntDefault("LOOTFUN_FEED_CAPACITY", bus.DefaultFeedCapacity),
		FeedLifetime: envDurationDefault("LOOTFUN_FEED_LIFETIME", bus.DefaultFeedLifetime),
		Crowd:        envBoolDefault("LOOTFUN_CROWD", true),
		CrowdEvery:   envDurationDefault("LOOTFUN_CROWD_EVERY", bus.DefaultCrowdEvery),
		CORSOrigins:  envListDefault("LOOTFUN_CORS_ORIGINS", []string{"*"}),
		ServerSeed:   strings.TrimSpace(os.Getenv("LOOTFUN_SERVER_SEED")),
		AllowInject:  envBoolDefault("LOOTFUN_ALLOW_INJECT", false),

		SessionIdleTTL: envDurationDefault("LOOTFUN_SESSION_IDLE_TTL", DefaultSessionIdleTTL),
	}

	var err error
	if cfg.Limits.MinStakeMicros, err = envAmountDefault("LOOTFUN_MIN_STAKE", cfg.Limits.MinStakeMicros); err != nil {
		return cfg, err
	}
	if cfg.Limits.MaxStakeMicros, err = envAmountDefault("LOOTFUN_MAX_STAKE", cfg.Limits.MaxStakeMicros); err != nil {
		return cfg, err
	}
	if cfg.Limits.MinStakeMicros <= 0 || cfg.Limits.MaxStakeMicros < cfg.Limits.MinStakeMicros {
		return cfg, fmt.Errorf("stake limits %s..%s are invalid",
			game.FormatAmount(cfg.Limits.MinStakeMicros), game.FormatAmount(cfg.Limits.MaxStakeMicros))
	}
	if cfg.BreakAfter < 1 {
		return cfg, fmt.Errorf("LOOTFUN_BREAK_THRESHOLD must be >= 1")
	}
	if len(cfg.ServerSeed) > 32 {
		return cfg, fmt.Errorf("LOOTFUN_SERVER_SEED must be at most 32 bytes")
	}

	cfg.Tuning, err = LoadTuning(cfg.TuningFile)
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("LOOT_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envListDefault(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// envAmountDefault parses a decimal amount such as "0.2". Unlike the other
// helpers a malformed value is an error, since silently falling back would
// change what players can bet.
func envAmountDefault(key string, fallback int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	micros, err := game.ParseAmount(v)
	if err != nil {
		return 0, errors.Join(fmt.Errorf("%s is invalid", key), err)
	}
	return micros, nil
}
