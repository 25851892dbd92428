// Package config builds the process configuration from the environment and
// validates it before anything else starts. A malformed configuration is the
// one fatal condition in this service: Load returns an error and main exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode gates the optional admission checks (stake floor, allow-list).
type Mode string

const (
	ModePermissive Mode = "permissive"
	ModeRestricted Mode = "restricted"
)

// IsValid checks if the mode is one of the supported enum values.
func (m Mode) IsValid() bool {
	return m == ModePermissive || m == ModeRestricted
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	AdminJWTKey       string
	AdminSecretBcrypt string
	LogFile           string
	LogLevel          string
}

// Gatekeeper captures the admission-control configuration. Immutable per
// decision; the service may swap in a fresh copy between decisions.
type Gatekeeper struct {
	ProtocolVersion      int
	Mode                 Mode
	Whitelist            []string
	Blacklist            []string
	StakeThreshold       float64
	RateWindow           time.Duration
	MaxRequestsPerWindow int
	ActiveNetwork        string
	ActiveModelType      string
	ForbiddenKeywords    []string
}

// Coordinator captures the routing and scoring configuration.
type Coordinator struct {
	Alpha                  float64
	SelectionFraction      float64
	ExclusionResetFraction float64
	WeightBudget           uint64
	WeightCap              float64
	DispatchTimeout        time.Duration
	PublishInterval        time.Duration
	RegistryRefresh        time.Duration
}

// Redis holds connection settings for the optional shared limiter store.
type Redis struct {
	URL string
}

// Postgres holds connection settings for the optional score snapshot store.
type Postgres struct {
	URL string
}

// Network holds the endpoints of the external network collaborators. Empty
// URLs select the static/no-op adapters, which is how tests and single-node
// development run.
type Network struct {
	MembershipURL    string
	ConsensusURL     string
	SeedParticipants []string
}

// Kafka holds settings for the optional admission audit stream.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Config is the root configuration.
type Config struct {
	Server      Server
	Gatekeeper  Gatekeeper
	Coordinator Coordinator
	Network     Network
	Redis       Redis
	Postgres    Postgres
	Kafka       Kafka
}

// Load builds and validates the configuration from environment variables.
func Load() (*Config, error) {
	var e envReader
	cfg := &Config{
		Server: Server{
			Addr:              e.str("PALISADE_ADDR", ":8080"),
			AdminJWTKey:       os.Getenv("PALISADE_ADMIN_JWT_KEY"),
			AdminSecretBcrypt: os.Getenv("PALISADE_ADMIN_SECRET_BCRYPT"),
			LogFile:           os.Getenv("PALISADE_LOG_FILE"),
			LogLevel:          e.str("PALISADE_LOG_LEVEL", "info"),
		},
		Gatekeeper: Gatekeeper{
			ProtocolVersion:      e.num("PALISADE_PROTOCOL_VERSION", 4),
			Mode:                 Mode(e.str("PALISADE_MODE", string(ModePermissive))),
			Whitelist:            e.list("PALISADE_WHITELIST"),
			Blacklist:            e.list("PALISADE_BLACKLIST"),
			StakeThreshold:       e.float("PALISADE_STAKE_THRESHOLD", 0),
			RateWindow:           e.seconds("PALISADE_RATE_WINDOW_SECONDS", 60),
			MaxRequestsPerWindow: e.num("PALISADE_MAX_REQUESTS_PER_WINDOW", 8),
			ActiveNetwork:        e.str("PALISADE_NETWORK", "bitcoin"),
			ActiveModelType:      e.str("PALISADE_MODEL_TYPE", "funds_flow"),
			ForbiddenKeywords:    e.list("PALISADE_FORBIDDEN_KEYWORDS"),
		},
		Coordinator: Coordinator{
			Alpha:                  e.float("PALISADE_ALPHA", 0.1),
			SelectionFraction:      e.float("PALISADE_SELECTION_FRACTION", 0.1),
			ExclusionResetFraction: e.float("PALISADE_EXCLUSION_RESET_FRACTION", 0.1),
			WeightBudget:           uint64(e.num("PALISADE_WEIGHT_BUDGET", 65535)),
			WeightCap:              e.float("PALISADE_WEIGHT_CAP", 0),
			DispatchTimeout:        e.seconds("PALISADE_DISPATCH_TIMEOUT_SECONDS", 12),
			PublishInterval:        e.seconds("PALISADE_PUBLISH_INTERVAL_SECONDS", 300),
			RegistryRefresh:        e.seconds("PALISADE_REGISTRY_REFRESH_SECONDS", 60),
		},
		Network: Network{
			MembershipURL:    os.Getenv("PALISADE_MEMBERSHIP_URL"),
			ConsensusURL:     os.Getenv("PALISADE_CONSENSUS_URL"),
			SeedParticipants: e.list("PALISADE_SEED_PARTICIPANTS"),
		},
		Redis:    Redis{URL: os.Getenv("PALISADE_REDIS_URL")},
		Postgres: Postgres{URL: os.Getenv("PALISADE_POSTGRES_URL")},
		Kafka: Kafka{
			Brokers: e.list("PALISADE_KAFKA_BROKERS"),
			Topic:   e.str("PALISADE_KAFKA_TOPIC", "palisade.admission"),
		},
	}
	if e.err != nil {
		return nil, e.err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects malformed configuration before any request is evaluated.
func (c *Config) Validate() error {
	gk := c.Gatekeeper
	if !gk.Mode.IsValid() {
		return fmt.Errorf("config: mode must be %q or %q, got %q", ModePermissive, ModeRestricted, gk.Mode)
	}
	if gk.ProtocolVersion < 0 {
		return fmt.Errorf("config: protocol version cannot be negative")
	}
	if gk.StakeThreshold < 0 {
		return fmt.Errorf("config: stake threshold cannot be negative")
	}
	if gk.RateWindow <= 0 {
		return fmt.Errorf("config: rate window must be positive")
	}
	if gk.MaxRequestsPerWindow <= 0 {
		return fmt.Errorf("config: max requests per window must be positive")
	}

	co := c.Coordinator
	if co.Alpha <= 0 || co.Alpha > 1 {
		return fmt.Errorf("config: alpha must be in (0,1], got %v", co.Alpha)
	}
	if co.SelectionFraction <= 0 || co.SelectionFraction > 1 {
		return fmt.Errorf("config: selection fraction must be in (0,1], got %v", co.SelectionFraction)
	}
	if co.ExclusionResetFraction <= 0 || co.ExclusionResetFraction > 1 {
		return fmt.Errorf("config: exclusion reset fraction must be in (0,1], got %v", co.ExclusionResetFraction)
	}
	if co.WeightBudget == 0 {
		return fmt.Errorf("config: weight budget must be positive")
	}
	if co.WeightCap < 0 || co.WeightCap > 1 {
		return fmt.Errorf("config: weight cap must be in [0,1], got %v", co.WeightCap)
	}
	if co.DispatchTimeout <= 0 {
		return fmt.Errorf("config: dispatch timeout must be positive")
	}
	return nil
}

// envReader reads typed environment values and remembers the first parse
// failure so Load can report it instead of silently defaulting.
type envReader struct {
	err error
}

func (e *envReader) str(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) num(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v)
		return fallback
	}
	return n
}

func (e *envReader) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v)
		return fallback
	}
	return f
}

func (e *envReader) seconds(key string, fallback int) time.Duration {
	return time.Duration(e.num(key, fallback)) * time.Second
}

func (e *envReader) list(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *envReader) fail(key, value string) {
	if e.err == nil {
		e.err = fmt.Errorf("config: invalid value %q for %s", value, key)
	}
}
