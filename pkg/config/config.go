// Package config loads Brikk server configuration from the environment,
// plus optional per-organization rate policy profiles from YAML.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	// Redis (shared counter store, dedup set, usage stream)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Envelope validation
	AllowUUID4 bool

	// HMAC request signing
	HMACEnabled bool
	HMACMaxSkew time.Duration
	// HMACCredentials maps key id -> (org id, shared secret), parsed from
	// BRIKK_HMAC_SECRETS as "keyID:orgID:secret" triples, comma separated.
	HMACCredentials map[string]Credential

	// Rate limiting
	RateLimitEnabled bool
	RatePerMinute    int
	RateBurst        int
	RateScope        string // "org" | "key"
	PolicyDir        string

	// Request guards
	MaxBodyBytes int64

	// Edge (per-IP) limiter
	EdgeRPS   int
	EdgeBurst int

	// Admin API
	AdminJWTSecret string

	// Observability
	OTLPEndpoint string
	OTelEnabled  bool
	Environment  string
}

// Credential is one caller's signing identity.
type Credential struct {
	KeyID  string
	OrgID  string
	Secret string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getenv("BRIKK_PORT", "8080"),
		LogLevel: getenv("BRIKK_LOG_LEVEL", "INFO"),

		RedisAddr:     getenv("BRIKK_REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("BRIKK_REDIS_PASSWORD"),
		RedisDB:       getint("BRIKK_REDIS_DB", 0),

		AllowUUID4: truthy(os.Getenv("BRIKK_ALLOW_UUID4")),

		HMACEnabled:     truthy(getenv("BRIKK_HMAC_ENABLED", "true")),
		HMACMaxSkew:     time.Duration(getint("BRIKK_HMAC_MAX_SKEW_SECONDS", 300)) * time.Second,
		HMACCredentials: parseCredentials(os.Getenv("BRIKK_HMAC_SECRETS")),

		RateLimitEnabled: truthy(getenv("BRIKK_RLIM_ENABLED", "true")),
		RatePerMinute:    getint("BRIKK_RLIM_PER_MINUTE", 60),
		RateBurst:        getint("BRIKK_RLIM_BURST", 20),
		RateScope:        getenv("BRIKK_RLIM_SCOPE", "org"),
		PolicyDir:        os.Getenv("BRIKK_POLICY_DIR"),

		MaxBodyBytes: int64(getint("BRIKK_MAX_BODY_BYTES", 262144)),

		EdgeRPS:   getint("BRIKK_EDGE_RPS", 50),
		EdgeBurst: getint("BRIKK_EDGE_BURST", 100),

		AdminJWTSecret: os.Getenv("BRIKK_ADMIN_JWT_SECRET"),

		OTLPEndpoint: getenv("BRIKK_OTLP_ENDPOINT", "localhost:4317"),
		OTelEnabled:  truthy(os.Getenv("BRIKK_OTEL_ENABLED")),
		Environment:  getenv("BRIKK_ENV", "development"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// truthy matches the flag convention used across Brikk env vars:
// a case-insensitive "true" enables, anything else (including empty) disables.
func truthy(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// parseCredentials parses "keyID:orgID:secret" triples, comma separated.
// Malformed entries are skipped rather than aborting startup; a caller with
// a skipped credential simply fails authentication (fail closed).
func parseCredentials(raw string) map[string]Credential {
	creds := make(map[string]Credential)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			continue
		}
		creds[parts[0]] = Credential{KeyID: parts[0], OrgID: parts[1], Secret: parts[2]}
	}
	return creds
}
