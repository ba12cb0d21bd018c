package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration for the memberbase server.
type Server struct {
	Addr        string
	DatabaseURL string
	Redis       RedisConfig

	// AuditConcurrency bounds how many members the consistency auditor
	// processes in parallel. Each member is still audited in its own
	// transaction.
	AuditConcurrency int

	// ReservationTTL is how long a bulk-import identifier reservation is
	// held before it lapses without an explicit release.
	ReservationTTL time.Duration
}

// RedisConfig configures the optional Redis connection used for
// cross-process bulk-import identifier reservations.
type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("MEMBERBASE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	dbURL := os.Getenv("MEMBERBASE_DATABASE_URL")

	concurrency := 4
	if v := os.Getenv("MEMBERBASE_AUDIT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			concurrency = n
		}
	}

	reservationTTL := 15 * time.Minute
	if v := os.Getenv("MEMBERBASE_RESERVATION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			reservationTTL = d
		}
	}

	return Server{
		Addr:        addr,
		DatabaseURL: dbURL,
		Redis: RedisConfig{
			URL:          os.Getenv("MEMBERBASE_REDIS_URL"),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		AuditConcurrency: concurrency,
		ReservationTTL:   reservationTTL,
	}
}
