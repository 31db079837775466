package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// JoinPolicy decides what happens when a user joins a room in which they
// already have a connection.
type JoinPolicy string

const (
	// JoinPolicyEvict removes the older connection from the room.
	JoinPolicyEvict JoinPolicy = "evict"
	// JoinPolicyCoexist keeps both connections as separate participants.
	JoinPolicyCoexist JoinPolicy = "coexist"
)

func ParseJoinPolicy(s string) (JoinPolicy, error) {
	switch JoinPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", JoinPolicyEvict:
		return JoinPolicyEvict, nil
	case JoinPolicyCoexist:
		return JoinPolicyCoexist, nil
	}
	return "", fmt.Errorf("unknown join policy %q", s)
}

// Server defaults
const (
	DefaultAddr                   = ":8080"
	DefaultWhiteboardSyncEvery    = 50
	DefaultWhiteboardSyncInterval = 10 * time.Second
	DefaultTURNTTL                = 24 * time.Hour
)

// ServerConfig holds signaling server configuration
type ServerConfig struct {
	Addr string

	// AllowedOrigins lists websocket origins; empty allows any origin
	AllowedOrigins []string

	JoinPolicy JoinPolicy

	WhiteboardSyncEvery    int
	WhiteboardSyncInterval time.Duration

	// TURN REST credentials, served only when TURNSecret is set
	TURNSecret string
	TURNTTL    time.Duration
	TURNURLs   []string

	// DatabaseURL enables enrollment checks on join
	DatabaseURL string
}

// ServerOptions carries flag overrides for LoadServer
type ServerOptions struct {
	Addr    string
	EnvFile string
}

// LoadServer loads the optional .env file, then applies flag > env > default.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	envFile := firstNonEmpty(opts.EnvFile, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	policy, err := ParseJoinPolicy(os.Getenv("JOIN_POLICY"))
	if err != nil {
		return nil, err
	}
	syncEvery, err := envInt("WHITEBOARD_SYNC_EVERY", DefaultWhiteboardSyncEvery)
	if err != nil {
		return nil, err
	}
	if syncEvery == 0 {
		syncEvery = DefaultWhiteboardSyncEvery
	}
	syncInterval, err := envDuration("WHITEBOARD_SYNC_INTERVAL", DefaultWhiteboardSyncInterval)
	if err != nil {
		return nil, err
	}
	turnTTL, err := envDuration("TURN_TTL", DefaultTURNTTL)
	if err != nil {
		return nil, err
	}

	return &ServerConfig{
		Addr:                   firstNonEmpty(opts.Addr, os.Getenv("ADDR"), DefaultAddr),
		AllowedOrigins:         splitList(os.Getenv("ALLOWED_ORIGINS")),
		JoinPolicy:             policy,
		WhiteboardSyncEvery:    syncEvery,
		WhiteboardSyncInterval: syncInterval,
		TURNSecret:             os.Getenv("TURN_SECRET"),
		TURNTTL:                turnTTL,
		TURNURLs:               splitList(os.Getenv("TURN_URLS")),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
