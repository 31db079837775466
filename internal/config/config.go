package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default configuration values
const (
	DefaultDomain             = "localhost:8080"
	DefaultSTUN               = "stun:stun.l.google.com:19302"
	DefaultCodec              = "msgpack"
	DefaultNegotiationTimeout = 15 * time.Second
	DefaultMaxRenegotiations  = 3
	DefaultSignalTimeout      = 10 * time.Second
)

// Config holds client configuration
type Config struct {
	// Domain is the signaling server host[:port]
	Domain string

	// WebSocketURL and HTTPURL are constructed from domain
	WebSocketURL string
	HTTPURL      string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to relay candidates
	ForceRelay bool

	// Codec is the signaling frame codec, json or msgpack
	Codec string

	// NegotiationTimeout bounds one offer/answer attempt
	NegotiationTimeout time.Duration
	MaxRenegotiations  int

	// SignalTimeout bounds waiting for the server to acknowledge a join
	SignalTimeout time.Duration
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	Codec      string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := firstNonEmpty(opts.Domain, os.Getenv("DOMAIN"), DefaultDomain)
	codec := firstNonEmpty(opts.Codec, os.Getenv("SIGNAL_CODEC"), DefaultCodec)
	if codec != "json" && codec != "msgpack" {
		return nil, fmt.Errorf("unsupported codec %q", codec)
	}

	forceRelay := opts.ForceRelay
	if !forceRelay {
		if v, ok := os.LookupEnv("FORCE_RELAY"); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("FORCE_RELAY: %w", err)
			}
			forceRelay = b
		}
	}

	timeout, err := envDuration("NEGOTIATION_TIMEOUT", DefaultNegotiationTimeout)
	if err != nil {
		return nil, err
	}
	retries, err := envInt("MAX_RENEGOTIATIONS", DefaultMaxRenegotiations)
	if err != nil {
		return nil, err
	}

	wsScheme, httpScheme := "wss", "https"
	if isLocal(domain) {
		wsScheme, httpScheme = "ws", "http"
	}

	return &Config{
		Domain:             domain,
		WebSocketURL:       fmt.Sprintf("%s://%s/ws", wsScheme, domain),
		HTTPURL:            fmt.Sprintf("%s://%s", httpScheme, domain),
		STUNServer:         firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:         firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:           firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:           firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay:         forceRelay,
		Codec:              codec,
		NegotiationTimeout: timeout,
		MaxRenegotiations:  retries,
		SignalTimeout:      DefaultSignalTimeout,
	}, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turns:"), "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func isLocal(domain string) bool {
	host := domain
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host == "localhost" || host == "127.0.0.1" || host == "[::1]"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: invalid value %q", key, v)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}
