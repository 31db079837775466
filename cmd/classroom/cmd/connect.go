package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/liveclass/classroom/internal/classroom"
	"github.com/liveclass/classroom/internal/config"
	"github.com/liveclass/classroom/internal/protocol"
	"github.com/liveclass/classroom/internal/sigclient"
)

var errRelayWithoutTURN = errors.New("cannot force relay mode without TURN server configured")

// LoadConfig loads client config and rejects combinations that cannot work.
func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, classroom.NewError("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, errRelayWithoutTURN
	}

	return cfg, nil
}

// Connect dials the signaling server with the configured codec.
func Connect(ctx context.Context, cfg *config.Config) (*sigclient.Client, error) {
	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return nil, classroom.NewError("load config", err)
	}

	client := sigclient.NewClient(cfg.WebSocketURL, codec)
	if err := client.Connect(ctx); err != nil {
		return nil, classroom.NewError("connect to server", err)
	}
	return client, nil
}

// httpClient resolves server names the same way the websocket dialer does.
func httpClient() *http.Client {
	resolver := sigclient.NewResolver()
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			DialContext: resolver.DialContext,
		},
	}
}

func getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", rawURL, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

type turnCredentials struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	URIs     []string `json:"uris"`
}

// fillTURNCredentials asks the server for short-lived TURN credentials when
// a TURN server is set without a username.
func fillTURNCredentials(ctx context.Context, cfg *config.Config, user string) error {
	if cfg.TURNServer == "" || cfg.TURNUser != "" {
		return nil
	}

	var creds turnCredentials
	endpoint := cfg.HTTPURL + "/turn-credentials?user=" + url.QueryEscape(user)
	if err := getJSON(ctx, endpoint, &creds); err != nil {
		return classroom.NewError("fetch TURN credentials", err)
	}
	cfg.TURNUser = creds.Username
	cfg.TURNPass = creds.Password
	return nil
}
