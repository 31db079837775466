package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveclass/classroom/internal/config"
	"github.com/liveclass/classroom/internal/protocol"
	"github.com/liveclass/classroom/internal/signaling"
)

func newTestServer(t *testing.T, cfg *config.ServerConfig) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := signaling.NewHub(signaling.Options{Logger: logger})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(hub, cfg, logger))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, codec protocol.Codec, typ string, payload any) {
	t.Helper()
	msg, err := protocol.NewMessage(typ, payload)
	require.NoError(t, err)
	data, err := codec.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(codec.FrameType(), data))
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) (int, *protocol.Message) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		frameType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg protocol.Message
		require.NoError(t, protocol.CodecFor(frameType).Unmarshal(data, &msg))
		if msg.Type == typ {
			return frameType, &msg
		}
	}
}

func TestWebsocketClosedAfterHubStops(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := signaling.NewHub(signaling.Options{Logger: logger})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(hub, &config.ServerConfig{}, logger))
	defer srv.Close()

	conn := dial(t, srv)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	var netErr net.Error
	assert.False(t, errors.As(err, &netErr) && netErr.Timeout(), "connection should be closed, not left hanging")
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &config.ServerConfig{})
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebsocketJoinAcrossCodecs(t *testing.T) {
	srv := newTestServer(t, &config.ServerConfig{})

	browser := dial(t, srv)
	sendFrame(t, browser, protocol.JSON, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1", UserID: "X", UserName: "Xena", IsInstructor: true})
	frameType, msg := readUntil(t, browser, protocol.TypeRoomJoined)
	assert.Equal(t, websocket.TextMessage, frameType)

	var xJoined protocol.RoomJoined
	require.NoError(t, msg.Decode(&xJoined))
	assert.NotEmpty(t, xJoined.ConnectionID)

	cli := dial(t, srv)
	sendFrame(t, cli, protocol.Msgpack, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1", UserID: "Y", UserName: "Yuri"})
	frameType, msg = readUntil(t, cli, protocol.TypeRoomJoined)
	assert.Equal(t, websocket.BinaryMessage, frameType)

	var yJoined protocol.RoomJoined
	require.NoError(t, msg.Decode(&yJoined))
	require.Len(t, yJoined.Members, 1)
	assert.Equal(t, xJoined.ConnectionID, yJoined.Members[0].SocketID)

	_, msg = readUntil(t, browser, protocol.TypeUserJoined)
	var p protocol.Participant
	require.NoError(t, msg.Decode(&p))
	assert.Equal(t, "Yuri", p.UserName)

	resp, err := http.Get(srv.URL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats []signaling.RoomStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Len(t, stats, 1)
	assert.Equal(t, "R1", stats[0].Key)
	assert.Equal(t, 2, stats[0].Members)
}

func TestOriginCheck(t *testing.T) {
	srv := newTestServer(t, &config.ServerConfig{AllowedOrigins: []string{"https://class.example"}})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://class.example"}})
	require.NoError(t, err)
	conn.Close()
}

func TestTURNCredentials(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	creds := NewTURNCredentials("s3cret", "ada", time.Hour, []string{"turn:relay.example:3478"}, now)
	assert.Equal(t, "1700003600:ada", creds.Username)
	assert.Equal(t, int64(3600), creds.TTL)

	mac := hmac.New(sha1.New, []byte("s3cret"))
	mac.Write([]byte("1700003600:ada"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), creds.Password)
}

func TestTURNCredentialsEndpoint(t *testing.T) {
	srv := newTestServer(t, &config.ServerConfig{})
	resp, err := http.Get(srv.URL + "/turn-credentials?user=ada")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	srv = newTestServer(t, &config.ServerConfig{TURNSecret: "s3cret", TURNTTL: time.Hour})
	resp, err = http.Get(srv.URL + "/turn-credentials?user=ada")
	require.NoError(t, err)
	defer resp.Body.Close()

	var creds TURNCredentials
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&creds))
	assert.True(t, strings.HasSuffix(creds.Username, ":ada"))
	assert.NotEmpty(t, creds.Password)
}
