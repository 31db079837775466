package server

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"
)

// TURNCredentials follows the TURN REST API convention understood by coturn's
// use-auth-secret mode.
type TURNCredentials struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	TTL      int64    `json:"ttl"`
	URIs     []string `json:"uris,omitempty"`
}

// NewTURNCredentials signs "expiry:user" with the shared secret.
func NewTURNCredentials(secret, user string, ttl time.Duration, uris []string, now time.Time) TURNCredentials {
	expires := now.Add(ttl).Unix()
	username := fmt.Sprintf("%d:%s", expires, user)
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	return TURNCredentials{
		Username: username,
		Password: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		TTL:      int64(ttl.Seconds()),
		URIs:     uris,
	}
}
