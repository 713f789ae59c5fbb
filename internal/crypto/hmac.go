package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names sent on every signed venue request.
const (
	HeaderAPIKey     = "LW-API-KEY"
	HeaderTimestamp  = "LW-TIMESTAMP"
	HeaderPassphrase = "LW-PASSPHRASE"
	HeaderSignature  = "LW-SIGNATURE"
)

// HMACAuth holds the venue API credentials.
type HMACAuth struct {
	Key        string
	Secret     string // base64 encoded, raw bytes used when decoding fails
	Passphrase string
}

// Headers signs a request at the current time. The signature is
// base64(HMAC-SHA256(secret, timestamp+method+path+body)).
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().UnixMilli())
}

// HeadersAt is Headers with a caller supplied millisecond timestamp.
func (h *HMACAuth) HeadersAt(method, path, body string, unixMillis int64) map[string]string {
	ts := strconv.FormatInt(unixMillis, 10)
	headers := map[string]string{
		HeaderAPIKey:    h.Key,
		HeaderTimestamp: ts,
		HeaderSignature: Sign(h.secretBytes(), ts+method+path+body),
	}
	if h.Passphrase != "" {
		headers[HeaderPassphrase] = h.Passphrase
	}
	return headers
}

// Verify recomputes the signature for the given request parts.
func (h *HMACAuth) Verify(method, path, body, ts, signature string) bool {
	want := Sign(h.secretBytes(), ts+method+path+body)
	return hmac.Equal([]byte(want), []byte(signature))
}

func (h *HMACAuth) secretBytes() []byte {
	b, err := base64.StdEncoding.DecodeString(h.Secret)
	if err != nil {
		return []byte(h.Secret)
	}
	return b
}

// Sign returns base64(HMAC-SHA256(key, message)).
func Sign(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
