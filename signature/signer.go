// Package signature implements Slack request signing (scheme v0) and its
// verification.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Version is the only signing scheme Slack currently emits.
const Version = "v0"

// Slack request headers carrying the signature and its timestamp.
const (
	HeaderSignature = "X-Slack-Signature"
	HeaderTimestamp = "X-Slack-Request-Timestamp"
)

// Sign returns the v0 signature for body at the given unix timestamp.
// The signed base string is "v0:{timestamp}:{body}".
func Sign(secret string, timestamp int64, body []byte) string {
	return sign(secret, strconv.FormatInt(timestamp, 10), body)
}

// sign works on the raw header value so verification hashes exactly the
// bytes the sender hashed.
func sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Version + ":" + timestamp + ":"))
	mac.Write(body)
	return Version + "=" + hex.EncodeToString(mac.Sum(nil))
}
