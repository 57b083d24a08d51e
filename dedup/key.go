package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key prefixes keep the three derivation strategies from colliding.
const (
	keyExplicit  = "id:"
	keyComposite = "action:"
	keyRaw       = "raw:"
)

// explicitFields are payload identifiers that name a logical action on
// their own, checked in order.
var explicitFields = []string{"dedup_key", "event_id"}

// ActionKey derives the fingerprint of a decoded interactivity payload.
// An explicit identifier wins; otherwise the key is the composite of the
// message timestamp, the first action's action_id and the acting user's
// id. It returns "" when none of those are present.
func ActionKey(p map[string]any) string {
	if p == nil {
		return ""
	}

	for _, field := range explicitFields {
		if v := str(p[field]); v != "" {
			return keyExplicit + v
		}
	}

	message := str(lookup(p, "container", "message_ts"))
	if message == "" {
		message = str(lookup(p, "message", "ts"))
	}
	if message == "" {
		message = str(lookup(p, "container", "view_id"))
	}

	var action string
	if actions, ok := p["actions"].([]any); ok && len(actions) > 0 {
		if first, ok := actions[0].(map[string]any); ok {
			action = str(first["action_id"])
		}
	}

	user := str(lookup(p, "user", "id"))

	if message == "" && action == "" && user == "" {
		return ""
	}
	return keyComposite + strings.Join([]string{message, action, user}, "|")
}

// RawKey fingerprints an opaque body so byte-identical redeliveries are
// still suppressed when nothing can be decoded.
func RawKey(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum := sha256.Sum256(body)
	return keyRaw + hex.EncodeToString(sum[:])
}

func lookup(p map[string]any, path ...string) any {
	var cur any = p
	for _, k := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case interface{ String() string }:
		return s.String()
	default:
		return ""
	}
}
