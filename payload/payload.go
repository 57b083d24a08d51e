// Package payload decodes Slack interactivity bodies on a best-effort
// basis. Decoding never fails: anything unrecognised is kept as an opaque
// raw body.
package payload

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Kind records how a body was interpreted.
type Kind string

const (
	// KindForm is a form body whose "payload" field holds JSON.
	KindForm Kind = "form"
	// KindJSON is a bare JSON object body.
	KindJSON Kind = "json"
	// KindRaw is an opaque body that could not be decoded.
	KindRaw Kind = "raw"
)

const formField = "payload"

// Payload is a decoded inbound body. Raw always holds the original bytes;
// Data is nil for KindRaw.
type Payload struct {
	Kind Kind
	Data map[string]any
	Raw  []byte
}

// Type returns the payload's "type" field (e.g. "block_actions"), or "".
func (p Payload) Type() string {
	if p.Data == nil {
		return ""
	}
	s, _ := p.Data["type"].(string)
	return s
}

// Parse interprets body as "payload=<urlencoded JSON>" first, then as a
// raw JSON object, and falls back to KindRaw.
func Parse(body []byte) Payload {
	raw := Payload{Kind: KindRaw, Raw: body}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return raw
	}

	if bytes.HasPrefix(trimmed, []byte(formField+"=")) {
		values, err := url.ParseQuery(string(trimmed))
		if err != nil {
			return raw
		}
		data, ok := decodeObject(values.Get(formField))
		if !ok {
			return raw
		}
		return Payload{Kind: KindForm, Data: data, Raw: body}
	}

	if data, ok := decodeObject(string(trimmed)); ok {
		return Payload{Kind: KindJSON, Data: data, Raw: body}
	}
	return raw
}

// decodeObject decodes s as a JSON object. Numbers stay json.Number so
// large Slack timestamps keep their digits.
func decodeObject(s string) (map[string]any, bool) {
	if s == "" {
		return nil, false
	}
	v, err := jsonschema.UnmarshalJSON(strings.NewReader(s))
	if err != nil {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}
