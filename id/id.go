// Package id defines TypeID-based identifiers for relayed requests,
// forwarding tasks and dead-letter entries.
//
// IDs are K-sortable (UUIDv7-based) and render as "prefix_suffix", which
// keeps log lines greppable across the ack and the detached forward.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the kind of object an ID belongs to.
type Prefix string

const (
	// PrefixRequest tags one inbound webhook request.
	PrefixRequest Prefix = "req"
	// PrefixForward tags one forwarding task (all of its sends and retries).
	PrefixForward Prefix = "fwd"
	// PrefixDLQ tags a dead-letter entry.
	PrefixDLQ Prefix = "dlq"
)

// ID wraps a TypeID.
//
//nolint:recvcheck // value receivers for reads, pointer receiver for UnmarshalText.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero ID.
var Nil ID

// New generates an ID with the given prefix. It panics on an invalid
// prefix, which is a programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a "prefix_suffix" string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and checks its prefix.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// NewRequestID generates an inbound request ID.
func NewRequestID() ID { return New(PrefixRequest) }

// NewForwardID generates a forwarding task ID.
func NewForwardID() ID { return New(PrefixForward) }

// NewDLQID generates a dead-letter entry ID.
func NewDLQID() ID { return New(PrefixDLQ) }

// ParseDLQID parses a dead-letter entry ID.
func ParseDLQID(s string) (ID, error) { return ParseWithPrefix(s, PrefixDLQ) }

// String returns the TypeID string, or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero ID.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
