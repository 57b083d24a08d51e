package payload

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Shape names returned by Classifier.Classify.
const (
	ShapeBlockActions   = "block_actions"
	ShapeViewSubmission = "view_submission"
	ShapeUnknown        = "unknown"
)

// builtinShapes describes the interactivity payloads the downstream
// automation understands. Matching is informational: unmatched payloads
// are still forwarded.
var builtinShapes = map[string]string{
	ShapeBlockActions: `{
		"type": "object",
		"required": ["type", "actions", "user"],
		"properties": {
			"type": {"const": "block_actions"},
			"actions": {
				"type": "array",
				"minItems": 1,
				"items": {"type": "object", "required": ["action_id"]}
			},
			"user": {"type": "object", "required": ["id"]}
		}
	}`,
	ShapeViewSubmission: `{
		"type": "object",
		"required": ["type", "view", "user"],
		"properties": {
			"type": {"const": "view_submission"},
			"view": {"type": "object", "required": ["id"]},
			"user": {"type": "object", "required": ["id"]}
		}
	}`,
}

// Classifier matches decoded payloads against named JSON Schemas.
type Classifier struct {
	mu      sync.RWMutex
	names   []string
	schemas map[string]*jsonschema.Schema
}

// NewClassifier compiles the built-in interactivity shapes.
func NewClassifier() (*Classifier, error) {
	c := &Classifier{schemas: make(map[string]*jsonschema.Schema)}
	for name, doc := range builtinShapes {
		if err := c.Register(name, doc); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register compiles schemaJSON under name, replacing any previous shape
// with the same name.
func (c *Classifier) Register(name, schemaJSON string) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return fmt.Errorf("payload: unmarshal schema %q: %w", name, err)
	}

	loc := "slackrelay://shape/" + name

	comp := jsonschema.NewCompiler()
	if err := comp.AddResource(loc, doc); err != nil {
		return fmt.Errorf("payload: add schema %q: %w", name, err)
	}
	compiled, err := comp.Compile(loc)
	if err != nil {
		return fmt.Errorf("payload: compile schema %q: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.schemas[name]; !exists {
		c.names = append(c.names, name)
		sort.Strings(c.names)
	}
	c.schemas[name] = compiled
	return nil
}

// Classify returns the first shape (by name) that p satisfies, or
// ShapeUnknown. Raw payloads are always unknown.
func (c *Classifier) Classify(p Payload) string {
	if c == nil || p.Data == nil {
		return ShapeUnknown
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, name := range c.names {
		if c.schemas[name].Validate(any(p.Data)) == nil {
			return name
		}
	}
	return ShapeUnknown
}
