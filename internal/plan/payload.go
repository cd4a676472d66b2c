package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is the data carried by an API call. Formatter output is text
// (often a dict-literal produced by a template); defaults carry a JSON
// object literally.
type Payload struct {
	text   *string
	object map[string]any
}

// TextPayload wraps template output.
func TextPayload(s string) Payload {
	return Payload{text: &s}
}

// ObjectPayload wraps a literal JSON object.
func ObjectPayload(m map[string]any) Payload {
	return Payload{object: m}
}

// IsZero reports whether the payload carries nothing.
func (p Payload) IsZero() bool {
	return p.text == nil && p.object == nil
}

// Text returns the text form and whether the payload is text.
func (p Payload) Text() (string, bool) {
	if p.text == nil {
		return "", false
	}
	return *p.text, true
}

// Object returns the object form and whether the payload is an object.
func (p Payload) Object() (map[string]any, bool) {
	return p.object, p.object != nil
}

// String renders the payload for display and logs.
func (p Payload) String() string {
	if p.text != nil {
		return *p.text
	}
	if p.object != nil {
		b, _ := json.Marshal(p.object)
		return string(b)
	}
	return ""
}

func (p Payload) MarshalJSON() ([]byte, error) {
	switch {
	case p.text != nil:
		return json.Marshal(*p.text)
	case p.object != nil:
		return json.Marshal(p.object)
	}
	return []byte("null"), nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*p = Payload{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = TextPayload(s)
		return nil
	case len(data) > 0 && data[0] == '{':
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*p = ObjectPayload(m)
		return nil
	}
	return fmt.Errorf("api call data must be a string or an object, got %s", data)
}

// Flag is a boolean that also accepts 0 and 1, as prompts documents use both.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch b := v.(type) {
	case nil:
		*f = false
	case bool:
		*f = Flag(b)
	case float64:
		*f = b != 0
	default:
		return fmt.Errorf("expected boolean or number, got %s", data)
	}
	return nil
}
