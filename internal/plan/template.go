package plan

import (
	"fmt"
	"strings"
)

// templatePart is either literal text or a named field.
type templatePart struct {
	literal string
	field   string
}

// parseTemplate splits pattern into literal and field parts using the
// brace rules of Python's str.format: "{{" and "}}" are literal braces and
// "{name}" is a named field. Positional fields, conversions and format
// specs are not supported.
func parseTemplate(pattern string) ([]templatePart, error) {
	var parts []templatePart
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, templatePart{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '{':
			if i+1 < len(pattern) && pattern[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(pattern[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unmatched '{' at offset %d", i)
			}
			name := pattern[i+1 : i+1+end]
			if name == "" {
				return nil, fmt.Errorf("empty field at offset %d", i)
			}
			if strings.ContainsAny(name, "{!:[.") {
				return nil, fmt.Errorf("unsupported field %q", name)
			}
			flush()
			parts = append(parts, templatePart{field: name})
			i += end + 1
		case '}':
			if i+1 < len(pattern) && pattern[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("single '}' at offset %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return parts, nil
}

// TemplateFields lists the field names referenced by pattern in order of
// appearance.
func TemplateFields(pattern string) ([]string, error) {
	parts, err := parseTemplate(pattern)
	if err != nil {
		return nil, err
	}
	var fields []string
	for _, p := range parts {
		if p.field != "" {
			fields = append(fields, p.field)
		}
	}
	return fields, nil
}

// ResolveTemplate substitutes every {name} in pattern with values[name]
// verbatim. A field with no value is an error.
func ResolveTemplate(pattern string, values map[string]string) (string, error) {
	parts, err := parseTemplate(pattern)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, p := range parts {
		if p.field == "" {
			b.WriteString(p.literal)
			continue
		}
		v, ok := values[p.field]
		if !ok {
			return "", fmt.Errorf("no value for field %q", p.field)
		}
		b.WriteString(v)
	}
	return b.String(), nil
}
