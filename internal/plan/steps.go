package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatStep is one transform applied to a value. The set of steps is
// closed: Zfill, Lower, Upper, Replace and Template.
type FormatStep interface {
	// Name is the step's name as written in a prompts document.
	Name() string
	apply(input string, values map[string]string) (string, error)
}

// Zfill left-pads with '0' to Width characters, keeping a leading sign in
// front of the padding.
type Zfill struct{ Width int }

// Lower folds to lower case.
type Lower struct{}

// Upper folds to upper case.
type Upper struct{}

// Replace substitutes every Old with New.
type Replace struct{ Old, New string }

// Template discards its input and renders Pattern against the collected
// values.
type Template struct{ Pattern string }

func (Zfill) Name() string    { return "zfill" }
func (Lower) Name() string    { return "lower" }
func (Upper) Name() string    { return "upper" }
func (Replace) Name() string  { return "replace" }
func (Template) Name() string { return "apply_string_template" }

func (s Zfill) apply(in string, _ map[string]string) (string, error) {
	n := len([]rune(in))
	if n >= s.Width {
		return in, nil
	}
	pad := strings.Repeat("0", s.Width-n)
	if in != "" && (in[0] == '+' || in[0] == '-') {
		return in[:1] + pad + in[1:], nil
	}
	return pad + in, nil
}

func (Lower) apply(in string, _ map[string]string) (string, error) {
	return strings.ToLower(in), nil
}

func (Upper) apply(in string, _ map[string]string) (string, error) {
	return strings.ToUpper(in), nil
}

func (s Replace) apply(in string, _ map[string]string) (string, error) {
	return strings.ReplaceAll(in, s.Old, s.New), nil
}

func (s Template) apply(_ string, values map[string]string) (string, error) {
	return ResolveTemplate(s.Pattern, values)
}

// ApplyFormatSteps runs steps left to right, feeding each output into the
// next step. If a step fails, the output of the last successful step is
// returned together with the error. An empty list returns seed unchanged.
func ApplyFormatSteps(steps []FormatStep, seed string, values map[string]string) (string, error) {
	current := seed
	for i, step := range steps {
		next, err := step.apply(current, values)
		if err != nil {
			return current, &SpecificationError{
				Item:   fmt.Sprintf("format step %d (%s)", i+1, step.Name()),
				Reason: "step failed",
				Err:    err,
			}
		}
		current = next
	}
	return current, nil
}

// FormatSteps is the list form used in prompts documents:
//
//	[["zfill", 2], ["upper"], ["apply_string_template", "R{row}-{rack}"]]
//
// An empty inner list means "no step" and is skipped.
type FormatSteps []FormatStep

// UnmarshalJSON parses and validates every step.
func (fs *FormatSteps) UnmarshalJSON(data []byte) error {
	var raw [][]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return &SpecificationError{Reason: "format_functions must be a list of lists", Err: err}
	}

	steps := make(FormatSteps, 0, len(raw))
	for _, entry := range raw {
		if len(entry) == 0 {
			continue
		}
		step, err := ParseFormatStep(entry)
		if err != nil {
			return err
		}
		steps = append(steps, step)
	}
	*fs = steps
	return nil
}

// ParseFormatStep builds a step from its list form, for example
// []any{"zfill", 2.0}.
func ParseFormatStep(entry []any) (FormatStep, error) {
	name, ok := entry[0].(string)
	if !ok {
		return nil, specErrorf("", "format step name must be a string, got %v", entry[0])
	}
	args := entry[1:]

	switch name {
	case "zfill":
		if len(args) != 1 {
			return nil, specErrorf(name, "expects one width argument")
		}
		width, ok := args[0].(float64)
		if !ok || width < 0 || width != float64(int(width)) {
			return nil, specErrorf(name, "width must be a non-negative integer, got %v", args[0])
		}
		return Zfill{Width: int(width)}, nil

	case "lower":
		return Lower{}, nil

	case "upper":
		return Upper{}, nil

	case "replace":
		if len(args) != 2 {
			return nil, specErrorf(name, "expects old and new arguments")
		}
		oldStr, ok1 := args[0].(string)
		newStr, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, specErrorf(name, "arguments must be strings")
		}
		return Replace{Old: oldStr, New: newStr}, nil

	case "apply_string_template", "template":
		// Older documents carry a third element listing the fields; the
		// pattern itself is authoritative.
		if len(args) < 1 {
			return nil, specErrorf(name, "expects a pattern argument")
		}
		pattern, ok := args[0].(string)
		if !ok {
			return nil, specErrorf(name, "pattern must be a string")
		}
		if _, err := parseTemplate(pattern); err != nil {
			return nil, &SpecificationError{Item: name, Reason: "invalid pattern", Err: err}
		}
		return Template{Pattern: pattern}, nil
	}

	return nil, specErrorf(name, "unknown format step")
}
