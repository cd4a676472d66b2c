package plan

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestApplyFormatSteps(t *testing.T) {
	tests := []struct {
		name  string
		steps []FormatStep
		seed  string
		want  string
	}{
		{"no steps", nil, "test_input", "test_input"},
		{"zfill", []FormatStep{Zfill{Width: 2}}, "7", "07"},
		{"zfill wider input", []FormatStep{Zfill{Width: 2}}, "123", "123"},
		{"zfill keeps sign", []FormatStep{Zfill{Width: 4}}, "-7", "-007"},
		{"lower", []FormatStep{Lower{}}, "TEST INPUT", "test input"},
		{"upper", []FormatStep{Upper{}}, "test input", "TEST INPUT"},
		{"zfill then upper", []FormatStep{Zfill{Width: 6}, Upper{}}, "abc", "000ABC"},
		{"zfill then lower", []FormatStep{Zfill{Width: 6}, Lower{}}, "ABC", "000abc"},
		{"upper then zfill", []FormatStep{Upper{}, Zfill{Width: 6}}, "abc", "000ABC"},
		{"lower then zfill", []FormatStep{Lower{}, Zfill{Width: 6}}, "ABC", "000abc"},
		{"replace", []FormatStep{Replace{Old: " ", New: "-"}}, "rack 07 a", "rack-07-a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyFormatSteps(tt.steps, tt.seed, nil)
			if err != nil {
				t.Fatalf("ApplyFormatSteps error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ApplyFormatSteps(%q) = %q, want %q", tt.seed, got, tt.want)
			}
		})
	}
}

func TestApplyFormatStepsTemplateThenUpper(t *testing.T) {
	values := map[string]string{"row": "04", "rack": "04", "pdu_letter": "a"}
	steps := []FormatStep{Template{Pattern: "r{row}-{rack}/{pdu_letter}"}, Upper{}}

	got, err := ApplyFormatSteps(steps, "ignored", values)
	if err != nil {
		t.Fatalf("ApplyFormatSteps error: %v", err)
	}
	if got != "R04-04/A" {
		t.Errorf("ApplyFormatSteps = %q, want %q", got, "R04-04/A")
	}
}

func TestApplyFormatStepsStopsAtFailure(t *testing.T) {
	steps := []FormatStep{Upper{}, Template{Pattern: "{missing}"}, Lower{}}

	got, err := ApplyFormatSteps(steps, "abc", map[string]string{})
	if err == nil {
		t.Fatal("expected error for unresolved template field")
	}
	var specErr *SpecificationError
	if !errors.As(err, &specErr) {
		t.Fatalf("error type = %T, want *SpecificationError", err)
	}
	if got != "ABC" {
		t.Errorf("ApplyFormatSteps = %q, want last good value %q", got, "ABC")
	}
}

func TestFormatStepsUnmarshal(t *testing.T) {
	var steps FormatSteps
	input := `[["zfill", 6], ["upper"], [], ["apply_string_template", "R{row}", ["row"]], ["replace", "a", "b"]]`
	if err := json.Unmarshal([]byte(input), &steps); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	want := FormatSteps{Zfill{Width: 6}, Upper{}, Template{Pattern: "R{row}"}, Replace{Old: "a", New: "b"}}
	if len(steps) != len(want) {
		t.Fatalf("len(steps) = %d, want %d", len(steps), len(want))
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("steps[%d] = %#v, want %#v", i, steps[i], want[i])
		}
	}
}

func TestFormatStepsUnmarshalRejects(t *testing.T) {
	tests := []string{
		`[["title"]]`,
		`[["zfill"]]`,
		`[["zfill", "two"]]`,
		`[["zfill", 2.5]]`,
		`[["replace", "a"]]`,
		`[["apply_string_template", "{unclosed"]]`,
		`[[3]]`,
		`"zfill"`,
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			var steps FormatSteps
			err := json.Unmarshal([]byte(input), &steps)
			var specErr *SpecificationError
			if !errors.As(err, &specErr) {
				t.Errorf("Unmarshal(%s) error = %v, want *SpecificationError", input, err)
			}
		})
	}
}

// One failing step in a chain leaves the result equal to applying only the
// good steps in front of it.
func TestPropertyBadStepKeepsPrefix(t *testing.T) {
	genStep := rapid.Custom(func(t *rapid.T) FormatStep {
		switch rapid.IntRange(0, 3).Draw(t, "kind") {
		case 0:
			return Zfill{Width: rapid.IntRange(0, 12).Draw(t, "width")}
		case 1:
			return Lower{}
		case 2:
			return Upper{}
		default:
			return Replace{Old: rapid.StringN(1, 2, -1).Draw(t, "old"), New: rapid.String().Draw(t, "new")}
		}
	})

	rapid.Check(t, func(t *rapid.T) {
		good := rapid.SliceOf(genStep).Draw(t, "good")
		tail := rapid.SliceOf(genStep).Draw(t, "tail")
		seed := rapid.String().Draw(t, "seed")

		want, err := ApplyFormatSteps(good, seed, nil)
		if err != nil {
			t.Fatalf("good steps failed: %v", err)
		}

		steps := append(append(append([]FormatStep{}, good...), Template{Pattern: "{absent}"}), tail...)
		got, err := ApplyFormatSteps(steps, seed, nil)
		if err == nil {
			t.Fatal("expected error from bad step")
		}
		if got != want {
			t.Errorf("result = %q, want %q", got, want)
		}
	})
}

func TestPropertyZfillPadsWithZeros(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		word := rapid.StringMatching(`[a-zA-Z]{0,8}`).Draw(t, "word")
		width := rapid.IntRange(0, 16).Draw(t, "width")

		for _, steps := range [][]FormatStep{
			{Zfill{Width: width}, Upper{}},
			{Upper{}, Zfill{Width: width}},
		} {
			got, _ := ApplyFormatSteps(steps, word, nil)
			padding := len(got) - len(word)
			if padding < 0 {
				t.Fatalf("output %q shorter than input %q", got, word)
			}
			if got[:padding] != strings.Repeat("0", padding) {
				t.Errorf("padding of %q is not zeros", got)
			}
			if got[padding:] != strings.ToUpper(word) {
				t.Errorf("tail of %q = %q, want %q", got, got[padding:], strings.ToUpper(word))
			}
		}
	})
}
