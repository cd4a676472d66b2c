// Package validate checks operator input against the verify steps declared
// in a prompts document and holds the naming rules used for IMDs.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	hostnameLabel    = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)
	usernamePattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,31}$`)
	firmwarePattern  = regexp.MustCompile(`^\d{1,2}.\d{1,2}.\d{1,2}$`)
	maxDomainNameLen = 253
)

// ErrEmpty is returned for empty input where a value is required.
var ErrEmpty = errors.New("a value is required")

// Step is one verify function. The set is closed: IsInt, IsOneOf,
// IsBetween, IsHostname, IsDomainName and IsValidUsername.
type Step interface {
	Name() string
	Check(input string) error
}

// IsInt accepts base-10 integers.
type IsInt struct{}

// IsOneOf accepts any of Options, ignoring case.
type IsOneOf struct{ Options []string }

// IsBetween accepts input whose length lies in [Min, Max].
type IsBetween struct{ Min, Max int }

// IsHostname accepts a single RFC 1123 label.
type IsHostname struct{}

// IsDomainName accepts a dotted name of RFC 1123 labels.
type IsDomainName struct{}

// IsValidUsername accepts IMD account names.
type IsValidUsername struct{}

func (IsInt) Name() string           { return "is_int" }
func (IsOneOf) Name() string         { return "is_one_of" }
func (IsBetween) Name() string       { return "is_between" }
func (IsHostname) Name() string      { return "is_hostname" }
func (IsDomainName) Name() string    { return "is_domain_name" }
func (IsValidUsername) Name() string { return "is_valid_username" }

func (IsInt) Check(input string) error {
	if _, err := strconv.Atoi(input); err != nil {
		return fmt.Errorf("%q is not a whole number", input)
	}
	return nil
}

func (s IsOneOf) Check(input string) error {
	for _, opt := range s.Options {
		if strings.EqualFold(opt, input) {
			return nil
		}
	}
	return fmt.Errorf("%q must be one of: %s", input, strings.Join(s.Options, ", "))
}

func (s IsBetween) Check(input string) error {
	n := len([]rune(input))
	if n < s.Min || n > s.Max {
		return fmt.Errorf("length must be between %d and %d characters (got %d)", s.Min, s.Max, n)
	}
	return nil
}

func (IsHostname) Check(input string) error {
	if !IsValidHostname(input) {
		return fmt.Errorf("%q is not a valid hostname", input)
	}
	return nil
}

func (IsDomainName) Check(input string) error {
	if len(input) == 0 || len(input) > maxDomainNameLen {
		return fmt.Errorf("%q is not a valid domain name", input)
	}
	for _, label := range strings.Split(input, ".") {
		if !hostnameLabel.MatchString(label) {
			return fmt.Errorf("%q is not a valid domain name", input)
		}
	}
	return nil
}

func (IsValidUsername) Check(input string) error {
	if !usernamePattern.MatchString(input) {
		return fmt.Errorf("%q is not a valid username (letters, digits, '_' and '-', 32 characters max, starting with a letter or digit)", input)
	}
	return nil
}

// IsValidHostname reports whether name is a single RFC 1123 label.
func IsValidHostname(name string) bool {
	return hostnameLabel.MatchString(name)
}

// IsValidFirmwareVersion reports whether v looks like an IMD firmware
// version such as 6.1.2 or 10.02.33.
func IsValidFirmwareVersion(v string) bool {
	return firmwarePattern.MatchString(v)
}

// Steps is the list form used in prompts documents:
//
//	[["is_hostname"], ["is_between", 1, 300], ["is_one_of", ["a", "b"]]]
type Steps []Step

// UnmarshalJSON parses every verify step, rejecting unknown names.
func (s *Steps) UnmarshalJSON(data []byte) error {
	var raw [][]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("verify_functions must be a list of lists: %w", err)
	}

	steps := make(Steps, 0, len(raw))
	for _, entry := range raw {
		if len(entry) == 0 {
			continue
		}
		step, err := ParseStep(entry)
		if err != nil {
			return err
		}
		steps = append(steps, step)
	}
	*s = steps
	return nil
}

// ParseStep builds a verify step from its list form.
func ParseStep(entry []any) (Step, error) {
	name, ok := entry[0].(string)
	if !ok {
		return nil, fmt.Errorf("verify step name must be a string, got %v", entry[0])
	}
	args := entry[1:]

	switch name {
	case "is_int":
		return IsInt{}, nil
	case "is_hostname":
		return IsHostname{}, nil
	case "is_domain_name":
		return IsDomainName{}, nil
	case "is_valid_username":
		return IsValidUsername{}, nil

	case "is_one_of":
		if len(args) != 1 {
			return nil, fmt.Errorf("is_one_of expects a list of options")
		}
		list, ok := args[0].([]any)
		if !ok {
			return nil, fmt.Errorf("is_one_of expects a list of options")
		}
		opts := make([]string, 0, len(list))
		for _, v := range list {
			opts = append(opts, fmt.Sprint(v))
		}
		return IsOneOf{Options: opts}, nil

	case "is_between":
		if len(args) != 2 {
			return nil, fmt.Errorf("is_between expects min and max")
		}
		lo, ok1 := args[0].(float64)
		hi, ok2 := args[1].(float64)
		if !ok1 || !ok2 || lo > hi {
			return nil, fmt.Errorf("is_between expects numeric min <= max")
		}
		return IsBetween{Min: int(lo), Max: int(hi)}, nil
	}

	return nil, fmt.Errorf("unknown verify step %q", name)
}

// Input checks input against steps. Empty input passes when emptyAllowed
// and fails with ErrEmpty otherwise; with no steps any non-empty input
// passes.
func Input(steps []Step, emptyAllowed bool, input string) error {
	if input == "" {
		if emptyAllowed {
			return nil
		}
		return ErrEmpty
	}
	for _, step := range steps {
		if err := step.Check(input); err != nil {
			return err
		}
	}
	return nil
}
