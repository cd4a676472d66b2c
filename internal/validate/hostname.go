package validate

import (
	"regexp"
	"strings"
	"unicode"
)

// HostnameFormat describes how IMD hostnames vary between units in a rack,
// for example "rack07-pdu-a1" and "rack07-pdu-b1". Regex must match from
// the start of the name; VariableGroupIndex is the zero-based capture group
// that cycles through Sequence.
type HostnameFormat struct {
	Regex              string   `mapstructure:"hostname_regex" json:"hostname_regex" yaml:"hostname_regex"`
	VariableGroupIndex int      `mapstructure:"variable_group_index" json:"variable_group_index" yaml:"variable_group_index"`
	Sequence           []string `mapstructure:"sequence" json:"sequence" yaml:"sequence"`
}

// NextInSequence returns the element after current in f.Sequence,
// wrapping around and keeping current's case. The second result is false
// when current is not in the sequence.
func (f HostnameFormat) NextInSequence(current string) (string, bool) {
	if len(f.Sequence) == 0 {
		return "", false
	}
	for i, v := range f.Sequence {
		if !strings.EqualFold(v, current) {
			continue
		}
		next := f.Sequence[(i+1)%len(f.Sequence)]
		if isUpper(current) {
			return strings.ToUpper(next), true
		}
		return strings.ToLower(next), true
	}
	return "", false
}

// GuessNextHostname proposes the hostname of the next unit after previous.
// The second result is false when previous does not follow the format.
func (f HostnameFormat) GuessNextHostname(previous string) (string, bool) {
	if f.Regex == "" {
		return "", false
	}
	re, err := regexp.Compile(f.Regex)
	if err != nil {
		return "", false
	}

	loc := re.FindStringSubmatchIndex(previous)
	group := f.VariableGroupIndex + 1
	if loc == nil || loc[0] != 0 || group < 1 || 2*group+1 >= len(loc) {
		return "", false
	}
	start, end := loc[2*group], loc[2*group+1]
	if start < 0 {
		return "", false
	}

	next, ok := f.NextInSequence(previous[start:end])
	if !ok {
		return "", false
	}
	return previous[:start] + next + previous[end:], true
}

func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
