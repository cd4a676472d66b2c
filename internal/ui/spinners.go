package ui

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// DefaultSpinner is used when the configured name is unknown.
const DefaultSpinner = "line"

var spinners = map[string]spinner.Spinner{
	"line": {
		Frames: []string{"-", "\\", "|", "/"},
		FPS:    130 * time.Millisecond,
	},
	"circle": {
		Frames: []string{"◡", "⊙", "◠"},
		FPS:    120 * time.Millisecond,
	},
	"dot":       spinner.Dot,
	"minidot":   spinner.MiniDot,
	"jump":      spinner.Jump,
	"pulse":     spinner.Pulse,
	"points":    spinner.Points,
	"globe":     spinner.Globe,
	"moon":      spinner.Moon,
	"monkey":    spinner.Monkey,
	"meter":     spinner.Meter,
	"hamburger": spinner.Hamburger,
	"ellipsis":  spinner.Ellipsis,
}

// LookupSpinner returns the named spinner and whether the name was known.
// Unknown names get the line spinner. Names are case-insensitive.
func LookupSpinner(name string) (spinner.Spinner, bool) {
	s, ok := spinners[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return spinners[DefaultSpinner], false
	}
	return s, true
}

// SpinnerNames lists the available spinner names in sorted order.
func SpinnerNames() []string {
	return slices.Sorted(maps.Keys(spinners))
}
