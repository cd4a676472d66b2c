package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Header is the banner printed when an action starts: what is being done,
// which command, and against which IMD.
type Header struct {
	Title   string   // e.g., "FIRMWARE UPGRADE"
	Command string   // e.g., "imd-cfg upgrade"
	Params  []Detail // e.g., {"IMD", "192.168.123.123"}
	Width   int      // Terminal width for responsive rendering
}

// NewHeader creates a new header with the given values
func NewHeader(title, command string, params ...Detail) *Header {
	return &Header{
		Title:   title,
		Command: command,
		Params:  params,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

// Render returns the styled header as a string
func (h *Header) Render() string {
	width := clampWidth(h.Width)

	titleLine := HeaderTitleStyle.Render(strings.ToUpper(h.Title))
	topSection := titleLine
	if h.Command != "" {
		topSection = lipgloss.JoinVertical(lipgloss.Left, titleLine, HeaderCommandStyle.Render(h.Command))
	}

	content := topSection
	if len(h.Params) > 0 {
		dividerWidth := width - 6 // Account for border and padding
		if dividerWidth < 10 {
			dividerWidth = 10
		}
		divider := RenderHorizontalDivider(dividerWidth, "─")
		params := strings.Join(renderDetails(h.Params, HeaderParamKeyStyle, HeaderParamValueStyle, ""), "\n")
		content = lipgloss.JoinVertical(lipgloss.Left, topSection, divider, params)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2). // Account for border characters
		Render(content)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}

// RenderGreeting renders the prompts document greeting in a muted rounded
// box. Empty text renders nothing.
func RenderGreeting(text string, width int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	width = clampWidth(width)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Foreground(TextColor).
		Width(width-2).
		Padding(0, 1).
		Render(text)
}
