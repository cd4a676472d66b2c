package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// StepStatus represents the current state of a step
type StepStatus int

const (
	StepPending  StepStatus = iota // Not yet started
	StepRunning                    // Currently executing
	StepComplete                   // Successfully completed
	StepFailed                     // Failed
	StepSkipped                    // Skipped
)

// Step represents a single step in a multi-step operation
type Step struct {
	Number  int        // Step number (1-based)
	Name    string     // Step description
	Status  StepStatus // Current status
	Message string     // Optional status message (e.g., "6.1.2", "already current")
}

// Steps tracks a fixed list of named steps, such as the stages of a
// firmware upgrade, and renders each one as a status line.
type Steps struct {
	steps []Step
}

// NewSteps creates a step list from names.
func NewSteps(names ...string) *Steps {
	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{Number: i + 1, Name: name}
	}
	return &Steps{steps: steps}
}

// Len returns the number of steps.
func (s *Steps) Len() int {
	return len(s.steps)
}

// Step returns a copy of step n (1-based).
func (s *Steps) Step(n int) Step {
	if n < 1 || n > len(s.steps) {
		return Step{}
	}
	return s.steps[n-1]
}

// Update sets the status of step n and returns its rendered line. Out of
// range numbers render nothing.
func (s *Steps) Update(n int, status StepStatus, message string) string {
	if n < 1 || n > len(s.steps) {
		return ""
	}
	s.steps[n-1].Status = status
	s.steps[n-1].Message = message
	return s.Line(n)
}

// Line renders step n as "[n/total] name  marker  (message)".
func (s *Steps) Line(n int) string {
	step := s.Step(n)
	if step.Number == 0 {
		return ""
	}

	var marker string
	var style lipgloss.Style
	switch step.Status {
	case StepComplete:
		marker, style = StepMarkerComplete, StepCompleteStyle
	case StepRunning:
		marker, style = StepMarkerRunning, StepRunningStyle
	case StepFailed:
		marker, style = FailureMarker, ErrorTitleStyle
	case StepSkipped:
		marker, style = StepMarkerSkipped, StepPendingStyle
	default:
		marker, style = StepMarkerPending, StepPendingStyle
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("  [%d/%d] ", step.Number, len(s.steps)))
	b.WriteString(style.Render(step.Name))

	padding := 40 - lipgloss.Width(step.Name)
	if padding < 1 {
		padding = 1
	}
	b.WriteString(strings.Repeat(" ", padding))
	b.WriteString(style.Render(marker))

	if step.Message != "" {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + step.Message + ")"))
	}
	return b.String()
}

// Render returns every step line.
func (s *Steps) Render() string {
	lines := make([]string, 0, len(s.steps))
	for i := range s.steps {
		lines = append(lines, s.Line(i+1))
	}
	return strings.Join(lines, "\n")
}

// TransferBar draws a byte-count progress bar for firmware downloads and
// uploads. It is an io.Writer so it can sit behind an io.TeeReader, and
// Set accepts the cumulative counts reported by upload callbacks. With an
// unknown total only the byte count is shown.
type TransferBar struct {
	mu       sync.Mutex
	out      io.Writer
	label    string
	total    int64
	current  int64
	bar      progress.Model
	disabled bool
	finished bool
}

// NewTransferBar creates a bar for a transfer of total bytes (0 when
// unknown). A disabled bar only prints the final line.
func NewTransferBar(out io.Writer, label string, total int64, enabled bool) *TransferBar {
	return &TransferBar{
		out:      out,
		label:    label,
		total:    total,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		disabled: !enabled,
	}
}

// Write counts len(p) bytes as transferred.
func (t *TransferBar) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current += int64(len(p))
	t.draw()
	return len(p), nil
}

// Set records that n bytes have been transferred in total.
func (t *TransferBar) Set(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = n
	t.draw()
}

// Current returns the number of bytes counted so far.
func (t *TransferBar) Current() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Finish prints the final state of the bar and ends the line.
func (t *TransferBar) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	_, _ = fmt.Fprintf(t.out, "\r%s\n", t.view())
}

func (t *TransferBar) draw() {
	if t.disabled || t.finished {
		return
	}
	_, _ = fmt.Fprintf(t.out, "\r%s", t.view())
}

func (t *TransferBar) view() string {
	label := ProgressLabelStyle.Render(t.label)
	if t.total <= 0 {
		return fmt.Sprintf("%s  %s (unknown total size)", label, FormatBytes(t.current))
	}
	pct := float64(t.current) / float64(t.total)
	if pct > 1 {
		pct = 1
	}
	return fmt.Sprintf("%s  %s  %s / %s", label, t.bar.ViewAs(pct), FormatBytes(t.current), FormatBytes(t.total))
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
