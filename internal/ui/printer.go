package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Printer writes styled status lines and boxes. It satisfies the
// deviceconfig Reporter so apply results go through the same styles as
// everything else.
type Printer struct {
	mu    sync.Mutex
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.out
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// SetWidth overrides the detected terminal width.
func (p *Printer) SetWidth(width int) {
	p.width = width
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	p.Println("")
}

// Success prints a green check line.
func (p *Printer) Success(msg string) {
	p.Println(StepCompleteStyle.Render(SuccessMarker) + " " + msg)
}

// Warning prints an orange warning line.
func (p *Printer) Warning(msg string) {
	p.Println(StepRunningStyle.Render(WarningMarker) + " " + msg)
}

// Error prints a red failure line.
func (p *Printer) Error(msg string) {
	p.Println(ErrorTitleStyle.Render(FailureMarker) + " " + ErrorMessageStyle.Render(msg))
}

// Info prints a neutral status line.
func (p *Printer) Info(msg string) {
	p.Println(StepPendingStyle.Render(InfoMarker) + " " + msg)
}

// Address styles an IP address or URL for inclusion in a status line.
func Address(s string) string {
	return AddressStyle.Render(s)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params ...Detail) {
	p.Println(NewHeader(title, command, params...).SetWidth(p.width).Render())
}

// PrintGreeting prints the prompts document greeting.
func (p *Printer) PrintGreeting(text string) {
	if s := RenderGreeting(text, p.width); s != "" {
		p.Println(s)
	}
}

// PrintResult prints a result box.
func (p *Printer) PrintResult(r *Result) {
	p.Println(r.SetWidth(p.width).Render())
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details ...Detail) {
	p.PrintResult(NewSuccessResult(title, details...))
}

// PrintFailure prints an error result box with troubleshooting tips
func (p *Printer) PrintFailure(title string, err error, troubleshooting []string) {
	p.PrintResult(NewFailureResult(title, err, troubleshooting))
}
