package ui

import (
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// stopMsg ends a spinner program.
type stopMsg struct{}

// spinnerModel is the Bubble Tea model behind Spinner. It renders a single
// line and clears it when stopped.
type spinnerModel struct {
	spinner  spinner.Model
	message  string
	quitting bool
}

func newSpinnerModel(style spinner.Spinner, message string) spinnerModel {
	return spinnerModel{
		spinner: spinner.New(spinner.WithSpinner(style), spinner.WithStyle(StepRunningStyle)),
		message: message,
	}
}

// Init implements tea.Model
func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stopMsg:
		m.quitting = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m spinnerModel) View() string {
	if m.quitting {
		return ""
	}
	return m.spinner.View() + " " + m.message
}

// Spinner shows an animated line while a device call is in flight.
//
// Each Start runs a small Bubble Tea program that owns the line until
// Stop. Stop blocks until the program has exited and erased the line, so
// whatever is printed next starts on a clean line. A disabled Spinner
// (output is not a terminal) does nothing.
type Spinner struct {
	out      io.Writer
	style    spinner.Spinner
	disabled bool

	mu   sync.Mutex
	prog *tea.Program
	done chan struct{}
}

// NewSpinner returns a spinner that draws the named style to out.
func NewSpinner(out io.Writer, name string, enabled bool) *Spinner {
	style, _ := LookupSpinner(name)
	return &Spinner{out: out, style: style, disabled: !enabled}
}

// Start begins animating message. A running spinner is stopped first.
func (s *Spinner) Start(message string) {
	if s.disabled {
		return
	}
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	prog := tea.NewProgram(newSpinnerModel(s.style, message),
		tea.WithOutput(s.out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = prog.Run()
	}()
	s.prog = prog
	s.done = done
}

// Stop erases the spinner and waits for its program to exit. It is safe
// to call when nothing is running.
func (s *Spinner) Stop() {
	s.mu.Lock()
	prog, done := s.prog, s.done
	s.prog, s.done = nil, nil
	s.mu.Unlock()

	if prog == nil {
		return
	}
	prog.Send(stopMsg{})
	<-done
}
