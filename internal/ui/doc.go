// Package ui renders the terminal output of imd-cfg.
//
// Output is line oriented: a header when an action starts, one status line
// per device call (Printer, which the apply engine uses as its Reporter), a
// review table of the configuration about to be sent, and a result box at
// the end. Lipgloss provides the styles.
//
// Two components animate while work is in flight. Spinner runs a short
// lived Bubble Tea program around each device call and erases its line
// before returning from Stop. TransferBar draws a bubbles progress bar for
// firmware downloads and uploads. Both stay quiet when output is not a
// terminal.
//
// Spinner styles are looked up by name (see SpinnerNames); an unknown name
// falls back to "line".
package ui
