package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ResetPhrase is what the operator types to confirm a factory reset.
const ResetPhrase = "RESET"

// LineReader reads one line of operator input without the newline.
type LineReader interface {
	ReadLine() (string, error)
}

// ConfirmDangerousOperation displays a warning box and asks the operator to
// type phrase to proceed. It reports whether they did. Read errors are
// returned so an interrupted prompt is not mistaken for a refusal.
func ConfirmDangerousOperation(r LineReader, out io.Writer, title string, warnings []string, disclaimer, phrase string) (bool, error) {
	width := clampWidth(GetTerminalWidth())

	var lines []string
	lines = append(lines, "", WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, title)), "")

	bulletStyle := lipgloss.NewStyle().Foreground(TextColor)
	for _, warning := range warnings {
		lines = append(lines, bulletStyle.Render("   • "+warning))
	}
	lines = append(lines, "")

	if disclaimer != "" {
		disclaimerStyle := lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true).
			Width(width - 12).
			PaddingLeft(3)
		lines = append(lines, disclaimerStyle.Render(disclaimer), "")
	}

	_, _ = fmt.Fprintln(out, WarningBoxStyle(width).Render(strings.Join(lines, "\n")))
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprint(out, PromptStyle.Render(fmt.Sprintf("To proceed, type %q and press Enter: ", phrase)))

	input, err := r.ReadLine()
	_, _ = fmt.Fprintln(out)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(input) == phrase {
		return true, nil
	}

	_, _ = fmt.Fprintln(out, lipgloss.NewStyle().Foreground(MutedColor).Render("  Operation cancelled."))
	_, _ = fmt.Fprintln(out)
	return false, nil
}

// ConfirmFactoryReset is the confirmation shown before an IMD is reset to
// factory defaults.
func ConfirmFactoryReset(r LineReader, out io.Writer, ip string) (bool, error) {
	return ConfirmDangerousOperation(r, out,
		"FACTORY RESET",
		[]string{
			"The IMD at " + ip + " will be reset to factory defaults",
			"All users, network settings and labels on the unit are erased",
			"The unit reboots and comes back on its default address",
		},
		"Any configuration that is not also recorded in the prompts file is lost. "+
			"Make sure no other session is configuring this unit.",
		ResetPhrase,
	)
}
