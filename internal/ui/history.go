package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/rackops/imdcfg/internal/config"
)

// historyTimeFormat matches the timestamps shown for saved state.
const historyTimeFormat = "2006-01-02 15:04"

// RenderHistory renders configured IMDs as a table, in the order given.
func RenderHistory(records []*config.DeviceRecord) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		status := StepMarkerComplete
		if !r.Complete {
			status = StepMarkerSkipped + " partial"
		}
		firmware := r.Firmware
		if firmware == "" {
			firmware = "-"
		}
		rows = append(rows, []string{
			r.ConfiguredAt.Local().Format(historyTimeFormat),
			r.Hostname,
			r.IP,
			firmware,
			status,
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(MutedColor)).
		Headers("Configured", "Hostname", "IP", "Firmware", "Result").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		}).
		Render()
}

// PrintHistory prints the history table, or a note when it is empty.
func (p *Printer) PrintHistory(records []*config.DeviceRecord) {
	if len(records) == 0 {
		p.Info("No IMDs have been configured from this workstation yet.")
		return
	}
	p.Println(RenderHistory(records))
}
