package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/rackops/imdcfg/internal/plan"
)

// RenderPlan renders the items the operator reviews before anything is
// sent, one row per item: its display name and the value it will set.
// Callers pass plan.Displayable output; rows keep the given order.
func RenderPlan(items []plan.OrderedConfigItem) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		name := item.ConfigItemName
		if name == "" {
			name = item.ConfigItem
		}
		rows = append(rows, []string{name, item.ValueToDisplay})
	}

	valueStyle := TableCellStyle.Bold(true)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(PrimaryColor)).
		Headers("Setting", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case col == 0:
				return TableKeyStyle
			default:
				return valueStyle
			}
		}).
		Render()
}

// PrintPlan prints the review table under a short title.
func (p *Printer) PrintPlan(items []plan.OrderedConfigItem) {
	p.Println(ProgressLabelStyle.Render("The following configuration will be applied:"))
	p.Println(RenderPlan(items))
}
