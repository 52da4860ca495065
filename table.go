package shtest

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/shelltools/shtest/types"
)

// printResultsTable prints the per-test results of one run to the console.
func (h *Harness) printResultsTable(result *RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(h.stdout)
	t.SetTitle(fmt.Sprintf("Test Results (%s)", formatDuration(result.Duration)))

	t.AppendHeader(table.Row{
		"Test", "File", "Duration", "Status", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "File", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, res := range result.Results {
		var errMsg string
		if res.Error != nil {
			errMsg = res.Error.Error()
		}
		t.AppendRow(table.Row{
			res.Case.Name,
			res.Case.SourceFile,
			formatDuration(res.Duration),
			getResultString(res.Status),
			errMsg,
		})
	}

	if result.Status() == types.TestStatusPass {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.Duration),
		getResultString(result.Status()),
		fmt.Sprintf("%d passed, %d failed", result.Counts.Passed, result.Counts.Failed),
	})

	t.Render()
}
