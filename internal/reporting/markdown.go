package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the report as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Distribution Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Library: %s\n\n", r.Library))
	sb.WriteString(fmt.Sprintf("Window (ms): %d to %d\n\n", r.WindowStart, r.WindowEnd))

	// Run Summary
	sb.WriteString("## Run Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Runs | %d |\n", r.Summary.TotalRuns))
	sb.WriteString(fmt.Sprintf("| Total Transfers | %d |\n", r.Summary.TotalTransfers))
	sb.WriteString(fmt.Sprintf("| Total Distributed | %s |\n", r.Summary.TotalDistributed))
	sb.WriteString(fmt.Sprintf("| Average Run Duration (ms) | %.1f |\n", r.Summary.AverageDurationMs))
	sb.WriteString(fmt.Sprintf("| Oracle Failures | %d |\n", r.Summary.OracleFailures))
	sb.WriteString("\n")

	// Totals by Token
	sb.WriteString("## Totals by Token\n\n")
	if len(r.TokenTotals) > 0 {
		sb.WriteString("| Token | Total | Transfers |\n")
		sb.WriteString("|-------|-------|-----------|\n")
		for _, row := range r.TokenTotals {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d |\n", row.Token, row.Total, row.TransferCount))
		}
	} else {
		sb.WriteString("No transfers in window.\n")
	}
	sb.WriteString("\n")

	// Totals by Output Account
	sb.WriteString("## Totals by Output Account\n\n")
	if len(r.OutputTotals) > 0 {
		sb.WriteString("| Output Account | Token | Total | Transfers |\n")
		sb.WriteString("|----------------|-------|-------|-----------|\n")
		for _, row := range r.OutputTotals {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d |\n",
				row.OutputAccount, row.Token, row.Total, row.TransferCount))
		}
	} else {
		sb.WriteString("No transfers in window.\n")
	}
	sb.WriteString("\n")

	// Runs
	sb.WriteString("## Runs\n\n")
	if len(r.Runs) > 0 {
		sb.WriteString("| Run | Executed At (ms) | Policy | Total | Transfers | Duration (ms) |\n")
		sb.WriteString("|-----|------------------|--------|-------|-----------|---------------|\n")
		for _, row := range r.Runs {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s | %d | %d |\n",
				row.RunID, row.ExecutedAt, row.PolicyVersion,
				row.TotalDistributed, row.TransferCount, row.DurationMs))
		}
	} else {
		sb.WriteString("No runs in window.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
