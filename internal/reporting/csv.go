package reporting

import (
	"fmt"
	"strings"
)

// RenderRunsCSV renders the run listing as a CSV string.
func RenderRunsCSV(runs []RunRow) string {
	var sb strings.Builder

	sb.WriteString("run_id,executed_at,policy_version,total_distributed,transfer_count,duration_ms\n")

	for _, r := range runs {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%s,%d,%d\n",
			r.RunID,
			r.ExecutedAt,
			r.PolicyVersion,
			r.TotalDistributed,
			r.TransferCount,
			r.DurationMs,
		))
	}

	return sb.String()
}

// RenderTokenTotalsCSV renders per-token totals as a CSV string.
func RenderTokenTotalsCSV(rows []TokenTotalRow) string {
	var sb strings.Builder

	sb.WriteString("token,total,transfer_count\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%d\n", r.Token, r.Total, r.TransferCount))
	}

	return sb.String()
}
