package viz

import (
	"fmt"
	"strings"
	"time"

	"github.com/san-kum/cmeode/internal/launcher"
)

// Status renders the badge for a replicate event kind.
func Status(k launcher.EventKind) string {
	switch k {
	case launcher.Finished, launcher.MasterReady:
		return StatusDone.Render("✓ " + k.String())
	case launcher.Failed:
		return StatusFailed.Render("✗ " + k.String())
	}
	return StatusRunning.Render("• " + k.String())
}

// SummaryPanel renders the batch report printed when a launch completes.
func SummaryPanel(batch string, s launcher.Summary, runtimes []float64) string {
	var sb strings.Builder
	sb.WriteString(Title.Render("SIMULATION SUMMARY"))
	sb.WriteString("\n")
	sb.WriteString(Subtle.Render("batch " + batch))
	sb.WriteString("\n\n")

	const w = 16
	sb.WriteString(Metric("total", fmt.Sprint(s.Total), w) + "\n")
	sb.WriteString(Metric("successful", StatusDone.Render(fmt.Sprint(s.Successful)), w) + "\n")
	failed := fmt.Sprint(s.Failed)
	if s.Failed > 0 {
		failed = StatusFailed.Render(failed)
	}
	sb.WriteString(Metric("failed", failed, w) + "\n")
	sb.WriteString(Metric("wall time", formatMinutes(s.Wall), w) + "\n")
	sb.WriteString(Metric("per replicate", formatMinutes(s.Mean), w))

	if len(runtimes) > 1 {
		sb.WriteString("\n")
		sb.WriteString(Metric("runtimes", SparklineChart(runtimes, 32), w))
	}
	if s.Total > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(ProgressBar(float64(s.Successful)/float64(s.Total), 32))
	}
	return Panel.Render(sb.String())
}

func formatMinutes(d time.Duration) string {
	return fmt.Sprintf("%.2f min", d.Minutes())
}
