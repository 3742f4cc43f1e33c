// Package viz renders styled terminal output for replicate batches.
//
// Styles are lipgloss definitions shared by the CLI summaries and the live
// launcher view:
//
//   - [ProgressBar] and [SparklineChart] for compact numeric displays
//   - [SummaryPanel] for the end-of-batch report
//   - [Status] for per-replicate state badges
package viz
