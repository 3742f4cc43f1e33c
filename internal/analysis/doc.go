// Package analysis summarises replicate ensembles.
//
// Replicates started from the same master checkpoint diverge through host
// noise. The package reduces their timecourses or flux series to point-wise
// statistics:
//
//   - [Summarize]: median, mean, standard deviation and a percentile band
//   - [Align]: truncation to a common length before comparison
//   - [Percentile]: linear-interpolated percentile of one sample
//
// # Example
//
//	band := analysis.Summarize(series, 1, 99)
//	fmt.Println(asciigraph.Plot(band.Median))
package analysis
