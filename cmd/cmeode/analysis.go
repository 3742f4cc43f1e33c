package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/cmeode/internal/analysis"
	"github.com/san-kum/cmeode/internal/checkpoint"
	"github.com/san-kum/cmeode/internal/experiment"
	"github.com/san-kum/cmeode/internal/flux"
	"github.com/san-kum/cmeode/internal/species"
	"github.com/san-kum/cmeode/internal/timecourse"
	"github.com/san-kum/cmeode/internal/units"
)

const listLimit = 10

var errNoData = errors.New("no data")

func showSpecies(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	lbl := "1"
	if len(args) > 0 {
		lbl = args[0]
	}
	snap, err := checkpoint.Read(checkpoint.Path(cfg.DataDir, lbl))
	if err != nil {
		return err
	}
	tbl := species.NewTable(snap.Names())

	fmt.Printf("checkpoint %s: interval %d, t=%gs, %d species\n\n", snap.Label, snap.Interval, snap.Time, tbl.Len())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tCOUNT\tEXAMPLES")
	for _, c := range species.Categories() {
		ids := tbl.ByCategory(c)
		if len(ids) == 0 {
			continue
		}
		examples := ""
		for i, id := range ids {
			if i == listLimit {
				examples += fmt.Sprintf(" (+%d)", len(ids)-listLimit)
				break
			}
			if i > 0 {
				examples += " "
			}
			examples += tbl.Name(id)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", c, len(ids), examples)
	}
	return w.Flush()
}

// ensembleLabels is the single --label replicate or 1..n.
func ensembleLabels(n int) []string {
	if plotLabel != "" {
		return []string{plotLabel}
	}
	labels := make([]string, n)
	for i := range labels {
		labels[i] = strconv.Itoa(i + 1)
	}
	return labels
}

func readTimecourse(dir, lbl string) (*timecourse.Table, error) {
	rows, err := timecourse.Read(timecourse.Path(dir, lbl))
	if err != nil {
		return nil, err
	}
	return timecourse.Wide(rows), nil
}

func plotSpecies(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	names := args
	if len(names) == 0 {
		names = []string{"M_atp_c"}
	}

	tables := make([]*timecourse.Table, 0, cfg.Replicates)
	for _, lbl := range ensembleLabels(cfg.Replicates) {
		tbl, err := readTimecourse(cfg.DataDir, lbl)
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("skipping replicate without timecourse", "label", lbl)
			continue
		}
		if err != nil {
			return fmt.Errorf("replicate %s: %w", lbl, err)
		}
		tables = append(tables, tbl)
	}
	if len(tables) == 0 {
		return fmt.Errorf("%w: no timecourses in %s", errNoData, cfg.DataDir)
	}

	for _, name := range names {
		series := make([][]float64, 0, len(tables))
		for _, tbl := range tables {
			counts, ok := tbl.Series(name)
			if !ok {
				continue
			}
			if asMM {
				series = append(series, concentrations(tbl, counts))
			} else {
				series = append(series, analysis.ToFloat(counts))
			}
		}
		if len(series) == 0 {
			return fmt.Errorf("%w: species %q not recorded", errNoData, name)
		}

		band := analysis.Summarize(series, 1, 99)
		if len(band.Median) == 0 {
			return fmt.Errorf("%w: species %q has no timepoints", errNoData, name)
		}
		unit := "count"
		if asMM {
			unit = "mM"
		}
		caption := fmt.Sprintf("%s (%s, median of %d)", name, unit, len(series))
		graph := asciigraph.Plot(band.Median,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(caption),
		)
		fmt.Println(graph)
		last := len(band.Median) - 1
		fmt.Printf("final: median %.4g, 1%%-99%% [%.4g, %.4g]\n\n", band.Median[last], band.Lo[last], band.Hi[last])
	}
	return nil
}

// concentrations converts a count series to mM using the recorded CellSA at
// each timepoint. Without a CellSA series the counts are returned unchanged.
func concentrations(tbl *timecourse.Table, counts []int64) []float64 {
	sa, ok := tbl.Series(units.SurfaceAreaSpecies)
	if !ok {
		return analysis.ToFloat(counts)
	}
	out := make([]float64, len(counts))
	var g units.Geometry
	for i, n := range counts {
		if sa[i] != timecourse.Missing {
			g = units.ComputeGeometry(float64(sa[i]), g)
		}
		if n == timecourse.Missing {
			continue
		}
		out[i] = units.ParticlesToConcentration(n, g)
	}
	return out
}

func plotFlux(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reaction := args[0]
	dir := filepath.Join(cfg.DataDir, experiment.FluxDir)

	series := make([][]float64, 0, cfg.Replicates)
	for _, lbl := range ensembleLabels(cfg.Replicates) {
		rows, err := flux.ReadLog(flux.LogPath(dir, lbl, flux.Final))
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("skipping replicate without flux log", "label", lbl)
			continue
		}
		if err != nil {
			return fmt.Errorf("replicate %s: %w", lbl, err)
		}
		if s := flux.Series(rows, reaction); len(s) > 0 {
			series = append(series, s)
		}
	}
	if len(series) == 0 {
		return fmt.Errorf("%w: reaction %q not logged in %s", errNoData, reaction, dir)
	}

	band := analysis.Summarize(series, 1, 99)
	caption := fmt.Sprintf("%s end-of-interval flux (mM/s, median of %d)", reaction, len(series))
	graph := asciigraph.Plot(band.Median,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
	fmt.Println(graph)
	last := len(band.Median) - 1
	fmt.Printf("interval %d: mean %.4g, std %.4g\n", last+1, band.Mean[last], band.Std[last])
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tbl, err := readTimecourse(cfg.DataDir, args[0])
	if err != nil {
		return err
	}
	return timecourse.ExportCSV(os.Stdout, tbl)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tbl, err := readTimecourse(cfg.DataDir, args[0])
	if err != nil {
		return err
	}
	return timecourse.ExportJSON(os.Stdout, args[0], tbl)
}
