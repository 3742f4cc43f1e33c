package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/cmeode/internal/checkpoint"
	"github.com/san-kum/cmeode/internal/config"
	"github.com/san-kum/cmeode/internal/experiment"
	"github.com/san-kum/cmeode/internal/launcher"
	"github.com/san-kum/cmeode/internal/storage"
	"github.com/san-kum/cmeode/internal/tui"
	"github.com/san-kum/cmeode/internal/viz"
)

const registryFile = "runs.db"

var (
	configFile string
	preset     string
	dataDir    string
	verbose    bool

	commTimestep float64
	maxODEStep   float64
	intervalDur  float64
	integrator   string
	seed         int64
	interpreted  bool

	label         string
	intervals     int
	initIntervals int
	fromMaster    bool

	numReplicates int
	cores         int
	live          bool
	noRegistry    bool

	batch      string
	allBatches bool
	plotLabel  string
	asMM       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "cmeode",
		Short:         "hybrid CME/ODE minimal cell simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(os.Stderr)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "start from a named preset")
	pf.StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	pf.Float64Var(&commTimestep, "dt", config.DefaultCommTimestep, "communication timestep (s)")
	pf.Float64Var(&maxODEStep, "ode-step", config.DefaultMaxODEStep, "max ODE step (s)")
	pf.Float64Var(&intervalDur, "interval", config.DefaultIntervalDuration, "interval duration (s)")
	pf.StringVar(&integrator, "integrator", config.DefaultIntegrator, "ODE integrator (rk45, rk4, euler)")
	pf.Int64Var(&seed, "seed", 1, "host random seed")
	pf.BoolVar(&interpreted, "interpreted", false, "skip the compiled right-hand side")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run one replicate from its checkpoint",
		Args:  cobra.NoArgs,
		RunE:  runReplicate,
	}
	runCmd.Flags().StringVar(&label, "label", "1", "replicate label")
	runCmd.Flags().IntVarP(&intervals, "intervals", "t", config.DefaultIntervals, "intervals to simulate")
	runCmd.Flags().BoolVar(&fromMaster, "from-master", false, "copy the master checkpoint first")

	masterCmd := &cobra.Command{
		Use:   "master",
		Short: "create the shared master checkpoint",
		Args:  cobra.NoArgs,
		RunE:  createMaster,
	}
	masterCmd.Flags().IntVarP(&initIntervals, "init", "i", config.DefaultInitIntervals, "intervals to evolve the master")

	replicatesCmd := &cobra.Command{
		Use:   "replicates",
		Short: "run replicates in parallel from a shared master",
		Args:  cobra.NoArgs,
		RunE:  runReplicates,
	}
	replicatesCmd.Flags().IntVarP(&numReplicates, "num", "n", config.DefaultReplicates, "number of replicates")
	replicatesCmd.Flags().IntVarP(&intervals, "intervals", "t", config.DefaultIntervals, "intervals per replicate")
	replicatesCmd.Flags().IntVarP(&initIntervals, "init", "i", config.DefaultInitIntervals, "intervals to evolve the master")
	replicatesCmd.Flags().IntVarP(&cores, "cores", "j", 0, "replicates run at once (0 = all CPUs)")
	replicatesCmd.Flags().BoolVar(&live, "live", false, "show a live progress view")
	replicatesCmd.Flags().BoolVar(&noRegistry, "no-registry", false, "do not record runs")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded replicate runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}
	listCmd.Flags().StringVar(&batch, "batch", "", "batch id (default latest)")
	listCmd.Flags().BoolVar(&allBatches, "all", false, "list every batch")

	speciesCmd := &cobra.Command{
		Use:   "species [label]",
		Short: "summarise the species in a checkpoint",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showSpecies,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [species...]",
		Short: "plot species timecourses",
		RunE:  plotSpecies,
	}
	plotCmd.Flags().StringVar(&plotLabel, "label", "", "single replicate (default median of all)")
	plotCmd.Flags().IntVarP(&numReplicates, "num", "n", config.DefaultReplicates, "replicates in the ensemble")
	plotCmd.Flags().BoolVar(&asMM, "mm", false, "plot concentration in mM")

	fluxCmd := &cobra.Command{
		Use:   "flux [reaction]",
		Short: "plot a reaction's end-of-interval flux",
		Args:  cobra.ExactArgs(1),
		RunE:  plotFlux,
	}
	fluxCmd.Flags().StringVar(&plotLabel, "label", "", "single replicate (default median of all)")
	fluxCmd.Flags().IntVarP(&numReplicates, "num", "n", config.DefaultReplicates, "replicates in the ensemble")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [label]",
		Short: "export a wide timecourse table to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [label]",
		Short: "export a timecourse to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, name := range config.ListPresets() {
				fmt.Fprintf(w, "%s\t%s\n", name, config.PresetDescription(name))
			}
			return w.Flush()
		},
	}

	rootCmd.AddCommand(runCmd, masterCmd, replicatesCmd, listCmd, speciesCmd, plotCmd, fluxCmd, exportCSVCmd, exportJSONCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(w io.Writer) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// loadConfig layers defaults or a preset, the config file, CMEODE_*
// variables and explicitly set flags, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		if err := config.LoadInto(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("dt") {
		cfg.CommTimestep = commTimestep
	}
	if flags.Changed("ode-step") {
		cfg.MaxODEStep = maxODEStep
	}
	if flags.Changed("interval") {
		cfg.IntervalDuration = intervalDur
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("interpreted") {
		cfg.UseCompiledSolver = !interpreted
	}
	if flags.Changed("intervals") {
		cfg.Intervals = intervals
	}
	if flags.Changed("init") {
		cfg.InitIntervals = initIntervals
	}
	if flags.Changed("num") {
		cfg.Replicates = numReplicates
	}
	if flags.Changed("cores") {
		cfg.Cores = cores
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openRegistry(cfg *config.Config) (*storage.Store, error) {
	return storage.Open(filepath.Join(cfg.DataDir, registryFile))
}

func runReplicate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if fromMaster {
		if err := checkpoint.CopyMaster(cfg.DataDir, label); err != nil {
			return err
		}
	}

	st, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	runID, err := st.Begin(ctx, storage.NewBatch(), label, cfg.Intervals)
	if err != nil {
		return err
	}

	fmt.Printf("running replicate %s for %d intervals of %gs...\n", label, cfg.Intervals, cfg.IntervalDuration)
	start := time.Now()
	runErr := exp.RunReplicate(ctx, label, cfg.Intervals)
	if err := st.Finish(context.WithoutCancel(ctx), runID, runErr); err != nil {
		slog.Warn("record run outcome", "error", err)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Printf("completed in %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("checkpoint: %s\n", checkpoint.Path(cfg.DataDir, label))
	return nil
}

func createMaster(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	start := time.Now()
	if err := exp.CreateMaster(ctx, cfg.InitIntervals); err != nil {
		return err
	}
	fmt.Printf("master checkpoint created in %v: %s\n",
		time.Since(start).Round(time.Millisecond),
		checkpoint.Path(cfg.DataDir, checkpoint.MasterLabel))
	return nil
}

func runReplicates(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if live {
		// the live view owns the terminal
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return err
		}
		logFile, err := os.Create(filepath.Join(cfg.DataDir, "replicates.log"))
		if err != nil {
			return err
		}
		defer logFile.Close()
		setupLogging(logFile)
	}

	exp, err := experiment.New(cfg)
	if err != nil {
		return err
	}

	var st *storage.Store
	if !noRegistry {
		st, err = openRegistry(cfg)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	opts := launcher.Options{
		Replicates:    cfg.Replicates,
		Intervals:     cfg.Intervals,
		InitIntervals: cfg.InitIntervals,
		Cores:         cfg.Cores,
		DataDir:       cfg.DataDir,
	}
	l := launcher.New(exp, st)

	ctx, stop := signalContext()
	defer stop()

	if !live {
		fmt.Printf("starting %d replicates (%d workers), %d intervals of %gs each\n",
			opts.Replicates, opts.Workers(), opts.Intervals, cfg.IntervalDuration)
	}

	var (
		results []launcher.Result
		summary launcher.Summary
	)
	if live {
		events := make(chan launcher.Event, 16)
		l.SetEvents(events)
		done, err := tui.Run(opts.Replicates, events, stop, func() tui.DoneMsg {
			defer close(events)
			results, summary, err := l.Run(ctx, opts)
			return tui.DoneMsg{Results: results, Summary: summary, Err: err}
		})
		if err != nil {
			return err
		}
		if done.Err != nil {
			return done.Err
		}
		results, summary = done.Results, done.Summary
	} else {
		results, summary, err = l.Run(ctx, opts)
		if err != nil {
			return err
		}
	}

	printResults(results)
	runtimes := make([]float64, 0, len(results))
	for _, r := range results {
		if r.OK {
			runtimes = append(runtimes, r.Runtime.Minutes())
		}
	}
	fmt.Println(viz.SummaryPanel(l.Batch(), summary, runtimes))

	outputs := launcher.Outputs(cfg.DataDir, opts.Replicates)
	fmt.Println("\noutput files:")
	for _, o := range outputs {
		fmt.Printf("  %s (%.2f MB)\n", o.Path, float64(o.Size)/(1024*1024))
	}
	fmt.Printf("\ntotal output files: %d\n", len(outputs))

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d replicates failed", summary.Failed, summary.Total)
	}
	return nil
}

func printResults(results []launcher.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REP\tSTATUS\tRUNTIME\tERROR")
	for _, r := range results {
		status := "ok"
		msg := ""
		if !r.OK {
			status = "failed"
			msg = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%.2f min\t%s\n", r.Label, status, r.Runtime.Minutes(), msg)
	}
	_ = w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	b := batch
	if b == "" && !allBatches {
		b, err = st.LatestBatch(ctx)
		if err != nil {
			return err
		}
	}
	runs, err := st.List(ctx, b)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBATCH\tREP\tSTATUS\tSTARTED\tRUNTIME\tINTERVALS\tERROR")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			short(run.ID),
			short(run.Batch),
			run.Label,
			run.Status,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Runtime.Round(time.Millisecond),
			run.Intervals,
			run.Error,
		)
	}
	return w.Flush()
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
