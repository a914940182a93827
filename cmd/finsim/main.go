package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/san-kum/finsim/internal/config"
	"github.com/san-kum/finsim/internal/ensemble"
	"github.com/san-kum/finsim/internal/export"
	"github.com/san-kum/finsim/internal/logging"
	"github.com/san-kum/finsim/internal/optim"
	"github.com/san-kum/finsim/internal/scenario"
	"github.com/san-kum/finsim/internal/sim"
	"github.com/san-kum/finsim/internal/storage"
	"github.com/san-kum/finsim/internal/tui"
	"github.com/san-kum/finsim/internal/viz"
)

var (
	dataDir   string
	logLevel  string
	logFormat string
	theme     string

	configFile string
	preset     string
	numSims    int
	seed       int64
	workers    int
	useTUI     bool
	runName    string

	plotKeys   []string
	plotWidth  int
	plotHeight int
	cashFlow   bool
	svgFile    string

	outFile     string
	exportTrial string
	format      string

	axes []string
)

var logger = logging.Discard()

func main() {
	rootCmd := &cobra.Command{
		Use:          "finsim",
		Short:        "monte carlo simulation of personal finance scenarios",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger(logLevel, logFormat, os.Stderr)
			viz.SetTheme(theme)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".finsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", viz.ThemeLedger.Name, "color theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	runCmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "run an ensemble",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEnsemble,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml or json)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use a preset distribution set")
	runCmd.Flags().IntVarP(&numSims, "num", "n", 0, "number of trials (overrides config)")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "base seed (overrides config)")
	runCmd.Flags().IntVar(&workers, "workers", 0, "concurrent trials (0 = GOMAXPROCS)")
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "show a live progress view")
	runCmd.Flags().StringVar(&runName, "name", "", "run name (defaults to the config name)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show run metadata and summary statistics",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id] [trial]",
		Short: "plot a trial's state history",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&plotKeys, "key", []string{sim.KeyCumulativeCash, sim.KeyPropertyValue}, "state keys to plot")
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")
	plotCmd.Flags().IntVar(&plotHeight, "height", 10, "plot height")
	plotCmd.Flags().BoolVar(&cashFlow, "cashflow", false, "plot the running sum of event values instead")
	plotCmd.Flags().StringVar(&svgFile, "svg", "", "also write the first plot as svg to this file")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run and its trials as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportTrial, "trial", "", "export one trial instead of the whole run")
	exportCmd.Flags().StringVar(&format, "format", "json", "trial export format (json, events-csv, history-csv)")

	sweepCmd := &cobra.Command{
		Use:   "sweep [scenario]",
		Short: "run one ensemble per grid point and rank by mean net position",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringArrayVar(&axes, "param", nil, "grid axis: name=v1,v2 or name=low:high:count (repeatable)")
	sweepCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml or json)")
	sweepCmd.Flags().StringVar(&preset, "preset", "", "use a preset distribution set")
	sweepCmd.Flags().IntVarP(&numSims, "num", "n", 100, "trials per grid point")
	sweepCmd.Flags().Int64Var(&seed, "seed", 0, "base seed shared by every grid point")
	sweepCmd.Flags().IntVar(&workers, "workers", 0, "concurrent trials (0 = GOMAXPROCS)")
	_ = sweepCmd.MarkFlagRequired("param")

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write a starter config file",
		Args:  cobra.ExactArgs(1),
		RunE:  initConfig,
	}
	initCmd.Flags().StringVar(&preset, "preset", "baseline", "preset to start from")

	scenariosCmd := &cobra.Command{
		Use:   "scenarios",
		Short: "list built-in scenarios and their presets",
		RunE:  listScenarios,
	}

	rootCmd.AddCommand(runCmd, listCmd, showCmd, plotCmd, exportCmd, sweepCmd, initCmd, scenariosCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the run configuration. A config file wins over a
// preset; a bare scenario name selects its baseline preset.
func loadConfig(scenarioName, presetName, path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if scenarioName != "" {
			cfg.Scenario = config.ScenarioSpec{Builtin: scenarioName}
		}
		return cfg, nil
	}

	if scenarioName == "" {
		scenarioName = config.DefaultScenario
	}
	if presetName == "" {
		presetName = "baseline"
	}
	cfg := config.GetPreset(scenarioName, presetName)
	if cfg == nil {
		return nil, fmt.Errorf("%w: unknown preset %s/%s (available: %v)",
			sim.ErrConfiguration, scenarioName, presetName, config.ListPresets(scenarioName))
	}
	return cfg, nil
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	var scenarioName string
	if len(args) > 0 {
		scenarioName = args[0]
	}
	cfg, err := loadConfig(scenarioName, preset, configFile)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("num") {
		cfg.NumSimulations = numSims
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = &seed
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = workers
	}
	if runName != "" {
		cfg.Name = runName
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	factory, err := scenario.NewRegistry().Factory(cfg.Scenario)
	if err != nil {
		return err
	}
	dists, err := cfg.Distributions()
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	label := scenarioLabel(cfg.Scenario)
	log := logger.With("scenario", label, "name", cfg.Name)
	opts := []ensemble.Option{ensemble.WithWorkers(cfg.Workers), ensemble.WithLogger(log)}

	build := func(ctx context.Context, progress func(ensemble.Trial)) (*ensemble.Ensemble, error) {
		o := opts
		if progress != nil {
			o = append(o, ensemble.WithProgress(progress))
		}
		return ensemble.NewBuilder(factory, dists, o...).Build(ctx, cfg.NumSimulations, cfg.Seed)
	}

	log.Info("run started", "trials", cfg.NumSimulations, "dists", len(dists))
	start := time.Now()

	var ens *ensemble.Ensemble
	if useTUI {
		ens, err = tui.Run(ctx, fmt.Sprintf("%s: %s", label, cfg.Name), cfg.NumSimulations, build)
	} else {
		ens, err = build(ctx, nil)
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	described := make(map[string]string, len(dists))
	for name, d := range dists {
		described[name] = d.String()
	}
	runID, err := st.Save(storage.RunMetadata{
		Name:     cfg.Name,
		Scenario: label,
		Elapsed:  elapsed.Round(time.Millisecond).String(),
		Dists:    described,
	}, ens)
	if err != nil {
		return err
	}
	log.Info("run saved", "id", runID, "failed", len(ens.Failed()), "elapsed", elapsed)

	rows := make([]storage.TrialSummary, len(ens.Trials))
	for i, tr := range ens.Trials {
		rows[i] = storage.Summarize(tr)
	}

	fmt.Printf("completed in %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("seed: %d\n\n", ens.BaseSeed)
	fmt.Print(viz.SummaryTable(rows))
	reportFailures(log, ens)
	return nil
}

func scenarioLabel(s config.ScenarioSpec) string {
	if s.Builtin != "" {
		return s.Builtin
	}
	if s.Name != "" {
		return s.Name
	}
	return "inline"
}

// reportFailures logs the first few failed trials so a bad config is visible
// without opening summary.csv.
func reportFailures(log *slog.Logger, ens *ensemble.Ensemble) {
	const shown = 5
	failed := ens.Failed()
	for i, tr := range failed {
		if i == shown {
			log.Warn("more trials failed", "count", len(failed)-shown)
			break
		}
		log.Warn("trial failed", "trial", tr.Name, "seed", tr.Seed, "err", tr.Err)
	}
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tTRIALS\tFAILED\tSEED\tELAPSED")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.ID,
			run.Scenario,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.NumTrials,
			run.Failed,
			run.Seed,
			run.Elapsed,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	rows, err := st.LoadSummary(meta.ID)
	if err != nil {
		return err
	}

	fmt.Println(viz.Title.Render(meta.ID))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "scenario\t%s\n", meta.Scenario)
	fmt.Fprintf(w, "time\t%s\n", meta.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "seed\t%d\n", meta.Seed)
	fmt.Fprintf(w, "elapsed\t%s\n", meta.Elapsed)
	if err := w.Flush(); err != nil {
		return err
	}

	if len(meta.Dists) > 0 {
		fmt.Println("\n" + viz.HeaderStyle.Render("distributions"))
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, name := range sortedKeys(meta.Dists) {
			fmt.Fprintf(w, "  %s\t%s\n", name, meta.Dists[name])
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Print(viz.SummaryTable(rows))
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runID := args[0]

	var trial string
	if len(args) > 1 {
		trial = args[1]
	} else {
		names, err := st.TrialNames(runID)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return fmt.Errorf("run %s has no successful trials", runID)
		}
		trial = names[0]
	}

	res, err := st.LoadTrial(runID, trial)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", runID)
	fmt.Printf("trial: %s\n", res.Name)
	fmt.Printf("events: %d\n\n", len(res.Events))

	opts := viz.PlotOptions{Width: plotWidth, Height: plotHeight}
	if cashFlow {
		graph, err := viz.PlotCashFlow(res, opts)
		if err != nil {
			return err
		}
		fmt.Println(graph)
	} else {
		for _, key := range plotKeys {
			graph, err := viz.PlotHistory(res.History, key, opts)
			if err != nil {
				return err
			}
			fmt.Println(graph)
			fmt.Println()
		}
	}

	if svgFile == "" {
		return nil
	}
	var svg string
	if cashFlow || len(plotKeys) == 0 {
		svg, err = export.CashFlowToSVG(res, plotWidth*10, plotHeight*30)
	} else {
		svg, err = export.HistoryToSVG(res.History, plotKeys[0], plotWidth*10, plotHeight*30)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(svgFile, []byte(svg), 0644); err != nil {
		return err
	}
	fmt.Printf("svg written to %s\n", svgFile)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if exportTrial != "" {
		return exportOneTrial(st, args[0], exportTrial)
	}
	if outFile != "" {
		if err := st.ExportFile(args[0], outFile); err != nil {
			return err
		}
		fmt.Printf("exported to %s\n", outFile)
		return nil
	}
	return st.Export(args[0], os.Stdout)
}

func exportOneTrial(st *storage.Store, runID, name string) error {
	res, err := st.LoadTrial(runID, name)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "json":
		return res.WriteJSON(w)
	case "events-csv":
		return export.WriteEventsCSV(w, res.Events)
	case "history-csv":
		return export.WriteHistoryCSV(w, res.History)
	default:
		return fmt.Errorf("unknown format %q (json, events-csv, history-csv)", format)
	}
}

func runSweep(cmd *cobra.Command, args []string) error {
	var scenarioName string
	if len(args) > 0 {
		scenarioName = args[0]
	}
	cfg, err := loadConfig(scenarioName, preset, configFile)
	if err != nil {
		return err
	}
	cfg.NumSimulations = numSims
	if cmd.Flags().Changed("workers") {
		cfg.Workers = workers
	}

	// Every point shares one base seed so differences between points come
	// from the pinned values alone.
	base := time.Now().UnixNano()
	if cfg.Seed != nil {
		base = *cfg.Seed
	}
	if cmd.Flags().Changed("seed") {
		base = seed
	}
	cfg.Seed = &base
	if err := cfg.Validate(); err != nil {
		return err
	}

	names := make([]string, 0, len(axes))
	ranges := make([][]float64, 0, len(axes))
	for _, a := range axes {
		name, values, err := optim.ParseAxis(a)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}
	grid, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	factory, err := scenario.NewRegistry().Factory(cfg.Scenario)
	if err != nil {
		return err
	}
	dists, err := cfg.Distributions()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	log := logger.With("scenario", scenarioLabel(cfg.Scenario))
	log.Info("sweep started", "points", grid.Size(), "trials", cfg.NumSimulations, "seed", base)

	run := func(ctx context.Context, fixed map[string]float64) (*ensemble.Ensemble, error) {
		pinned, err := optim.Pin(dists, fixed)
		if err != nil {
			return nil, err
		}
		log.Debug("grid point", "params", fixed)
		return ensemble.NewBuilder(factory, pinned, ensemble.WithWorkers(cfg.Workers), ensemble.WithLogger(log)).
			Build(ctx, cfg.NumSimulations, cfg.Seed)
	}

	best, points, err := grid.Search(ctx, run, optim.MeanNetPosition)
	if err != nil && len(points) == 0 {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t"))+"\tMEAN NET\tFAILED\t")
	for _, p := range points {
		for _, n := range names {
			fmt.Fprintf(w, "%g\t", p.Params[n])
		}
		if p.Err != nil {
			fmt.Fprintf(w, "-\t-\t%s\n", viz.StatusFailed.Render(p.Err.Error()))
			continue
		}
		mark := ""
		if p.Ensemble == best.Ensemble {
			mark = viz.StatusOK.Render("best")
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", viz.FormatMoney(decimal.NewFromFloat(p.Score)), len(p.Ensemble.Failed()), mark)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return err
}

func initConfig(cmd *cobra.Command, args []string) error {
	cfg := config.GetPreset(config.DefaultScenario, preset)
	if cfg == nil {
		return fmt.Errorf("%w: unknown preset %q (available: %v)",
			sim.ErrConfiguration, preset, config.ListPresets(config.DefaultScenario))
	}
	if err := config.Save(args[0], cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", args[0])
	return nil
}

func listScenarios(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tPRESETS\tDESCRIPTION")
	for _, s := range scenario.NewRegistry().List() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, strings.Join(config.ListPresets(s.Name), ","), s.Description)
	}
	return w.Flush()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
