package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"goexact/adapters/api"
	"goexact/adapters/excel"
	"goexact/adapters/itemsets"
	"goexact/adapters/stats/exact"
	"goexact/app"
	"goexact/domain/contingency"
	"goexact/domain/core"
	"goexact/domain/transactions"
	"goexact/internal/config"
	"goexact/internal/container"
	"goexact/internal/logging"
	"goexact/internal/report"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes one command and always releases the container, including when
// the command fails.
func run(args []string, out io.Writer) error {
	e := &env{}
	rootCmd := newRootCmd(e)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	err := rootCmd.Execute()
	if e.container != nil {
		_ = e.container.Logger.Sync()
		if shutdownErr := e.container.Shutdown(context.Background()); err == nil {
			err = shutdownErr
		}
	}
	return err
}

// env is built once per invocation by the root command's pre-run hook.
type env struct {
	container *container.Container
}

func newRootCmd(e *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "goexact",
		Short:         "Exact Fisher and Barnard tests for 2x2 contingency tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			e.container, err = container.New(cmd.Context(), cfg, logger)
			return err
		},
	}

	rootCmd.AddCommand(
		newFisherCmd(e),
		newBarnardCmd(e),
		newScanCmd(e),
		newRenderCmd(),
		newEvaluateCmd(e),
		newCompareCmd(e),
		newServeCmd(e),
	)
	return rootCmd
}

type tableFlags struct {
	n, n1, x, a int
}

func (f *tableFlags) register(cmd *cobra.Command, withA bool) {
	cmd.Flags().IntVar(&f.n, "n", 0, "Total number of transactions")
	cmd.Flags().IntVar(&f.n1, "n1", 0, "Transactions in the positive class")
	cmd.Flags().IntVar(&f.x, "x", 0, "Transactions containing the pattern (column margin)")
	_ = cmd.MarkFlagRequired("n")
	_ = cmd.MarkFlagRequired("n1")
	_ = cmd.MarkFlagRequired("x")
	if withA {
		cmd.Flags().IntVar(&f.a, "a", 0, "Positive transactions containing the pattern (cell count)")
		_ = cmd.MarkFlagRequired("a")
	}
}

func newFisherCmd(e *env) *cobra.Command {
	var table tableFlags
	var variant string

	cmd := &cobra.Command{
		Use:   "fisher",
		Short: "Fisher's exact test for one table",
		Long: `Run Fisher's exact test on the table given by n, n1, x and a.

Two two-sided variants exist: min_tail (the smaller tail, capped at 1) and
point_probability (the mass of every table no more probable than the observed one).

Example: goexact fisher --n 20 --n1 10 --x 8 --a 5 --variant point_probability`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := exact.ParseFisherVariant(variant)
			if err != nil {
				return err
			}
			t, err := contingency.NewTable(table.n, table.n1, table.x, table.a)
			if err != nil {
				return err
			}
			res, err := e.container.Exact.Fisher(t.Margins, t.Cell, v)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	table.register(cmd, true)
	cmd.Flags().StringVar(&variant, "variant", string(exact.FisherMinTailVariant), "min_tail|point_probability")
	return cmd
}

func newBarnardCmd(e *env) *cobra.Command {
	var table tableFlags
	var pi float64
	var maximize, refine bool
	var grid, runID string

	cmd := &cobra.Command{
		Use:   "barnard",
		Short: "Barnard's unconditional exact test for one table",
		Long: `Compute Barnard's p-value at a fixed nuisance value pi (default x/n), or
maximise it over a grid of pi values with --maximize. The maximised value is a
lower bound on the supremum over (0,1); --refine tightens it.

Example: goexact barnard --n 20 --n1 10 --x 8 --a 5 --maximize --refine`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := contingency.NewTable(table.n, table.n1, table.x, table.a)
			if err != nil {
				return err
			}
			req := app.BarnardRequest{
				Margins:  t.Margins,
				Cell:     t.Cell,
				Pi:       pi,
				Maximize: maximize || grid != "",
				Refine:   refine,
			}
			if grid != "" {
				if req.Grid, err = parseGrid(grid); err != nil {
					return err
				}
			}
			if runID != "" {
				if req.RunID, err = core.ParseRunID(runID); err != nil {
					return err
				}
			}
			res, err := e.container.Exact.BarnardPValue(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	table.register(cmd, true)
	cmd.Flags().Float64Var(&pi, "pi", 0, "Fixed nuisance value in (0,1); default x/n")
	cmd.Flags().BoolVar(&maximize, "maximize", false, "Maximise over the configured grid around x/n")
	cmd.Flags().BoolVar(&refine, "refine", false, "Refine the grid around the maximum")
	cmd.Flags().StringVar(&grid, "grid", "", "Comma-separated pi values to maximise over")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (UUID) to record the result under")
	return cmd
}

func newScanCmd(e *env) *cobra.Command {
	var table tableFlags
	var floor float64
	var fisher, xlsxPath, htmlPath string
	var maximize bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Compare Fisher and Barnard over the cell counts of one column margin",
		Long: `Walk the cell count a outward from x*n1/n until Fisher's p-value falls to the
floor, reporting Fisher's p-value, Barnard's p-value at x/n and their ratio.

Example: goexact scan --n 100 --n1 50 --x 30 --maximize --xlsx scan.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := contingency.NewMargins(table.n, table.n1)
			if err != nil {
				return err
			}
			var variant exact.FisherVariant
			if fisher != "" {
				if variant, err = exact.ParseFisherVariant(fisher); err != nil {
					return err
				}
			}
			rows, err := e.container.Exact.Scan(cmd.Context(), app.ScanRequest{
				Margins: m, X: table.x, Fisher: variant, Floor: floor, Maximize: maximize,
			})
			if err != nil {
				return err
			}
			if xlsxPath != "" {
				if dir := e.container.Config.Output.ExportDir; dir != "" && !filepath.IsAbs(xlsxPath) {
					xlsxPath = filepath.Join(dir, xlsxPath)
				}
				if err := writeFile(xlsxPath, func(w io.Writer) error {
					return excel.WriteScan(w, excel.ScanExport{Margins: m, X: table.x, Fisher: variant, Rows: rows})
				}); err != nil {
					return err
				}
			}
			if htmlPath != "" {
				page := report.HTML("Cell scan", report.ScanMarkdown(m, table.x, rows))
				if err := os.WriteFile(htmlPath, page, 0o644); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}

	table.register(cmd, false)
	cmd.Flags().Float64Var(&floor, "floor", 0, "Stop once Fisher's p-value reaches this value (default EXACT_SCAN_FLOOR)")
	cmd.Flags().StringVar(&fisher, "fisher", "", "Fisher variant: min_tail|point_probability (default point_probability)")
	cmd.Flags().BoolVar(&maximize, "maximize", false, "Add grid-maximised Barnard p-values")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write the scan to this workbook (relative to EXPORT_DIR when set)")
	cmd.Flags().StringVar(&htmlPath, "html", "", "Also write the scan as an HTML table")
	return cmd
}

// newRenderCmd turns a workbook written by scan --xlsx back into an HTML report.
func newRenderCmd() *cobra.Command {
	var htmlPath string

	cmd := &cobra.Command{
		Use:   "render <scan.xlsx>",
		Short: "Render a saved scan workbook as HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			export, err := excel.ReadScan(f)
			if err != nil {
				return err
			}
			md := report.ScanMarkdown(export.Margins, export.X, export.Rows)
			if htmlPath == "" {
				_, err = cmd.OutOrStdout().Write(md)
				return err
			}
			return os.WriteFile(htmlPath, report.HTML("Cell scan", md), 0o644)
		},
	}

	cmd.Flags().StringVar(&htmlPath, "html", "", "Write HTML here instead of markdown to stdout")
	return cmd
}

func newEvaluateCmd(e *env) *cobra.Command {
	var txPath, labelsPath, variant string

	cmd := &cobra.Command{
		Use:   "evaluate [items...]",
		Short: "Count an itemset in a labelled population and test it",
		Long: `Compute the support x, the positive-class count a and Fisher's p-value of an
itemset in a transaction population with aligned class labels.

Example: goexact evaluate --transactions mushroom.dat --labels labels.dat 3 7 12`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := exact.ParseFisherVariant(variant)
			if err != nil {
				return err
			}
			items := make([]int, len(args))
			for i, a := range args {
				if items[i], err = strconv.Atoi(a); err != nil {
					return fmt.Errorf("item %q is not an integer", a)
				}
			}
			set, err := transactions.NewItemset(items)
			if err != nil {
				return err
			}
			ld, err := itemsets.LoadLabelledDatabase(txPath, labelsPath)
			if err != nil {
				return err
			}
			res, err := e.container.Exact.EvaluateItemset(ld, set, v)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&txPath, "transactions", "", "Transaction population file")
	cmd.Flags().StringVar(&labelsPath, "labels", "", "Class label file")
	cmd.Flags().StringVar(&variant, "variant", string(exact.FisherMinTailVariant), "min_tail|point_probability")
	_ = cmd.MarkFlagRequired("transactions")
	_ = cmd.MarkFlagRequired("labels")
	return cmd
}

func newCompareCmd(e *env) *cobra.Command {
	var txPath, labelsPath, itemsetsPath, pvaluesPath, htmlPath string
	var strict bool

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Check reported significant patterns against a recomputation",
		Long: `Recompute a, x and Fisher's min-tail p-value for every reported significant
itemset and report the maximum absolute discrepancy per column against the
reported p-value table. Tolerance comes from EXACT_TOLERANCE.

Example: goexact compare --transactions mushroom.dat --labels labels.dat --itemsets itemsets.dat --pvalues pvalues.dat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ld, err := itemsets.LoadLabelledDatabase(txPath, labelsPath)
			if err != nil {
				return err
			}
			sets, err := itemsets.LoadSignificantItemsets(itemsetsPath)
			if err != nil {
				return err
			}
			reported, err := itemsets.LoadReportedPValues(pvaluesPath)
			if err != nil {
				return err
			}
			res, err := e.container.Comparison.Compare(cmd.Context(), app.ComparisonInput{
				Database: ld, Itemsets: sets, Reported: reported,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, string(report.ComparisonMarkdown(res)))
			if htmlPath != "" {
				page := report.HTML("Reported pattern comparison", report.ComparisonMarkdown(res))
				if err := os.WriteFile(htmlPath, page, 0o644); err != nil {
					return err
				}
			}
			if strict && !res.Passed {
				return fmt.Errorf("%d of %d reported patterns disagree", res.Disagreements, len(res.Checks))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&txPath, "transactions", "", "Transaction population file")
	cmd.Flags().StringVar(&labelsPath, "labels", "", "Class label file")
	cmd.Flags().StringVar(&itemsetsPath, "itemsets", "", "Significant itemset list")
	cmd.Flags().StringVar(&pvaluesPath, "pvalues", "", "Reported p-value table")
	cmd.Flags().StringVar(&htmlPath, "html", "", "Also write the report as HTML")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when the comparison fails")
	for _, f := range []string{"transactions", "labels", "itemsets", "pvalues"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the exact tests over HTTP on PORT",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			c := e.container
			server := api.NewServer(c.Exact, c.Results, c.Logger)
			return server.ListenAndServe(ctx, ":"+c.Config.Server.Port)
		},
	}
}

func parseGrid(s string) (exact.NuisanceGrid, error) {
	parts := strings.Split(s, ",")
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid grid value %q", p)
		}
		values = append(values, v)
	}
	return exact.GridFrom(values)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
