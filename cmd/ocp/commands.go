package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"ocp/internal/amqp"
	appcli "ocp/internal/cli"
	"ocp/internal/core"
	apphttp "ocp/internal/http"
	applog "ocp/internal/log"
	"ocp/internal/overlap"
	"ocp/internal/report"
	"ocp/internal/services"
	"ocp/internal/sheets/memory"
	"ocp/internal/storage"
)

// =============================================================================
// ANALYZE COMMAND
// =============================================================================

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Group overlapping contracts per category and estimate savings",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "category",
				Aliases: []string{"c"},
				Usage:   "Category to analyze, repeatable; order sets group numbering (default: all)",
			},
			&cli.StringSliceFlag{
				Name:    "keep",
				Aliases: []string{"k"},
				Usage:   "Override retained contracts for one run: CATEGORY:GROUP=ID1,ID2",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   string(report.FormatTable),
				Usage:   "Output format (table, json, csv, markdown)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the report to a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Persist the run (sqlite backend)",
			},
			&cli.BoolFlag{
				Name:  "publish",
				Usage: "Write the savings report to the configured spreadsheet",
			},
		},
		Action: runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	format, err := report.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}
	sel, err := parseKeepSpecs(c.StringSlice("keep"))
	if err != nil {
		return err
	}

	ctx := c.Context
	_, res, err := openBackend(ctx, c)
	if err != nil {
		return err
	}
	defer res.Close()

	if c.Bool("save") && res.Repository == nil {
		return fmt.Errorf("--save needs the sqlite backend, got %s", res.Type)
	}

	out, err := res.Service().Analyze(ctx, services.AnalysisRequest{
		Categories:    trimAll(c.StringSlice("category")),
		Selections:    sel,
		Save:          c.Bool("save"),
		PublishReport: c.Bool("publish"),
	})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	w, closeOut, err := outputWriter(c.String("output"))
	if err != nil {
		return err
	}
	defer closeOut()
	if err := report.Render(w, format, out.Result); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if out.RunID != "" {
		fmt.Fprintf(os.Stderr, "Saved run %s\n", out.RunID)
	}
	if out.ReportRef != "" {
		fmt.Fprintf(os.Stderr, "Report written to %s\n", out.ReportRef)
	}
	return nil
}

func outputWriter(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// =============================================================================
// IMPORT COMMAND
// =============================================================================

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Load a contract CSV into the SQLite database",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Contract CSV file, repeatable",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			logger := loggerFrom(c)
			repo, err := appcli.InitSQLite(logger, c.String("sqlite-db"))
			if err != nil {
				return err
			}
			defer repo.Close()

			total := 0
			for _, path := range c.StringSlice("file") {
				contracts, err := memory.ReadCSVFile(path)
				if err != nil {
					return err
				}
				n, err := repo.ImportContracts(c.Context, contracts)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				logger.WithComponent(applog.ComponentStorage).Info("Contracts imported",
					applog.FieldOperation, applog.OpImport, "file", path, applog.FieldContracts, n)
				total += n
			}
			fmt.Printf("Imported %d contracts into %s\n", total, c.String("sqlite-db"))
			return nil
		},
	}
}

// =============================================================================
// KEEP COMMAND
// =============================================================================

func keepCommand() *cli.Command {
	return &cli.Command{
		Name:  "keep",
		Usage: "Record which contracts of an overlap group are retained",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Category of the group", Required: true},
			&cli.IntFlag{Name: "group", Aliases: []string{"g"}, Usage: "Overlap group id", Required: true},
			&cli.StringSliceFlag{Name: "id", Usage: "Contract id to keep, repeatable"},
			&cli.BoolFlag{Name: "none", Usage: "Keep no member of the group"},
			&cli.BoolFlag{Name: "clear", Usage: "Forget the choice and fall back to the cheapest member"},
		},
		Action: runKeep,
	}
}

func runKeep(c *cli.Context) error {
	key := overlap.GroupKey{Category: strings.TrimSpace(c.String("category")), GroupID: c.Int("group")}
	ids := trimAll(c.StringSlice("id"))

	switch {
	case c.Bool("clear") && (len(ids) > 0 || c.Bool("none")):
		return errors.New("--clear cannot be combined with --id or --none")
	case !c.Bool("clear") && len(ids) == 0 && !c.Bool("none"):
		return errors.New("name the contracts to keep with --id, or pass --none or --clear")
	case c.Bool("none") && len(ids) > 0:
		return errors.New("--none cannot be combined with --id")
	}

	ctx := c.Context
	_, res, err := openBackend(ctx, c)
	if err != nil {
		return err
	}
	defer res.Close()

	svc := res.Service()
	events := applog.NewStructuredLogger(loggerFrom(c))
	if c.Bool("clear") {
		err = svc.ClearSelection(ctx, key)
	} else {
		err = svc.SaveSelection(ctx, key, ids)
	}
	if errors.Is(err, services.ErrReadOnly) {
		return fmt.Errorf("the %s backend does not store selections; use the sqlite or memory backend", res.Type)
	}
	if err != nil {
		return err
	}

	if c.Bool("clear") {
		events.LogSelectionChanged(ctx, applog.OpClear, key.Category, key.GroupID, 0)
		fmt.Printf("Cleared selection for %s group %d\n", key.Category, key.GroupID)
	} else {
		events.LogSelectionChanged(ctx, applog.OpKeep, key.Category, key.GroupID, len(ids))
		fmt.Printf("Keeping %d contract(s) in %s group %d\n", len(ids), key.Category, key.GroupID)
	}
	return nil
}

// =============================================================================
// CATEGORIES COMMAND
// =============================================================================

func categoriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "List categories and their contract counts",
		Action: func(c *cli.Context) error {
			_, res, err := openBackend(c.Context, c)
			if err != nil {
				return err
			}
			defer res.Close()

			cats, err := res.Service().Categories(c.Context)
			if err != nil {
				return err
			}
			return writeCategories(os.Stdout, cats)
		},
	}
}

func writeCategories(w io.Writer, cats []core.CategoryCount) error {
	if len(cats) == 0 {
		_, err := fmt.Fprintln(w, "No contracts found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tCONTRACTS\t")
	for _, cat := range cats {
		fmt.Fprintf(tw, "%s\t%d\t\n", cat.Name, cat.Count)
	}
	return tw.Flush()
}

// =============================================================================
// RUNS COMMAND
// =============================================================================

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List saved analysis runs, or show one with --id",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Number of runs to list"},
			&cli.StringFlag{Name: "id", Usage: "Show the savings rows of one run"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: string(report.FormatTable), Usage: "Output format for --id"},
		},
		Action: runRuns,
	}
}

func runRuns(c *cli.Context) error {
	logger := loggerFrom(c)
	repo, err := appcli.InitSQLite(logger, c.String("sqlite-db"))
	if err != nil {
		return err
	}
	defer repo.Close()

	if id := strings.TrimSpace(c.String("id")); id != "" {
		format, err := report.ParseFormat(c.String("format"))
		if err != nil {
			return err
		}
		rows, err := repo.RunRows(c.Context, id)
		if err != nil {
			return err
		}
		return report.Render(os.Stdout, format, resultFromRows(rows))
	}

	runs, err := repo.ListRuns(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	return writeRuns(os.Stdout, runs)
}

func writeRuns(w io.Writer, runs []storage.RunSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No saved runs.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tCATEGORIES\tGROUPS\tROWS\tSAVINGS\t")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t\n",
			r.ID,
			r.CreatedAt.Local().Format(time.DateTime),
			strings.Join(r.Categories, ", "),
			r.Groups,
			r.Rows,
			report.Dollars(r.Total))
	}
	return tw.Flush()
}

// resultFromRows rebuilds a renderable result from stored rows. Contract
// counts only cover members of overlap groups.
func resultFromRows(rows []overlap.SavingsRow) overlap.Result {
	res := overlap.Result{Rows: rows}
	index := map[string]int{}
	for _, r := range rows {
		i, ok := index[r.Category]
		if !ok {
			i = len(res.Categories)
			index[r.Category] = i
			res.Categories = append(res.Categories, overlap.CategoryResult{Category: r.Category})
		}
		cr := &res.Categories[i]
		cr.Contracts += r.Members
		cr.Groups++
		cr.Rows = append(cr.Rows, r)
	}
	res.ByCategory, res.Total = overlap.Summarize(rows)
	for i := range res.Categories {
		res.Categories[i].Savings = res.ByCategory[i].Amount
	}
	return res
}

// =============================================================================
// ENQUEUE COMMAND
// =============================================================================

func enqueueCommand() *cli.Command {
	return &cli.Command{
		Name:  "enqueue",
		Usage: "Queue an analysis for ocp-worker over AMQP",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "category", Aliases: []string{"c"}, Usage: "Category to analyze, repeatable (default: all)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if !cfg.AMQPEnabled() {
				return errors.New("AMQP_URL is not set")
			}
			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			if err != nil {
				return fmt.Errorf("connect to broker: %w", err)
			}
			defer client.Close()

			msg := amqp.NewAnalysisRequestMessage(trimAll(c.StringSlice("category")))
			ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
			defer cancel()
			if err := client.PublishAnalysisRequest(ctx, msg); err != nil {
				return fmt.Errorf("publish analysis request: %w", err)
			}
			loggerFrom(c).WithComponent(applog.ComponentAMQP).Info("Analysis request queued",
				applog.FieldOperation, applog.OpPublish, applog.FieldRequestID, msg.ID)
			fmt.Println(msg.ID)
			return nil
		},
	}
}

// =============================================================================
// SERVE COMMAND
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port", EnvVars: []string{"PORT"}, Value: "8081"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	logger := loggerFrom(c)
	cfg, res, err := openBackend(c.Context, c)
	if err != nil {
		return err
	}

	var ready apphttp.ReadinessCheck
	if res.Repository != nil {
		ready = res.Repository.Ping
	}
	srv := apphttp.NewServer(":"+c.String("port"), res.Service(), apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CacheTTL:           cfg.CacheTTL,
		Ready:              ready,
		Logger:             logger,
	})

	ctx, done := appcli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting ocp server",
		applog.FieldOperation, applog.OpStartup,
		"addr", srv.Addr,
		"backend", res.Type.String(),
		"amqp", cfg.AMQPEnabled())

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_ = res.Close()
		return fmt.Errorf("server error: %w", err)
	}

	appcli.WaitForShutdown(ctx, done)
	return nil
}
