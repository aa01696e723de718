// ocp finds overlapping service contracts and estimates what consolidating
// them would save.
//
// Usage:
//
//	ocp analyze [--category Network] [--keep Network:1=R1] [--format table]
//	ocp import --file contracts.csv
//	ocp keep --category Network --group 1 --id R1
//	ocp serve
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"ocp/internal/backend"
	appcli "ocp/internal/cli"
	"ocp/internal/config"
	applog "ocp/internal/log"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	appcli.LoadEnvFile()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "ocp",
		Usage:   "Contract overlap analyzer - find redundant service contracts and estimate savings",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		// Keep specs carry comma-separated ids and category names may contain
		// commas; repeat the flag instead.
		DisableSliceFlagSeparator: true,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Value:   config.BackendMemory,
				Usage:   "Data backend (memory, sqlite, sheets)",
				EnvVars: []string{"DATA_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "sqlite-db",
				Value:   "./data/ocp.db",
				Usage:   "SQLite database path",
				EnvVars: []string{"SQLITE_DB_PATH"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Value:   "./data",
				Usage:   "Directory of contract CSV files for the memory backend",
				EnvVars: []string{"DATA_DIR"},
			},
		},

		Before: func(c *cli.Context) error {
			logger := appcli.SetupLogger(c.String("log-level"))
			c.App.Metadata = map[string]any{"logger": logger}
			return nil
		},

		Commands: []*cli.Command{
			analyzeCommand(),
			importCommand(),
			keepCommand(),
			categoriesCommand(),
			runsCommand(),
			enqueueCommand(),
			sheetsAuthCommand(),
			serveCommand(),
		},
	}
}

func loggerFrom(c *cli.Context) *applog.Logger {
	if l, ok := c.App.Metadata["logger"].(*applog.Logger); ok {
		return l
	}
	return applog.New(applog.DefaultConfig())
}

// loadConfig reads the environment and lets the global flags override it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Load()
	cfg.DataBackend = c.String("backend")
	cfg.SQLiteDBPath = c.String("sqlite-db")
	cfg.DataDir = c.String("data-dir")
	cfg.LogLevel = c.String("log-level")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openBackend(ctx context.Context, c *cli.Context) (*config.Config, *backend.BackendResult, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	res, err := backend.NewFactory(loggerFrom(c).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s backend: %w", bcfg.Type, err)
	}
	return cfg, res, nil
}
