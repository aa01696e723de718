package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	applog "ocp/internal/log"
	gsheet "ocp/internal/sheets/google"
)

// =============================================================================
// SHEETS-AUTH COMMAND
// =============================================================================

func sheetsAuthCommand() *cli.Command {
	return &cli.Command{
		Name:  "sheets-auth",
		Usage: "Authorize Google Sheets access with an OAuth client and save the token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "port",
				Value:   "8085",
				Usage:   "Local port for the OAuth redirect (http://localhost:<port>/callback)",
				EnvVars: []string{"OAUTH_REDIRECT_PORT"},
			},
			&cli.StringFlag{
				Name:    "token-file",
				Usage:   "Where to write the token (default: GOOGLE_OAUTH_TOKEN_FILE or token.json)",
				EnvVars: []string{"GOOGLE_OAUTH_TOKEN_FILE"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Minute,
				Usage: "How long to wait for the browser consent",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := gsheet.OAuthClientFromEnv()
			if err != nil {
				return err
			}
			out := c.String("token-file")
			if out == "" {
				out = gsheet.TokenFileFromEnv()
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
			defer cancel()

			tok, err := gsheet.Authorize(ctx, cfg, c.String("port"), func(url string) {
				fmt.Printf("Open this URL to authorize:\n%s\n", url)
			})
			if err != nil {
				return err
			}
			if err := gsheet.SaveToken(out, tok); err != nil {
				return err
			}
			loggerFrom(c).WithComponent(applog.ComponentSheets).Info("OAuth token saved", "path", out)
			fmt.Printf("Saved token to %s\n", out)
			return nil
		},
	}
}
