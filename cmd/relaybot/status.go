package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"relaybot/internal/config"
	"relaybot/internal/journal"
	"relaybot/internal/provider"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check configuration and upstream reachability",
		Long: `Loads and validates the configuration, then asks the Gemini API for
the configured model. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("relaybot status v%s\n\n", version)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config", err.Error())
				return err
			}
			printPass("Config", cfgPath)

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			gemini := provider.NewGenerator(cfg.Gemini, logger)
			if err := gemini.Healthy(ctx); err != nil {
				printFail("Gemini", err.Error())
			} else {
				printPass("Gemini", gemini.Model())
			}

			if _, err := provider.NewImageGenerator(cfg.Image, logger); err != nil {
				printFail("Image backend", err.Error())
			} else if !cfg.Image.Enabled {
				printWarn("Image backend", "disabled")
			} else {
				printPass("Image backend", cfg.Image.Backend)
			}

			if cfg.Health.Enabled {
				printPass("Liveness", fmt.Sprintf("%s:%d", cfg.Health.Host, cfg.Health.Port))
			} else {
				printWarn("Liveness", "disabled")
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	var (
		since  time.Duration
		dbPath string
		recent int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the request journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := config.LoadFile(resolveConfigPath())
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				dbPath = cfg.Journal.DBPath
				if env := os.Getenv("JOURNAL_PATH"); env != "" {
					dbPath = env
				}
			}
			dbPath = config.ExpandPath(dbPath)
			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("journal not found at %s (enable journal.enabled first)", dbPath)
			}

			j, err := journal.NewSQLite(dbPath, logger)
			if err != nil {
				return err
			}
			defer j.Close()

			ctx := cmd.Context()
			summary, err := j.Summary(ctx, time.Now().Add(-since))
			if err != nil {
				return err
			}

			fmt.Printf("Requests in the last %s (%s)\n\n", since, dbPath)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tTOTAL\tOK\tERROR\tREJECTED\tAVG LATENCY")
			for _, s := range summary {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.0fms\n", s.Kind, s.Total, s.OK, s.Errors, s.Rejected, s.AvgLatencyMs)
			}
			w.Flush()

			if recent > 0 {
				records, err := j.Recent(ctx, recent)
				if err != nil {
					return err
				}
				fmt.Printf("\nLatest %d requests\n\n", len(records))
				w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tKIND\tCHAT\tOUTCOME\tLATENCY\tERROR")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%dms\t%s\n",
						r.CreatedAt.Local().Format(time.DateTime), r.Kind, r.ChatID, r.Outcome, r.LatencyMs, r.Error)
				}
				w.Flush()
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "time window to summarize")
	cmd.Flags().StringVar(&dbPath, "db", "", "journal database path (default: journal.dbPath)")
	cmd.Flags().IntVar(&recent, "recent", 0, "also list the latest N requests")
	return cmd
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-16s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-16s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-16s %s\n", check, detail)
}
