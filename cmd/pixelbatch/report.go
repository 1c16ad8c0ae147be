package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/dunamismax/pixelbatch/internal/store"
	"github.com/spf13/cobra"
)

func newReportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "report <run-id>",
		Short: "Print the recorded outcome of every file in a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Database.DSN) == "" {
				return fmt.Errorf("report needs --database-dsn or PIXELBATCH_DATABASE_DSN")
			}

			ctx := cmd.Context()
			results, err := store.NewPostgresResultStore(ctx, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = results.Close() }()

			return printReport(ctx, cmd.OutOrStdout(), results, args[0])
		},
	}
}

func printReport(ctx context.Context, w io.Writer, results store.ResultStore, runID string) error {
	rows, err := results.ListRun(ctx, runID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no results recorded for run %s", runID)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tSOURCE\tOUTPUT\tSIZE\tBYTES\tDURATION\tERROR")

	var succeeded, failed int
	for _, r := range rows {
		if r.Status == domain.FileStatusSucceeded {
			succeeded++
		} else {
			failed++
		}
		size := "-"
		if r.Width > 0 && r.Height > 0 {
			size = fmt.Sprintf("%dx%d", r.Width, r.Height)
		}
		errText := r.Error
		if errText == "" {
			errText = "-"
		} else {
			errText = r.Stage + ": " + errText
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.Status, r.Source, orDash(r.Output), size, r.Bytes, r.Duration.Round(time.Millisecond), errText)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "\nrun %s: %d succeeded, %d failed\n", runID, succeeded, failed)
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
