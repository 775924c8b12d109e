package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskmesh/taskmesh/internal/persistence"
)

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent orchestration runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dbPath, err := patternDBPath(cfg)
			if err != nil {
				return err
			}
			store, err := persistence.NewSQLiteStore(cmd.Context(), dbPath)
			if err != nil {
				return fmt.Errorf("opening run history database: %w", err)
			}
			defer store.Close()

			records, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No runs recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tGOAL\tTASKS\tRESULT\tCONFLICTS\tDURATION")
			for _, rec := range records {
				result := "failed"
				if rec.Success {
					result = "ok"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d/%d\t%s\n",
					rec.StartedAt.Format("2006-01-02 15:04:05"),
					truncate(rec.Goal, 48),
					rec.TaskCount,
					result,
					rec.ConflictsResolved, rec.ConflictsDetected,
					rec.Duration.Round(time.Millisecond),
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show")
	return cmd
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
