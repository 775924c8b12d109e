package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskmesh/taskmesh/internal/persistence"
)

func newPatternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "List learned execution patterns",
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
				return fmt.Errorf("opening pattern database: %w", err)
			}
			defer store.Close()

			patterns, err := store.LoadPatterns(cmd.Context())
			if err != nil {
				return err
			}
			if len(patterns) == 0 {
				fmt.Println("No patterns learned yet.")
				return nil
			}

			// Most-used first; ties broken by recency.
			sort.Slice(patterns, func(i, j int) bool {
				if patterns[i].UseCount != patterns[j].UseCount {
					return patterns[i].UseCount > patterns[j].UseCount
				}
				return patterns[i].LastUsed.After(patterns[j].LastUsed)
			})

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQUENCE\tRUNS\tSUCCESS\tAVG DURATION\tLAST USED")
			for _, p := range patterns {
				fmt.Fprintf(w, "%s\t%d\t%.0f%%\t%s\t%s\n",
					strings.Join(p.Sequence, " > "),
					p.UseCount,
					p.SuccessRate*100,
					p.AvgDuration.Round(time.Millisecond),
					p.LastUsed.Format(time.RFC3339),
				)
			}
			return w.Flush()
		},
	}
}
