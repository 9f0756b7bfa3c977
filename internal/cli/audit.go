package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}
	cmd.AddCommand(newAuditTailCmd(a))
	return cmd
}

func newAuditTailCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent audit entries, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.store()
			if err != nil {
				return err
			}
			entries, err := b.RecentAudit(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				for _, e := range entries {
					if err := enc.Encode(e); err != nil {
						return err
					}
				}
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tTYPE\tSTATUS\tUSER\tIP\tDESCRIPTION")
			for _, e := range entries {
				actor := "-"
				if e.ActorUserID != nil {
					actor = *e.ActorUserID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.OccurredAt.UTC().Format(time.RFC3339), e.EventType, e.Status, actor, e.SourceIP, e.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of entries (max 1000)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per line")
	return cmd
}
