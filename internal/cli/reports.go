package cli

import (
	"fmt"
	"time"

	"github.com/UniQw/aiqueue"
	"github.com/UniQw/aiqueue/archive"
	"github.com/spf13/cobra"
)

func newReportsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Read archived reports from Redis",
	}
	cmd.AddCommand(
		newReportsListCommand(a),
		newReportsGetCommand(a),
		newReportsFollowCommand(a),
		newReportsPurgeCommand(a),
	)
	return cmd
}

func (a *app) openArchive() (*archive.Archive, func() error, error) {
	rdb, err := a.redisClient()
	if err != nil {
		return nil, nil, err
	}
	arc := archive.New(rdb, archive.Config{
		Namespace: a.cfg.Archive.Namespace,
		Retention: a.cfg.Archive.Retention,
		Logger:    a.logger(),
	})
	return arc, rdb.Close, nil
}

func newReportsListCommand(a *app) *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "list <finding-id>",
		Short: "List archived records for a finding, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, closeFn, err := a.openArchive()
			if err != nil {
				return err
			}
			defer closeFn()
			views, err := arc.ForFinding(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, v := range views {
				fmt.Fprintf(w, "%s\t%s\t%s\tretries=%d\n", v.ID, v.Status, v.UpdatedAt.Format(time.RFC3339), v.RetryCount)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 20, "Maximum records to list (0 for all)")
	return cmd
}

func newReportsGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <record-id>",
		Short: "Print an archived report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, closeFn, err := a.openArchive()
			if err != nil {
				return err
			}
			defer closeFn()
			v, err := arc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "# %s\n\nfinding=%s status=%s severity=%s\n\n", v.Finding.Title, v.FindingID, v.Status, v.Finding.Severity)
			if v.Status == aiqueue.StatusCompleted {
				fmt.Fprintln(w, v.Response)
			} else if v.Error != "" {
				fmt.Fprintf(w, "error: %s\n", v.Error)
			}
			return nil
		},
	}
}

func newReportsFollowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "follow",
		Short: "Stream status events published by running orchestrators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rdb, err := a.redisClient()
			if err != nil {
				return err
			}
			defer rdb.Close()
			events, err := archive.Follow(cmd.Context(), rdb, a.cfg.Archive.Namespace)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for e := range events {
				switch e.Type {
				case aiqueue.EventStatusUpdate:
					fmt.Fprintf(w, "%s %s %s %s\n", e.At.Format(time.TimeOnly), e.Record.ID, e.Record.FindingID, e.Record.Status)
				case aiqueue.EventBatchComplete:
					fmt.Fprintf(w, "%s batch complete records=%d\n", e.At.Format(time.TimeOnly), len(e.Batch))
				}
			}
			return nil
		},
	}
}

func newReportsPurgeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete archived records past their retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, closeFn, err := a.openArchive()
			if err != nil {
				return err
			}
			defer closeFn()
			total := 0
			for {
				n, err := arc.Purge(cmd.Context(), time.Now(), 256)
				if err != nil {
					return err
				}
				total += n
				if n == 0 {
					break
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged=%d\n", total)
			return nil
		},
	}
}
