package cli

import (
	"fmt"

	"github.com/sbenjam1n/lpms/internal/queue"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Queue management",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the length of the role event stream and the unacknowledged events",
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := connectRedis()
		if err != nil {
			return err
		}
		defer rdb.Close()

		ctx := cmd.Context()
		q := queue.New(rdb)
		if err := q.EnsureStreams(ctx); err != nil {
			return err
		}

		st, err := q.Status(ctx)
		if err != nil {
			return fmt.Errorf("queue status: %w", err)
		}
		if jsonOut {
			return printJSON(st)
		}

		fmt.Printf("Queue Status:\n")
		fmt.Printf("  %s: %d entries\n", queue.StreamRoleEvents, st.Length)
		fmt.Printf("  %s:  %d pending\n", queue.GroupAuditor, st.Pending)
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueStatusCmd)
}
