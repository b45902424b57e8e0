package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/sbenjam1n/lpms/internal/auditor"
	"github.com/sbenjam1n/lpms/internal/queue"
	"github.com/spf13/cobra"
)

var auditWorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Audit each case as its role events arrive from Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := connectDB(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		rdb, err := connectRedis()
		if err != nil {
			return err
		}
		defer rdb.Close()

		a := auditor.New(storeFor(pool), queue.New(rdb), newLogger(), auditorOptions(cmd))

		fmt.Println("Auditor running. Consuming role events from Redis... (Ctrl+C to stop)")
		err = a.ConsumeEvents(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

var auditSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Audit many cases concurrently (every case unless --case is given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		caseIDs, _ := cmd.Flags().GetInt64Slice("case")
		ctx := cmd.Context()
		pool, err := connectDB(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		a := auditor.New(storeFor(pool), nil, newLogger(), auditorOptions(cmd))
		findings, err := a.Sweep(ctx, caseIDs)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(findings)
		}

		passed, failed := 0, 0
		for _, f := range findings {
			if f.Report.Passed() {
				passed++
			} else {
				failed++
				fmt.Printf("Case %d: %s\n", f.CaseID, formatReport(f.Report))
			}
			if len(f.Repaired) > 0 {
				fmt.Printf("Case %d: repaired roles %v\n", f.CaseID, f.Repaired)
			}
		}
		fmt.Printf("\n%d passed, %d failed\n", passed, failed)
		return nil
	},
}

func auditorOptions(cmd *cobra.Command) auditor.Options {
	opts := auditor.Options{
		Consumer:    cfg.AuditConsumer,
		AutoRepair:  cfg.AuditAutoRepair,
		Concurrency: cfg.AuditConcurrency,
	}
	if cmd.Flags().Changed("repair") {
		opts.AutoRepair, _ = cmd.Flags().GetBool("repair")
	}
	if cmd.Flags().Changed("concurrency") {
		opts.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	return opts
}

func init() {
	for _, c := range []*cobra.Command{auditWorkerCmd, auditSweepCmd} {
		c.Flags().Bool("repair", false, "Clear orphaned and cross-case pointers (default from LPMS_AUDIT_AUTO_REPAIR)")
	}
	auditSweepCmd.Flags().Int64Slice("case", nil, "Case ids to audit, comma separated")
	auditSweepCmd.Flags().Int("concurrency", 0, "Cases audited at once (default from LPMS_AUDIT_CONCURRENCY)")
}
