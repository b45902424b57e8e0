package cli

import (
	"fmt"

	"github.com/sbenjam1n/lpms/internal/legal"
	"github.com/sbenjam1n/lpms/internal/validator"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Integrity audit of the representation graph",
}

var auditValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Audit one case for cycles, dangling pointers and broken groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		caseID, _ := cmd.Flags().GetInt64("case")
		strict, _ := cmd.Flags().GetBool("strict")
		ctx := cmd.Context()

		pool, err := connectDB(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		report, err := validator.New(storeFor(pool), newLogger()).ValidateHierarchy(ctx, caseID)
		if err != nil {
			return err
		}

		if jsonOut {
			if err := printJSON(report); err != nil {
				return err
			}
		} else {
			fmt.Printf("Case %d: %s\n", caseID, formatReport(report))
		}
		if strict {
			return report.Err()
		}
		return nil
	},
}

var auditCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clear represents pointers whose target is missing or in another case",
	RunE: func(cmd *cobra.Command, args []string) error {
		caseID, _ := cmd.Flags().GetInt64("case")
		ctx := cmd.Context()

		pool, err := connectDB(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		cleaned, err := validator.New(storeFor(pool), newLogger()).CleanOrphanedRepresentations(ctx, caseID)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(map[string]any{"case_id": caseID, "cleaned": cleaned})
		}
		if len(cleaned) == 0 {
			fmt.Printf("Case %d: nothing to clean\n", caseID)
			return nil
		}
		fmt.Printf("Case %d: cleared the represents pointer of %d role(s): %v\n", caseID, len(cleaned), cleaned)
		return nil
	},
}

func formatReport(r legal.AuditReport) string {
	if r.Passed() {
		return fmt.Sprintf("PASSED (%d roles)", r.RolesSeen)
	}
	result := fmt.Sprintf("FAILED (%d roles, %d violation(s))", r.RolesSeen, len(r.Violations))
	for _, line := range r.Lines() {
		result += "\n  " + line
	}
	return result
}

func init() {
	auditValidateCmd.Flags().Int64("case", 0, "Case id (required)")
	auditValidateCmd.Flags().Bool("strict", false, "Exit non-zero when violations are found")
	auditValidateCmd.MarkFlagRequired("case")
	auditCleanCmd.Flags().Int64("case", 0, "Case id (required)")
	auditCleanCmd.MarkFlagRequired("case")

	auditCmd.AddCommand(auditValidateCmd)
	auditCmd.AddCommand(auditCleanCmd)
	auditCmd.AddCommand(auditWorkerCmd)
	auditCmd.AddCommand(auditSweepCmd)
}
