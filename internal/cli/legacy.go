package cli

import (
	"fmt"

	"github.com/sbenjam1n/lpms/internal/legacy"
	"github.com/spf13/cobra"
)

var legacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Groups recorded as markers in role notes by older versions",
}

var legacyScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the groups encoded in the notes of a case without writing",
	RunE: func(cmd *cobra.Command, args []string) error {
		caseID, _ := cmd.Flags().GetInt64("case")
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		groups, warnings, err := s.service().ScanLegacyGroups(ctx, caseID)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(map[string]any{"groups": groups, "warnings": warnings})
		}
		printLegacyGroups(groups)
		printWarnings(warnings)
		return nil
	},
}

var legacyImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Turn the notes markers of a case into group records",
	RunE: func(cmd *cobra.Command, args []string) error {
		caseID, _ := cmd.Flags().GetInt64("case")
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := s.service().ImportLegacyGroups(ctx, caseID)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(result)
		}
		fmt.Printf("Imported %d group(s)\n", len(result.Imported))
		printLegacyGroups(result.Imported)
		for _, reason := range result.Skipped {
			fmt.Printf("  Skipped: %s\n", reason)
		}
		printWarnings(result.Warnings)
		return nil
	},
}

func printLegacyGroups(groups []legacy.Group) {
	if len(groups) == 0 {
		fmt.Println("(no legacy groups)")
		return
	}
	for _, g := range groups {
		fmt.Printf("%s: primary role %d, secondaries %v\n", g.ID, g.PrimaryRoleID, g.SecondaryRoleIDs)
		for _, p := range g.Parties {
			fmt.Printf("  %s\n", legacy.FormatAuditLine(p))
		}
	}
}

func printWarnings(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Println("\nWarnings:")
	for _, w := range warnings {
		fmt.Printf("  %s\n", w)
	}
}

func init() {
	for _, c := range []*cobra.Command{legacyScanCmd, legacyImportCmd} {
		c.Flags().Int64("case", 0, "Case id (required)")
		c.MarkFlagRequired("case")
		legacyCmd.AddCommand(c)
	}
}
