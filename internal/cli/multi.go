package cli

import (
	"fmt"

	"github.com/sbenjam1n/lpms/internal/legal"
	"github.com/sbenjam1n/lpms/internal/roles"
	"github.com/spf13/cobra"
)

var multiCmd = &cobra.Command{
	Use:   "multi",
	Short: "One attorney representing several parties of a case",
}

var multiCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Make a contact the attorney of several parties at once",
	RunE: func(cmd *cobra.Command, args []string) error {
		caseID, _ := cmd.Flags().GetInt64("case")
		contactID, _ := cmd.Flags().GetInt64("contact")
		parties, _ := cmd.Flags().GetInt64Slice("parties")
		capacity, _ := cmd.Flags().GetString("capacity")
		var tmpl roles.RoleTemplate
		tmpl.Capacity = legal.Capacity(capacity)
		tmpl.SecondaryCapacity, _ = cmd.Flags().GetString("secondary-capacity")
		tmpl.BankDetails, _ = cmd.Flags().GetString("bank-details")
		tmpl.Notes, _ = cmd.Flags().GetString("notes")

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		out, err := s.service().CreateMultipleRepresentations(ctx, contactID, caseID, tmpl, parties)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(out)
		}
		printMultiple(out)
		return nil
	},
}

var multiUpdateCmd = &cobra.Command{
	Use:   "update [primary-role-id]",
	Short: "Replace the parties of a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		primaryID, err := parseID(args[0], "role")
		if err != nil {
			return err
		}
		parties, _ := cmd.Flags().GetInt64Slice("parties")

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		out, err := s.service().UpdateMultipleRepresentations(ctx, primaryID, parties)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(out)
		}
		fmt.Printf("Group headed by role %d replaced\n", primaryID)
		printMultiple(out)
		return nil
	},
}

func printMultiple(out legal.MultipleRepresentation) {
	fmt.Printf("Group %s: primary role %d, %d parties\n", out.GroupID, out.PrimaryRoleID, out.Total)
	for _, p := range out.Parties {
		fmt.Printf("  %s (%s, role %d) via role %d\n", p.Name, p.Capacity, p.RoleID, p.ShadowRoleID)
	}
}

var multiShowCmd = &cobra.Command{
	Use:   "show [role-id]",
	Short: "Show what a role represents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roleID, err := parseID(args[0], "role")
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		info, err := s.service().GetMultipleRepresentations(ctx, roleID)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(info)
		}
		fmt.Println(info.Summary())
		if info.GroupID != "" {
			fmt.Printf("  Group: %s\n", info.GroupID)
		}
		fmt.Printf("  Kind: %s, parties: %d\n", info.Kind, info.Total)
		return nil
	},
}

var multiDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "List the multi-representation groups of a case",
	RunE: func(cmd *cobra.Command, args []string) error {
		caseID, _ := cmd.Flags().GetInt64("case")
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		groups, err := s.service().DetectMultipleRepresentationsInCase(ctx, caseID)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(groups)
		}
		if len(groups) == 0 {
			fmt.Println("(no multiple representations)")
			return nil
		}
		for _, g := range groups {
			source := ""
			if g.FromAudit {
				source = " (from recorded snapshot)"
			}
			fmt.Printf("%s: %s, primary role %d%s\n", g.GroupID, g.LawyerName, g.PrimaryRoleID, source)
			for _, p := range g.Parties {
				fmt.Printf("  - %s (%s, role %d)\n", p.Name, p.Capacity, p.RoleID)
			}
		}
		return nil
	},
}

func init() {
	multiCreateCmd.Flags().Int64("case", 0, "Case id (required)")
	multiCreateCmd.Flags().Int64("contact", 0, "Attorney contact id (required)")
	multiCreateCmd.Flags().Int64Slice("parties", nil, "Role ids to represent, comma separated (required)")
	multiCreateCmd.Flags().String("capacity", string(legal.Abogado), "Abogado or Apoderado")
	multiCreateCmd.Flags().String("secondary-capacity", "", "Free-text qualifier")
	multiCreateCmd.Flags().String("bank-details", "", "Bank account details")
	multiCreateCmd.Flags().String("notes", "", "Notes for the primary role")
	multiCreateCmd.MarkFlagRequired("case")
	multiCreateCmd.MarkFlagRequired("contact")
	multiCreateCmd.MarkFlagRequired("parties")

	multiUpdateCmd.Flags().Int64Slice("parties", nil, "New role ids to represent, comma separated (required)")
	multiUpdateCmd.MarkFlagRequired("parties")

	multiDetectCmd.Flags().Int64("case", 0, "Case id (required)")
	multiDetectCmd.MarkFlagRequired("case")

	multiCmd.AddCommand(multiCreateCmd)
	multiCmd.AddCommand(multiUpdateCmd)
	multiCmd.AddCommand(multiShowCmd)
	multiCmd.AddCommand(multiDetectCmd)
}
