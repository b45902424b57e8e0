package cli

import (
	"fmt"

	"github.com/sbenjam1n/lpms/internal/legal"
	"github.com/sbenjam1n/lpms/internal/roles"
	"github.com/spf13/cobra"
)

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Roles contacts play in cases",
}

var roleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a role to a case",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in roles.AddRoleInput
		in.CaseID, _ = cmd.Flags().GetInt64("case")
		in.ContactID, _ = cmd.Flags().GetInt64("contact")
		capacity, _ := cmd.Flags().GetString("capacity")
		in.Capacity = legal.Capacity(capacity)
		in.SecondaryCapacity, _ = cmd.Flags().GetString("secondary-capacity")
		represents, _ := cmd.Flags().GetInt64("represents")
		in.RepresentsRoleID = optionalID(represents)
		in.BankDetails, _ = cmd.Flags().GetString("bank-details")
		in.Notes, _ = cmd.Flags().GetString("notes")

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := s.service().AddRole(ctx, in)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(map[string]int64{"id": id})
		}
		fmt.Printf("Role %d added: contact %d as %s in case %d\n", id, in.ContactID, legal.ParseCapacity(capacity), in.CaseID)
		return nil
	},
}

var roleUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Change fields of a role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "role")
		if err != nil {
			return err
		}

		var u roles.RoleUpdate
		flags := cmd.Flags()
		if flags.Changed("capacity") {
			v, _ := flags.GetString("capacity")
			c := legal.Capacity(v)
			u.Capacity = &c
		}
		if flags.Changed("secondary-capacity") {
			v, _ := flags.GetString("secondary-capacity")
			u.SecondaryCapacity = &v
		}
		if flags.Changed("represents") {
			v, _ := flags.GetInt64("represents")
			u.RepresentsRoleID = &v
		}
		if flags.Changed("bank-details") {
			v, _ := flags.GetString("bank-details")
			u.BankDetails = &v
		}
		if flags.Changed("notes") {
			v, _ := flags.GetString("notes")
			u.Notes = &v
		}
		u.ClearRepresents, _ = flags.GetBool("clear-represents")
		u.Ungroup, _ = flags.GetBool("ungroup")

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		r, err := s.service().UpdateRole(ctx, id, u)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(r)
		}
		fmt.Printf("Role %d updated\n", r.ID)
		printRole(r)
		return nil
	},
}

var roleShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "role")
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		r, err := s.service().GetRole(ctx, id)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(r)
		}
		printRole(r)
		return nil
	},
}

func printRole(r legal.Role) {
	fmt.Printf("  Role %d: contact %d as %s in case %d\n", r.ID, r.ContactID, r.Capacity, r.CaseID)
	if r.SecondaryCapacity != "" {
		fmt.Printf("    Secondary capacity: %s\n", r.SecondaryCapacity)
	}
	if target, ok := r.Represents(); ok {
		fmt.Printf("    Represents: role %d\n", target)
	}
	if r.GroupID != "" {
		fmt.Printf("    Group: %s (%s)\n", r.GroupID, r.GroupKind)
	}
	if r.BankDetails != "" {
		fmt.Printf("    Bank details: %s\n", r.BankDetails)
	}
	if r.Notes != "" {
		fmt.Printf("    Notes: %s\n", r.Notes)
	}
}

var roleDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a role; roles representing it lose their pointer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "role")
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.service().DeleteRole(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Role %d deleted\n", id)
		return nil
	},
}

var roleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the roles of a case in capacity order",
	RunE: func(cmd *cobra.Command, args []string) error {
		caseID, _ := cmd.Flags().GetInt64("case")
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		items, err := s.service().ListCaseRoles(ctx, caseID)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(items)
		}
		if len(items) == 0 {
			fmt.Println("(no roles)")
			return nil
		}
		for _, r := range items {
			line := fmt.Sprintf("  %-6d %-12s %s", r.ID, r.Capacity, r.ContactName)
			if r.RepresentsName != "" {
				line += fmt.Sprintf("  -> %s", r.RepresentsName)
			}
			if r.GroupKind != legal.GroupNone {
				line += fmt.Sprintf("  [%s %s]", r.GroupKind, r.GroupID)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{roleAddCmd, roleUpdateCmd} {
		c.Flags().String("capacity", "", "Actor, Demandado, Tercero, Abogado, Apoderado, Perito, Testigo, Mediador, Otro")
		c.Flags().String("secondary-capacity", "", "Free-text qualifier, e.g. 'en representación de su hijo menor'")
		c.Flags().Int64("represents", 0, "Role id this role represents")
		c.Flags().String("bank-details", "", "Bank account details")
		c.Flags().String("notes", "", "Free-text notes")
	}
	roleAddCmd.Flags().Int64("case", 0, "Case id (required)")
	roleAddCmd.Flags().Int64("contact", 0, "Contact id (required)")
	roleAddCmd.MarkFlagRequired("case")
	roleAddCmd.MarkFlagRequired("contact")
	roleAddCmd.MarkFlagRequired("capacity")

	roleUpdateCmd.Flags().Bool("clear-represents", false, "Remove the represents pointer")
	roleUpdateCmd.Flags().Bool("ungroup", false, "Detach a secondary from its group")

	roleListCmd.Flags().Int64("case", 0, "Case id (required)")
	roleListCmd.MarkFlagRequired("case")
	roleTreeCmd.Flags().Int64("case", 0, "Case id (required)")
	roleTreeCmd.MarkFlagRequired("case")

	roleCmd.AddCommand(roleAddCmd)
	roleCmd.AddCommand(roleUpdateCmd)
	roleCmd.AddCommand(roleShowCmd)
	roleCmd.AddCommand(roleDeleteCmd)
	roleCmd.AddCommand(roleListCmd)
	roleCmd.AddCommand(roleTreeCmd)
}
