package cli

import (
	"fmt"

	"github.com/sbenjam1n/lpms/internal/legal"
	"github.com/spf13/cobra"
)

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Contact management",
}

var contactAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a person or organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in legal.ContactInput
		in.Name, _ = cmd.Flags().GetString("name")
		in.IsOrganization, _ = cmd.Flags().GetBool("org")
		in.DNI, _ = cmd.Flags().GetString("dni")
		in.CUIT, _ = cmd.Flags().GetString("cuit")
		in.Address, _ = cmd.Flags().GetString("address")
		in.LegalAddress, _ = cmd.Flags().GetString("legal-address")
		in.Phone, _ = cmd.Flags().GetString("phone")
		in.Email, _ = cmd.Flags().GetString("email")

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := s.service().RegisterContact(ctx, in)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(map[string]int64{"id": id})
		}
		fmt.Printf("Contact %d registered: %s\n", id, in.Name)
		return nil
	},
}

var contactShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "contact")
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		c, err := s.service().GetContact(ctx, id)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(c)
		}
		kind := "person"
		if c.IsOrganization {
			kind = "organization"
		}
		fmt.Printf("Contact %d: %s (%s)\n", c.ID, c.Name, kind)
		for _, f := range []struct{ label, value string }{
			{"DNI", c.DNI}, {"CUIT", c.CUIT}, {"Address", c.Address},
			{"Legal address", c.LegalAddress}, {"Phone", c.Phone}, {"Email", c.Email},
		} {
			if f.value != "" {
				fmt.Printf("  %-14s %s\n", f.label+":", f.value)
			}
		}
		return nil
	},
}

var contactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		contacts, err := s.service().ListContacts(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(contacts)
		}
		if len(contacts) == 0 {
			fmt.Println("(no contacts)")
			return nil
		}
		for _, c := range contacts {
			id := c.CUIT
			if id == "" {
				id = c.DNI
			}
			fmt.Printf("  %-6d %-40s %s\n", c.ID, c.Name, id)
		}
		return nil
	},
}

var contactDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a contact and every role it holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "contact")
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.service().DeleteContact(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Contact %d deleted\n", id)
		return nil
	},
}

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Case management",
}

var caseOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a case",
	RunE: func(cmd *cobra.Command, args []string) error {
		caption, _ := cmd.Flags().GetString("caption")
		number, _ := cmd.Flags().GetString("number")

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := s.service().OpenCase(ctx, legal.CaseInput{Caption: caption, Number: number})
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(map[string]int64{"id": id})
		}
		fmt.Printf("Case %d opened: %s\n", id, caption)
		return nil
	},
}

var caseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		cases, err := s.service().ListCases(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cases)
		}
		if len(cases) == 0 {
			fmt.Println("(no cases)")
			return nil
		}
		for _, c := range cases {
			fmt.Printf("  %-6d %-16s %s\n", c.ID, c.Number, c.Caption)
		}
		return nil
	},
}

func init() {
	contactAddCmd.Flags().String("name", "", "Full name or company name (required)")
	contactAddCmd.Flags().Bool("org", false, "Contact is an organization")
	contactAddCmd.Flags().String("dni", "", "National identity number")
	contactAddCmd.Flags().String("cuit", "", "Tax id, NN-NNNNNNNN-N")
	contactAddCmd.Flags().String("address", "", "Real address")
	contactAddCmd.Flags().String("legal-address", "", "Constituted legal address")
	contactAddCmd.Flags().String("phone", "", "Phone number")
	contactAddCmd.Flags().String("email", "", "Email address")
	contactAddCmd.MarkFlagRequired("name")

	contactCmd.AddCommand(contactAddCmd)
	contactCmd.AddCommand(contactShowCmd)
	contactCmd.AddCommand(contactListCmd)
	contactCmd.AddCommand(contactDeleteCmd)

	caseOpenCmd.Flags().String("caption", "", "Case caption (required)")
	caseOpenCmd.Flags().String("number", "", "Court file number")
	caseOpenCmd.MarkFlagRequired("caption")

	caseCmd.AddCommand(caseOpenCmd)
	caseCmd.AddCommand(caseListCmd)
}
