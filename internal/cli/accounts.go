package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gestix.app/internal/auth"
)

func newCompanyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "Manage companies",
	}
	cmd.AddCommand(newCompanyCreateCmd(a))
	return cmd
}

func newCompanyCreateCmd(a *app) *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a company",
		Example: `  gestixctl company create --name "Padaria Central" --email contato@padaria.com.br`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			acc, err := a.accounts()
			if err != nil {
				return err
			}
			c, err := acc.RegisterCompany(cmd.Context(), name, email)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "company %s created (%s)\n", c.ID, c.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Company name")
	cmd.Flags().StringVar(&email, "email", "", "Contact email")
	return cmd
}

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserCreateCmd(a))
	cmd.AddCommand(newUserListCmd(a))
	cmd.AddCommand(newUserStatusCmd(a, "activate", auth.UserStatusActive))
	cmd.AddCommand(newUserStatusCmd(a, "deactivate", auth.UserStatusInactive))
	return cmd
}

func newUserCreateCmd(a *app) *cobra.Command {
	var companyID, name, email, password, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user in a company",
		Long: `Register a user in a company. The password is read from --password or,
when omitted, from GESTIX_NEW_PASSWORD so it stays out of shell history.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("GESTIX_NEW_PASSWORD")
			}
			acc, err := a.accounts()
			if err != nil {
				return err
			}
			u, err := acc.RegisterUser(cmd.Context(), companyID, name, email, password, role)
			if errors.Is(err, auth.ErrConflict) {
				return fmt.Errorf("email %s is already registered", email)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "user %s created (%s, %s)\n", u.ID, u.Email, u.CompanyName)
			return nil
		},
	}
	cmd.Flags().StringVar(&companyID, "company", "", "Company id")
	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Login email")
	cmd.Flags().StringVar(&password, "password", "", "Initial password")
	cmd.Flags().StringVar(&role, "role", "", "Role label shown in the UI")
	return cmd
}

func newUserStatusCmd(a *app, verb, status string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " USER_ID",
		Short: "Mark a user " + status,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := a.accounts()
			if err != nil {
				return err
			}
			if err := acc.SetUserStatus(cmd.Context(), args[0], status); err != nil {
				if errors.Is(err, auth.ErrNotFound) {
					return fmt.Errorf("user %s not found", args[0])
				}
				return err
			}
			fmt.Fprintf(a.stdout, "user %s is now %s\n", args[0], status)
			return nil
		},
	}
}

func newUserListCmd(a *app) *cobra.Command {
	var companyID string
	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List the users of a company",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if companyID == "" {
				return errors.New("--company is required")
			}
			b, err := a.store()
			if err != nil {
				return err
			}
			users, err := b.ListUsers(cmd.Context(), companyID)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(a.stdout, "No users.")
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE\tSTATUS\tLAST ACCESS")
			for _, u := range users {
				last := "-"
				if u.LastAccessAt != nil {
					last = u.LastAccessAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.Role, u.Status, last)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&companyID, "company", "", "Company id")
	return cmd
}
