package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/taskmirror/taskmirror/internal/config"
)

var accountsCmd = &cobra.Command{
	Use:     "accounts",
	GroupID: "sync",
	Short:   "Manage remote accounts",
	Long: `Manage the Google accounts tasks sync against.

Credentials live in ` + config.AccountsPath() + ` with owner-only
permissions. Each account needs an OAuth client id/secret pair and a
refresh token with the Google Tasks scope.`,
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		accts, err := config.LoadAccounts()
		if err != nil {
			return err
		}
		if len(accts.Accounts) == 0 {
			fmt.Println("No accounts configured. Run 'tm accounts add'.")
			return nil
		}
		for _, name := range accts.Names() {
			acct := accts.Accounts[name]
			status := "ready"
			if acct.Credentials.Validate() != nil {
				status = "incomplete credentials"
			}
			fmt.Printf("%-20s list=%-12s %s\n", name, tasklistFor(accts, name), status)
		}
		return nil
	},
}

var accountsAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add or update an account",
	Long: `Add a remote account.

Run interactively in a terminal for a guided form, or pass everything
as flags for scripting:

  tm accounts add work \
      --client-id ... --client-secret ... --refresh-token ...`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accts, err := config.LoadAccounts()
		if err != nil {
			return err
		}

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		acct := config.Account{Tasklist: "@default"}
		if name != "" {
			if existing, ok := accts.Accounts[name]; ok {
				acct = existing
			}
		}
		acct.Credentials.ClientID, _ = cmd.Flags().GetString("client-id")
		acct.Credentials.ClientSecret, _ = cmd.Flags().GetString("client-secret")
		acct.Credentials.RefreshToken, _ = cmd.Flags().GetString("refresh-token")
		if v, _ := cmd.Flags().GetString("tasklist"); v != "" {
			acct.Tasklist = v
		}

		// A guided form when attached to a terminal and something is
		// still missing.
		if term.IsTerminal(int(os.Stdin.Fd())) &&
			(name == "" || acct.Credentials.Validate() != nil) {
			if err := accountForm(&name, &acct); err != nil {
				return err
			}
		}

		if name == "" {
			return fmt.Errorf("account name is required")
		}
		if err := acct.Credentials.Validate(); err != nil {
			return fmt.Errorf("incomplete credentials for %s: %w", name, err)
		}

		accts.Accounts[name] = acct
		if err := config.SaveAccounts(accts); err != nil {
			return err
		}
		fmt.Printf("Saved account %s\n", name)
		return nil
	},
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an account",
	Long: `Remove an account's credentials.

Local tasks for the account stay in the store; they just stop syncing.
Use 'tm purge' to drop them too.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accts, err := config.LoadAccounts()
		if err != nil {
			return err
		}
		if _, ok := accts.Accounts[args[0]]; !ok {
			return fmt.Errorf("no account named %q", args[0])
		}
		delete(accts.Accounts, args[0])
		if err := config.SaveAccounts(accts); err != nil {
			return err
		}
		fmt.Printf("Removed account %s\n", args[0])
		return nil
	},
}

// accountForm collects account details interactively.
func accountForm(name *string, acct *config.Account) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Account name").
				Description("A short label like 'work' or 'home'").
				Value(name).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("OAuth client ID").
				Value(&acct.Credentials.ClientID),
			huh.NewInput().
				Title("OAuth client secret").
				EchoMode(huh.EchoModePassword).
				Value(&acct.Credentials.ClientSecret),
			huh.NewInput().
				Title("Refresh token").
				EchoMode(huh.EchoModePassword).
				Value(&acct.Credentials.RefreshToken),
			huh.NewInput().
				Title("Task list").
				Description("Remote task list id; @default is the primary list").
				Value(&acct.Tasklist),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("account form aborted: %w", err)
	}
	return nil
}

func init() {
	accountsAddCmd.Flags().String("client-id", "", "OAuth client ID")
	accountsAddCmd.Flags().String("client-secret", "", "OAuth client secret")
	accountsAddCmd.Flags().String("refresh-token", "", "OAuth refresh token")
	accountsAddCmd.Flags().String("tasklist", "", "Remote task list id")

	accountsCmd.AddCommand(accountsListCmd, accountsAddCmd, accountsRemoveCmd)
	rootCmd.AddCommand(accountsCmd)
}
