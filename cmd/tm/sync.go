package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run a full two-way sync",
	Long: `Reconcile the local store against the remote account.

Every task is compared against the state recorded at its last sync:
local-only changes are pushed, remote-only changes are pulled, and
tasks edited on both sides resolve to whichever edit is newer (ties go
to the remote copy). Deletions propagate unless the other side has a
newer edit.

  tm sync               # sync the default account
  tm sync --account home
  tm sync --all         # sync every configured account`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if all, _ := cmd.Flags().GetBool("all"); all {
			summaries, err := a.engine.RunBatchSyncAll(ctx, a.accounts.Names())
			for _, name := range a.accounts.Names() {
				if sum, ok := summaries[name]; ok {
					fmt.Println(a.styles.RenderSummary(sum))
				}
			}
			return err
		}

		account, err := a.account(cmd)
		if err != nil {
			return err
		}
		sum, err := a.engine.RunBatchSync(ctx, account)
		if err != nil {
			return err
		}
		fmt.Println(a.styles.RenderSummary(sum))
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("all", false, "Sync every configured account")
	rootCmd.AddCommand(syncCmd)
}
