package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskmirror/taskmirror/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("config file:    %s\n", config.Path())
		fmt.Printf("accounts file:  %s\n", config.AccountsPath())
		fmt.Printf("database:       %s\n", cfg.DBPath)
		fmt.Printf("default account: %s\n", orUnset(cfg.DefaultAccount))
		fmt.Printf("auto-save:      %v\n", cfg.Sync.AutoSave)
		fmt.Printf("daemon interval: %s\n", cfg.Daemon.SyncInterval)
		fmt.Printf("dashboard port: %d\n", cfg.Dashboard.Port)
		if cfg.Report.SMTPAddr != "" {
			fmt.Printf("report relay:   %s (%s -> %s)\n", cfg.Report.SMTPAddr, cfg.Report.From, cfg.Report.To)
		}
		return nil
	},
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func init() {
	rootCmd.AddCommand(configCmd)
}
