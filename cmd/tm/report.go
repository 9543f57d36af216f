package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskmirror/taskmirror/internal/report"
)

var reportCmd = &cobra.Command{
	Use:     "report",
	GroupID: "advanced",
	Short:   "Generate a task status report",
	Long: `Summarize pending, completed, and overdue tasks per account.

  tm report                 # print to stdout
  tm report --email         # send via the configured SMTP relay`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		gen := report.NewGenerator(a.store)
		rep, err := gen.Generate(ctx, nil)
		if err != nil {
			return err
		}

		if email, _ := cmd.Flags().GetBool("email"); email {
			if a.cfg.Report.SMTPAddr == "" {
				return fmt.Errorf("report.smtp_addr is not configured")
			}
			mailer := &report.Mailer{
				Addr: a.cfg.Report.SMTPAddr,
				From: a.cfg.Report.From,
				To:   a.cfg.Report.To,
			}
			if err := mailer.Send(rep); err != nil {
				return err
			}
			fmt.Printf("Report sent to %s\n", a.cfg.Report.To)
			return nil
		}

		text, err := rep.Text()
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "advanced",
	Short:   "Export tasks as YAML or JSON",
	Long: `Write the task set to stdout or a file.

  tm export > tasks.yaml
  tm export --format json > tasks.json
  tm export --account work -o work.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		account, _ := cmd.Flags().GetString("account")
		gen := report.NewGenerator(a.store)

		var data []byte
		switch format, _ := cmd.Flags().GetString("format"); format {
		case "yaml", "":
			data, err = gen.ExportYAML(ctx, account)
		case "json":
			data, err = gen.ExportJSON(ctx, account)
		default:
			return fmt.Errorf("unknown format %q (yaml or json)", format)
		}
		if err != nil {
			return err
		}

		if out, _ := cmd.Flags().GetString("output"); out != "" {
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Printf("Exported to %s\n", out)
			return nil
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	reportCmd.Flags().Bool("email", false, "Email the report via SMTP")
	exportCmd.Flags().StringP("format", "f", "yaml", "Output format: yaml or json")
	exportCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	rootCmd.AddCommand(reportCmd, exportCmd)
}
