package cmd

import (
	"github.com/deploymenttheory/go-mrimg-restore/internal/backupset"
	"github.com/deploymenttheory/go-mrimg-restore/internal/config"
	"github.com/deploymenttheory/go-mrimg-restore/internal/inspect"
	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <backup-file>",
	Short: "Print the decoded layout of a backup file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringP("format", "f", config.Instance.Inspect.Format, "output format: summary, json or plist")
	inspectCmd.Flags().Bool("chain", false, "resolve and list each partition's backup chain")
	inspectCmd.Flags().StringP("output", "o", "", "write the report to this file instead of stdout")
	config.BindFlag("inspect.format", inspectCmd.Flags().Lookup("format"))
}

func runInspect(cmd *cobra.Command, args []string) error {
	format := config.Instance.Inspect.Format
	withChain, _ := cmd.Flags().GetBool("chain")
	output, _ := cmd.Flags().GetString("output")

	opts := mrimg.Options{MaxPayloadBytes: config.Instance.Parser.MaxPayloadBytes}
	layout, err := mrimg.ReadFileLayout(args[0], opts)
	if err != nil {
		return err
	}

	var resolver *backupset.Resolver
	if withChain {
		resolver = backupset.NewResolver(layout, opts)
	}
	report := inspect.NewReport(layout, resolver)
	if output != "" {
		return inspect.WriteFile(output, report, format)
	}
	return inspect.Render(cmd.OutOrStdout(), report, format)
}
