package cmd

import (
	"fmt"

	"github.com/deploymenttheory/go-mrimg-restore/internal/config"
	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	"github.com/spf13/cobra"
)

// Version is the released version, overridden at link time
var Version = "0.1.0"

var cfgFile string

// rootCmd represents the base CLI command
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Restore Macrium Reflect backup images to raw disk images",
	Long: `mrimg-restore reads Macrium Reflect .mrimg backup files, resolves
incremental and differential backup chains back to their full backup
and writes each imaged disk out as a raw, sector-exact disk image.

Restored images can optionally be digested, compressed and attached
to a loop device.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// If config file was explicitly specified via flag, reload it
		if cmd.Flags().Changed("config") && cfgFile != "" {
			if err := config.Reload(cfgFile); err != nil {
				return fmt.Errorf("loading config %s: %w", cfgFile, err)
			}
		}

		// Pick up bound CLI flags, which override config settings
		if err := config.Refresh(); err != nil {
			return err
		}

		if cmd.Flags().Changed("debug") || cmd.Flags().Changed("log-format") || cmd.Flags().Changed("config") {
			return logger.InitLogger(logger.LoggerConfig{
				Debug:     config.Instance.Debug,
				LogFormat: config.Instance.LogFormat,
				LogFile:   config.Instance.LogFile,
			})
		}
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		logger.LogError("Command execution failed", err, nil)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is search in standard locations)")
	rootCmd.PersistentFlags().Bool("debug", config.Instance.Debug, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", config.Instance.LogFormat, "Log format: json or human")

	// Bind flags to config keys
	config.BindFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	config.BindFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(extractCmd)
}

// versionCmd shows the application version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", config.AppName, Version)
	},
}
