// Package cmd provides the command-line interface for vmmplan.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd returns the vmmplan command tree.
func NewRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "vmmplan",
		Short: "Dry-run the kernel boot memory plan for a boot layout.",
		Long: `vmmplan runs the kernel frame allocator and page flag logic against ` +
			`a boot layout (YAML or TOML) describing the firmware memory map, the ` +
			`reserved extents and the kernel ELF sections.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logrus.SetOutput(cmd.ErrOrStderr())
			logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newFramesCmd(),
		newSectionsCmd(),
		newHeapCmd(),
		newFaultCmd(),
	)

	return rootCmd
}

// Execute runs the command tree and exits with a non-zero status if the
// command fails.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("vmmplan failed")
		os.Exit(1)
	}
}
