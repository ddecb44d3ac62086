package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/christiankuhl/titanium/kernel/mm/vmm"
)

func newFaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fault <error-code>",
		Short: "Decode a page fault error code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := strconv.ParseUint(args[0], 0, 64)
			if err != nil {
				return fmt.Errorf("invalid error code: %w", err)
			}

			out := cmd.OutOrStdout()
			vmm.PageFaultErrorCode(code).DescribeTo(out)
			fmt.Fprintln(out)
			return nil
		},
	}
}
