package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/christiankuhl/titanium/kernel/mm"
	"github.com/christiankuhl/titanium/kernel/mm/vmm"
)

func newHeapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heap",
		Short: "Print the virtual range reserved for the kernel heap",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			first := mm.PageFromAddress(vmm.HeapStart)

			fmt.Fprintf(out, "heap: 0x%x - 0x%x\n", vmm.HeapStart, vmm.HeapStart+vmm.HeapSize-1)
			fmt.Fprintf(out, "pages: %d\n", mm.Size(vmm.HeapSize).Pages())
			fmt.Fprintf(out, "first page table indices: P4=%d P3=%d P2=%d P1=%d\n",
				first.P4Index(), first.P3Index(), first.P2Index(), first.P1Index())
		},
	}
}
