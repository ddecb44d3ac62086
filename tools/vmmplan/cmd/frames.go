package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/christiankuhl/titanium/kernel/kfmt"
	"github.com/christiankuhl/titanium/kernel/mm"
	"github.com/christiankuhl/titanium/kernel/mm/pmm/allocator"
	"github.com/christiankuhl/titanium/tools/vmmplan/layout"
)

func newFramesCmd() *cobra.Command {
	var (
		count     int
		memoryMap bool
	)

	framesCmd := &cobra.Command{
		Use:   "frames <layout>",
		Short: "Print the frames that the boot frame allocator hands out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := layout.Load(args[0])
			if err != nil {
				return err
			}

			var alloc allocator.RegionFrameAllocator
			alloc.Init(l.VisitMemRegions, l.Reserved())

			out := cmd.OutOrStdout()
			if memoryMap {
				kfmt.SetOutputSink(out)
				alloc.PrintMemoryMap()
				kfmt.SetOutputSink(nil)
			}

			for i := 0; i < count; i++ {
				frame, kerr := alloc.AllocFrame()
				if kerr == mm.ErrOutOfMemory {
					logrus.WithField("allocated", alloc.AllocCount()).Warn("frame allocator exhausted")
					break
				} else if kerr != nil {
					return fmt.Errorf("allocating frame %d: %w", i, kerr)
				}

				fmt.Fprintf(out, "%6d: frame 0x%x (0x%x)\n", i, uintptr(frame), frame.Address())
			}

			logrus.WithField("allocated", alloc.AllocCount()).Debug("done")
			return nil
		},
	}

	framesCmd.Flags().IntVarP(&count, "count", "n", 16, "number of frames to allocate")
	framesCmd.Flags().BoolVar(&memoryMap, "memory-map", false, "print the memory map as logged by the kernel")

	return framesCmd
}
