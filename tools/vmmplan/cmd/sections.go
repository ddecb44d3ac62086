package cmd

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/christiankuhl/titanium/kernel/mm"
	"github.com/christiankuhl/titanium/kernel/mm/vmm"
	"github.com/christiankuhl/titanium/multiboot"
	"github.com/christiankuhl/titanium/tools/vmmplan/layout"
)

func newSectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sections <layout>",
		Short: "Print the page flags used for identity-mapping the kernel sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := layout.Load(args[0])
			if err != nil {
				return err
			}

			var (
				out      = cmd.OutOrStdout()
				flagsBuf bytes.Buffer
				planErr  error
			)

			l.VisitElfSections(func(name string, secFlags multiboot.ElfSectionFlag, address uintptr, size uint64) {
				if planErr != nil {
					return
				}

				if secFlags&multiboot.ElfSectionAllocated == 0 {
					logrus.WithField("section", name).Debug("skipping section that is not allocated")
					return
				}

				if address&(mm.PageSize-1) != 0 {
					planErr = fmt.Errorf("section %s at 0x%x is not page aligned", name, address)
					return
				}

				flagsBuf.Reset()
				vmm.DescribeFlags(&flagsBuf, vmm.FlagsFromElfSection(secFlags))

				first := mm.FrameFromAddress(address)
				last := first
				if size != 0 {
					last = mm.FrameFromAddress(address + uintptr(size) - 1)
				}

				fmt.Fprintf(out, "%-12s frames 0x%x - 0x%x (%d pages) %s\n",
					name, uintptr(first), uintptr(last), uintptr(last-first)+1, flagsBuf.String())
			})

			return planErr
		},
	}
}
