package console

import (
	"github.com/christiankuhl/titanium/device"
	"github.com/christiankuhl/titanium/multiboot"
)

const (
	legacyTextBufferAddr = uintptr(0xb8000)
	legacyTextColumns    = 80
	legacyTextRows       = 25
)

var (
	getFramebufferInfoFn = multiboot.GetFramebufferInfo

	// vgaConsole is the single text console instance. It is a global so
	// that probing works before the kernel heap is available.
	vgaConsole VgaTextConsole

	// ProbeFuncs lists the console probe functions in the order they
	// should be tried.
	ProbeFuncs = []device.ProbeFn{probeForVgaTextConsole}
)

// probeForVgaTextConsole returns the text console described by the
// framebuffer tag of the multiboot info block. If the bootloader did not
// report a framebuffer, the legacy 80x25 text buffer is assumed. Graphical
// framebuffers are not supported.
func probeForVgaTextConsole() device.Driver {
	fbInfo, ok := getFramebufferInfoFn()
	switch {
	case !ok:
		vgaConsole.Init(legacyTextColumns, legacyTextRows, legacyTextBufferAddr)
	case fbInfo.Type == multiboot.FramebufferTypeEGA:
		vgaConsole.Init(fbInfo.Width, fbInfo.Height, uintptr(fbInfo.PhysAddr))
	default:
		return nil
	}

	return &vgaConsole
}
