// Package console provides the text console that the kernel attaches to
// kfmt once the memory subsystem is up.
package console

import (
	"io"
	"unsafe"

	"github.com/christiankuhl/titanium/kernel"
	"github.com/christiankuhl/titanium/kernel/kfmt"
	"github.com/christiankuhl/titanium/kernel/mm/vmm"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	allocateIdentityMappedFn = vmm.AllocateIdentityMapped
	framebufferFn            = func(addr uintptr, cells int) []uint16 {
		return unsafe.Slice((*uint16)(unsafe.Pointer(addr)), cells)
	}

	errNoFramebuffer = &kernel.Error{Module: "vga_text_console", Message: "framebuffer is not accessible"}
)

// VgaTextConsole implements an EGA-compatible text console using VGA mode
// 0x3. Each character in the framebuffer is represented using two bytes, a
// byte for the character ASCII code and a byte that encodes the foreground
// and background colors (4 bits for each).
//
// The console doubles as a simple terminal: Write places characters at the
// cursor position and interprets \n, \r and \t, scrolling the screen up when
// the cursor moves past the last line.
type VgaTextConsole struct {
	width  uint32
	height uint32

	fbPhysAddr uintptr
	fb         []uint16

	defaultFg uint8
	defaultBg uint8
	clearChar uint16

	tabWidth uint32
	cursorX  uint32
	cursorY  uint32
}

// Init configures the console for a framebuffer with the supplied
// dimensions located at fbPhysAddr. The framebuffer is not accessed until
// DriverInit has mapped it.
func (cons *VgaTextConsole) Init(columns, rows uint32, fbPhysAddr uintptr) {
	*cons = VgaTextConsole{
		width:      columns,
		height:     rows,
		fbPhysAddr: fbPhysAddr,
		clearChar:  uint16(' '),
		// light gray text on black background
		defaultFg: 7,
		defaultBg: 0,
		tabWidth:  4,
		cursorX:   1,
		cursorY:   1,
	}
}

// Dimensions returns the console width and height in characters.
func (cons *VgaTextConsole) Dimensions() (uint32, uint32) {
	return cons.width, cons.height
}

// DefaultColors returns the default foreground and background colors
// used by this console.
func (cons *VgaTextConsole) DefaultColors() (fg uint8, bg uint8) {
	return cons.defaultFg, cons.defaultBg
}

// Fill sets the contents of the specified rectangular region to the requested
// color. Both x and y coordinates are 1-based.
func (cons *VgaTextConsole) Fill(x, y, width, height uint32, fg, bg uint8) {
	var (
		clr                  = cons.cell(cons.clearChar, fg, bg)
		rowOffset, colOffset uint32
	)

	// clip rectangle
	if x == 0 {
		x = 1
	} else if x >= cons.width {
		x = cons.width
	}

	if y == 0 {
		y = 1
	} else if y >= cons.height {
		y = cons.height
	}

	if x+width-1 > cons.width {
		width = cons.width - x + 1
	}

	if y+height-1 > cons.height {
		height = cons.height - y + 1
	}

	rowOffset = ((y - 1) * cons.width) + (x - 1)
	for ; height > 0; height, rowOffset = height-1, rowOffset+cons.width {
		for colOffset = rowOffset; colOffset < rowOffset+width; colOffset++ {
			cons.fb[colOffset] = clr
		}
	}
}

// Clear fills the screen with the default colors and moves the cursor to
// the top-left corner.
func (cons *VgaTextConsole) Clear() {
	cons.Fill(1, 1, cons.width, cons.height, cons.defaultFg, cons.defaultBg)
	cons.cursorX, cons.cursorY = 1, 1
}

// ScrollUp moves the console contents up by the requested number of lines
// and clears the lines that become free at the bottom.
func (cons *VgaTextConsole) ScrollUp(lines uint32) {
	if lines == 0 || lines > cons.height {
		return
	}

	offset := lines * cons.width
	for i := uint32(0); i < (cons.height-lines)*cons.width; i++ {
		cons.fb[i] = cons.fb[i+offset]
	}

	cons.Fill(1, cons.height-lines+1, cons.width, lines, cons.defaultFg, cons.defaultBg)
}

// WriteAt writes a char to the specified location. If fg or bg exceed the
// supported colors, they are set to their default value. Both x and y
// coordinates are 1-based.
func (cons *VgaTextConsole) WriteAt(ch byte, fg, bg uint8, x, y uint32) {
	if x < 1 || x > cons.width || y < 1 || y > cons.height {
		return
	}

	cons.fb[((y-1)*cons.width)+(x-1)] = cons.cell(uint16(ch), fg, bg)
}

func (cons *VgaTextConsole) cell(ch uint16, fg, bg uint8) uint16 {
	if fg > 15 {
		fg = cons.defaultFg
	}
	if bg > 15 {
		bg = cons.defaultBg
	}

	return (((uint16(bg) << 4) | uint16(fg)) << 8) | ch
}

// CursorPosition returns the current cursor position.
func (cons *VgaTextConsole) CursorPosition() (uint32, uint32) {
	return cons.cursorX, cons.cursorY
}

// Write implements io.Writer. The console must be initialized via
// DriverInit before it can be written to.
func (cons *VgaTextConsole) Write(data []byte) (int, error) {
	if cons.fb == nil {
		return 0, io.ErrClosedPipe
	}

	for _, b := range data {
		switch b {
		case '\r':
			cons.cursorX = 1
		case '\n':
			cons.lf()
		case '\t':
			for i := uint32(0); i < cons.tabWidth; i++ {
				cons.put(' ')
			}
		default:
			cons.put(b)
		}
	}

	return len(data), nil
}

func (cons *VgaTextConsole) put(b byte) {
	cons.WriteAt(b, cons.defaultFg, cons.defaultBg, cons.cursorX, cons.cursorY)
	cons.cursorX++
	if cons.cursorX > cons.width {
		cons.lf()
	}
}

// lf moves the cursor to the start of the next line, scrolling the console
// if the cursor is already on the last line.
func (cons *VgaTextConsole) lf() {
	cons.cursorX = 1
	if cons.cursorY < cons.height {
		cons.cursorY++
		return
	}

	cons.ScrollUp(1)
}

// DriverName returns the name of this driver.
func (cons *VgaTextConsole) DriverName() string {
	return "vga_text_console"
}

// DriverVersion returns the version of this driver.
func (cons *VgaTextConsole) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit identity-maps the framebuffer and clears the screen.
func (cons *VgaTextConsole) DriverInit(w io.Writer) *kernel.Error {
	fbSize := uintptr(cons.width * cons.height * 2)
	fbAddr := allocateIdentityMappedFn(cons.fbPhysAddr, fbSize, vmm.FlagPresent|vmm.FlagRW|vmm.FlagNoExecute)
	if fbAddr == 0 {
		return errNoFramebuffer
	}

	cons.fb = framebufferFn(fbAddr, int(fbSize>>1))
	cons.Clear()

	kfmt.Fprintf(w, "mapped framebuffer to 0x%x\n", fbAddr)
	return nil
}
