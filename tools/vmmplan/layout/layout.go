// Package layout loads boot memory layouts for the vmmplan tool. A layout
// describes what the bootloader would report to the kernel: the firmware
// memory map, the reserved extents and the ELF sections of the kernel image.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/christiankuhl/titanium/kernel/mm/pmm/allocator"
	"github.com/christiankuhl/titanium/multiboot"
)

var (
	// ErrUnsupportedFormat is returned by Load for files whose extension
	// is neither .yaml, .yml nor .toml.
	ErrUnsupportedFormat = errors.New("unsupported layout format")

	memTypes = map[string]multiboot.MemoryEntryType{
		"available": multiboot.MemAvailable,
		"reserved":  multiboot.MemReserved,
		"acpi":      multiboot.MemAcpiReclaimable,
		"nvs":       multiboot.MemNvs,
	}

	sectionFlags = map[string]multiboot.ElfSectionFlag{
		"write": multiboot.ElfSectionWritable,
		"alloc": multiboot.ElfSectionAllocated,
		"exec":  multiboot.ElfSectionExecutable,
	}
)

// Region is an entry of the firmware memory map.
type Region struct {
	Base   uint64 `yaml:"base" toml:"base"`
	Length uint64 `yaml:"length" toml:"length"`
	Type   string `yaml:"type" toml:"type"`
}

// Extent is a physical address range [Start, End).
type Extent struct {
	Start uint64 `yaml:"start" toml:"start"`
	End   uint64 `yaml:"end" toml:"end"`
}

// Section is an ELF section of the kernel image.
type Section struct {
	Name    string   `yaml:"name" toml:"name"`
	Address uint64   `yaml:"address" toml:"address"`
	Size    uint64   `yaml:"size" toml:"size"`
	Flags   []string `yaml:"flags" toml:"flags"`
}

// Layout is a boot memory layout.
type Layout struct {
	Memory    []Region  `yaml:"memory" toml:"memory"`
	Kernel    Extent    `yaml:"kernel" toml:"kernel"`
	Multiboot Extent    `yaml:"multiboot" toml:"multiboot"`
	StrTab    Extent    `yaml:"strtab" toml:"strtab"`
	Sections  []Section `yaml:"sections" toml:"sections"`
}

// Load reads and validates the layout stored at path. The file format is
// selected by the file extension.
func Load(path string) (*Layout, error) {
	var l Layout

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&l); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case ".toml":
		md, err := toml.DecodeFile(path, &l)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) != 0 {
			return nil, fmt.Errorf("%s: unknown keys %v", path, undecoded)
		}
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &l, nil
}

// Validate checks the memory region types, the section flags and the
// reserved extents.
func (l *Layout) Validate() error {
	if len(l.Memory) == 0 {
		return errors.New("memory map is empty")
	}

	for i, region := range l.Memory {
		if _, ok := memTypes[region.Type]; !ok {
			return fmt.Errorf("memory region %d: unknown type %q", i, region.Type)
		}
	}

	for name, extent := range map[string]Extent{"kernel": l.Kernel, "multiboot": l.Multiboot, "strtab": l.StrTab} {
		if extent.End < extent.Start {
			return fmt.Errorf("%s extent ends before it starts", name)
		}
	}

	for _, sec := range l.Sections {
		for _, flag := range sec.Flags {
			if _, ok := sectionFlags[flag]; !ok {
				return fmt.Errorf("section %s: unknown flag %q", sec.Name, flag)
			}
		}
	}

	return nil
}

// VisitMemRegions invokes visitor for each memory map entry until it
// returns false. Its signature matches multiboot.VisitMemRegions.
func (l *Layout) VisitMemRegions(visitor multiboot.MemRegionVisitor) {
	for _, region := range l.Memory {
		entry := multiboot.MemoryMapEntry{
			PhysAddress: region.Base,
			Length:      region.Length,
			Type:        memTypes[region.Type],
		}
		if !visitor(entry) {
			return
		}
	}
}

// VisitElfSections invokes visitor for each kernel section. Its signature
// matches multiboot.VisitElfSections.
func (l *Layout) VisitElfSections(visitor multiboot.ElfSectionVisitor) {
	for _, sec := range l.Sections {
		visitor(sec.Name, sec.ElfFlags(), uintptr(sec.Address), sec.Size)
	}
}

// ElfFlags returns the section flags in their ELF encoding.
func (s Section) ElfFlags() multiboot.ElfSectionFlag {
	var flags multiboot.ElfSectionFlag
	for _, flag := range s.Flags {
		flags |= sectionFlags[flag]
	}
	return flags
}

// Reserved returns the extents that the frame allocator must skip.
func (l *Layout) Reserved() allocator.ReservedRegions {
	return allocator.ReservedRegions{
		KernelStart:    uintptr(l.Kernel.Start),
		KernelEnd:      uintptr(l.Kernel.End),
		MultibootStart: uintptr(l.Multiboot.Start),
		MultibootEnd:   uintptr(l.Multiboot.End),
		StrTabStart:    uintptr(l.StrTab.Start),
		StrTabEnd:      uintptr(l.StrTab.End),
	}
}
