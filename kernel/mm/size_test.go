package mm

import "testing"

func TestSizeToPages(t *testing.T) {
	specs := []struct {
		size     Size
		expPages uintptr
	}{
		{0, 0},
		{1 * Byte, 1},
		{4 * Kb, 1},
		{4*Kb + 1, 2},
		{100 * Kb, 25},
		{1023 * Kb, 256},
		{1024 * Kb, 256},
		{2 * Mb, 512},
	}

	for specIndex, spec := range specs {
		if got := spec.size.Pages(); got != spec.expPages {
			t.Errorf("[spec %d] expected Pages(%d bytes) to equal %d; got %d", specIndex, spec.size, spec.expPages, got)
		}
	}
}
