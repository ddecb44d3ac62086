package kernel

import "testing"

func TestKernelError(t *testing.T) {
	err := &Error{
		Module:  "vmm",
		Message: "page already mapped",
	}

	if err.Error() != err.Message {
		t.Fatalf("expected err.Error() to return %q; got %q", err.Message, err.Error())
	}

	var asErr error = err
	if asErr.Error() != "page already mapped" {
		t.Fatalf("expected error interface to expose the message; got %q", asErr.Error())
	}
}
