// Command vmmplan performs a hosted dry-run of the kernel boot memory plan.
// It feeds a boot layout file to the kernel frame allocator and page flag
// logic and prints what the kernel would do with it.
package main

import "github.com/christiankuhl/titanium/tools/vmmplan/cmd"

func main() {
	cmd.Execute()
}
