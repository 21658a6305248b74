// Command overlay runs the overlay shell runtime: the GPU render loop and the
// WebSocket command bridge for the web layer.
package main

import (
	"fmt"
	"os"

	_ "github.com/gogpu/wgpu/hal/allbackends"
)

// Set by -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := newRootCmd(version, commit)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "overlay:", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
