// Command scanctl manages the owned-collection list the scanner reads and
// runs one-off availability scans from a terminal.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
