// Command sattrack answers position, ground track and pass queries from a
// TLE file on the command line.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sattrack: %v\n", err)
		os.Exit(1)
	}
}
