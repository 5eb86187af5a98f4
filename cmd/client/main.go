// Package main is the consultdesk member command line.
package main

import (
	"cmp"
	"fmt"
	"os"

	"github.com/atinyakov/consultdesk/internal/cli"
)

var (
	version   string
	buildDate string
)

func main() {
	root := cli.NewRootCmd(os.Stdin, os.Stdout)
	root.Version = fmt.Sprintf("%s (built %s)", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
