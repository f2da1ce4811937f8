package main

import (
	"fmt"
	"os"

	"github.com/flanksource/arch-unit/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-version" {
		fmt.Printf("javadex version %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}
	cmd.Execute()
}
