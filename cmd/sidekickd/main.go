package main

import (
	"fmt"
	"os"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sidekickd:", err)
		os.Exit(1)
	}
}
