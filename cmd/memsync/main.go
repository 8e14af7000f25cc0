// Package main provides the entry point for the memsync CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/memsync/cmd/memsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
