// Package cmd implements the whitelisthub subcommands.
package cmd

import (
	"os"

	"github.com/TheMich157/whitelisthub/internal/i18n"
)

// Printer is the global message printer for the CLI.
var Printer = i18n.NewCLIPrinter(os.LookupEnv)
