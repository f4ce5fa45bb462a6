package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/TheMich157/whitelisthub/internal/brand"
	"github.com/TheMich157/whitelisthub/internal/rcon"
	"github.com/TheMich157/whitelisthub/internal/whitelist"
)

// RunConsole opens an interactive RCON prompt until q, EOF or Ctrl-C on an
// empty line.
func RunConsole(ctx context.Context, configFile string, raw bool) error {
	c, err := rconFromConfig(configFile)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyFile(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "q",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	Printer.Fprintf(rl.Stdout(), "Connected to %s. Type 'q' or press Ctrl-D to disconnect.\n", c.Address())
	return runConsole(ctx, rl, rl.Stdout(), c, raw)
}

// historyFile is empty, disabling history, when there is no cache dir.
func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, brand.LowerName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return ""
	}
	return filepath.Join(dir, "rcon_history")
}

type lineReader interface {
	Readline() (string, error)
}

func runConsole(ctx context.Context, in lineReader, out io.Writer, exec whitelist.Executor, raw bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := in.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		command := strings.TrimSpace(line)
		if command == "" {
			continue
		}
		if strings.EqualFold(command, "q") {
			return nil
		}
		if !raw {
			command = rcon.EscapeCommand(command)
		}

		resp, err := exec.Execute(ctx, command)
		if err != nil {
			Printer.Fprintf(out, "Error: %v\n", err)
			continue
		}
		if resp = rcon.StripColors(resp); resp != "" {
			Printer.Fprintln(out, resp)
		}
		// The server closes the console after stop.
		if strings.EqualFold(command, "stop") {
			return nil
		}
	}
}
