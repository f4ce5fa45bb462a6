package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/TheMich157/whitelisthub/cmd"
	"github.com/TheMich157/whitelisthub/internal/brand"
	"github.com/TheMich157/whitelisthub/internal/client"
)

var printer = cmd.Printer

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	defaultConfig := brand.DefaultConfigPath()

	switch os.Args[1] {
	case "serve":
		fs := pflag.NewFlagSet("serve", pflag.ExitOnError)
		configFile := fs.StringP("config", "c", defaultConfig, "Configuration file")
		logLevel := fs.String("log-level", "", "Override logging.level (debug, info, warn, error)")
		logJSON := fs.Bool("log-json", false, "Write JSON logs")
		fs.Parse(os.Args[2:])

		if err := cmd.RunServe(*configFile, cmd.ServeOptions{LogLevel: *logLevel, LogJSON: *logJSON}); err != nil {
			printer.Fprintf(os.Stderr, "Serve failed: %v\n", err)
			os.Exit(1)
		}

	case "add", "remove":
		name := os.Args[1]
		fs := pflag.NewFlagSet(name, pflag.ExitOnError)
		opts := remoteFlags(fs, defaultConfig)
		fs.Parse(os.Args[2:])
		if fs.NArg() != 1 {
			printer.Fprintf(os.Stderr, "Usage: %s %s [flags] <username>\n", brand.BinaryName, name)
			os.Exit(1)
		}

		ctx, stop := signalContext()
		defer stop()
		var err error
		if name == "add" {
			err = cmd.RunAdd(ctx, os.Stdout, *opts, fs.Arg(0))
		} else {
			err = cmd.RunRemove(ctx, os.Stdout, *opts, fs.Arg(0))
		}
		exitOnError(err)

	case "status":
		fs := pflag.NewFlagSet("status", pflag.ExitOnError)
		opts := remoteFlags(fs, defaultConfig)
		fs.Parse(os.Args[2:])

		ctx, stop := signalContext()
		defer stop()
		exitOnError(cmd.RunStatus(ctx, os.Stdout, *opts))

	case "health":
		fs := pflag.NewFlagSet("health", pflag.ExitOnError)
		opts := remoteFlags(fs, defaultConfig)
		fs.Parse(os.Args[2:])

		ctx, stop := signalContext()
		defer stop()
		exitOnError(cmd.RunHealth(ctx, os.Stdout, *opts))

	case "audit":
		fs := pflag.NewFlagSet("audit", pflag.ExitOnError)
		opts := remoteFlags(fs, defaultConfig)
		action := fs.String("action", "", "Filter by action (e.g. ADD_WHITELIST)")
		playerName := fs.StringP("player", "p", "", "Filter by player")
		since := fs.Duration("since", 0, "Only events newer than this (e.g. 24h)")
		limit := fs.IntP("limit", "n", 50, "Maximum number of events")
		fs.Parse(os.Args[2:])

		q := client.AuditQuery{Action: *action, Player: *playerName, Limit: *limit}
		if *since > 0 {
			q.Since = time.Now().Add(-*since)
		}
		ctx, stop := signalContext()
		defer stop()
		exitOnError(cmd.RunAudit(ctx, os.Stdout, *opts, q))

	case "rcon":
		fs := pflag.NewFlagSet("rcon", pflag.ExitOnError)
		configFile := fs.StringP("config", "c", defaultConfig, "Configuration file")
		raw := fs.Bool("raw", false, "Send the command without escaping")
		fs.Parse(os.Args[2:])

		if fs.NArg() == 0 {
			exitOnError(cmd.RunConsole(context.Background(), *configFile, *raw))
			return
		}
		ctx, stop := signalContext()
		defer stop()
		exitOnError(cmd.RunRCON(ctx, os.Stdout, *configFile, fs.Args(), *raw))

	case "uuid":
		exitOnError(cmd.RunUUID(os.Stdout, os.Args[2:]))

	case "check":
		fs := pflag.NewFlagSet("check", pflag.ExitOnError)
		verbose := fs.BoolP("verbose", "v", false, "Print the effective configuration")
		fs.Parse(os.Args[2:])

		configFile := defaultConfig
		if fs.NArg() > 0 {
			configFile = fs.Arg(0)
		}
		if err := cmd.RunCheck(os.Stdout, configFile, *verbose); err != nil {
			printer.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "config":
		runConfig(defaultConfig, os.Args[2:])

	case "version":
		printer.Printf("%s %s\n", brand.Name, brand.Version)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runConfig(defaultConfig string, args []string) {
	if len(args) == 0 {
		printer.Fprintf(os.Stderr, "Usage: %s config <init|show|hash-key> [flags]\n", brand.BinaryName)
		os.Exit(1)
	}

	switch args[0] {
	case "init":
		fs := pflag.NewFlagSet("config init", pflag.ExitOnError)
		path := fs.StringP("config", "c", defaultConfig, "File to write")
		root := fs.String("server-root", "", "Minecraft server directory")
		force := fs.BoolP("force", "f", false, "Overwrite an existing file")
		fs.Parse(args[1:])
		exitOnError(cmd.RunConfigInit(os.Stdout, *path, *root, *force))

	case "hash-key":
		fs := pflag.NewFlagSet("config hash-key", pflag.ExitOnError)
		fs.Parse(args[1:])
		exitOnError(cmd.RunHashKey(os.Stdout, fs.Arg(0)))

	case "show":
		fs := pflag.NewFlagSet("config show", pflag.ExitOnError)
		path := fs.StringP("config", "c", defaultConfig, "Configuration file")
		fs.Parse(args[1:])
		exitOnError(cmd.RunConfigShow(os.Stdout, *path))

	default:
		printer.Fprintf(os.Stderr, "Unknown config command: %s\n", args[0])
		os.Exit(1)
	}
}

func remoteFlags(fs *pflag.FlagSet, defaultConfig string) *cmd.RemoteOptions {
	opts := &cmd.RemoteOptions{}
	fs.StringVarP(&opts.URL, "url", "u", "", "Daemon URL (default from config api.listen)")
	fs.StringVarP(&opts.APIKey, "api-key", "k", "", "API key (default from config or "+brand.ConfigEnvPrefix+"_API_KEY)")
	fs.StringVarP(&opts.ConfigFile, "config", "c", defaultConfig, "Configuration file")
	fs.StringVar(&opts.CACert, "ca-cert", "", "PEM certificate to trust for https (default config api.tls_cert)")
	fs.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "Request timeout")
	fs.BoolVar(&opts.JSON, "json", false, "Print raw JSON")
	return opts
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func exitOnError(err error) {
	if err != nil {
		printer.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	printer.Printf(`%s - %s

Usage: %s <command> [flags]

Daemon:
  serve            Run the whitelist API, log watcher and control plane bridge

Whitelist (talks to a running daemon):
  add <name>       Whitelist a player
  remove <name>    Remove a player from the whitelist
  status           List whitelisted players
  health           Show daemon health
  audit            Show recent audit events

Local:
  rcon [command]   Run one command over RCON, or open a console
  uuid <name...>   Print offline-mode UUIDs
  check [file]     Validate a configuration file
  config init      Write a default configuration with a new API key
  config show      Print the effective configuration (secrets masked)
  config hash-key  Print a bcrypt hash for api.api_key_hash
  version          Print the version

Run '%s <command> --help' for command flags.
`, brand.Name, brand.Description, brand.BinaryName, brand.BinaryName)
}
