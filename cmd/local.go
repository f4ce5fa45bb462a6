package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheMich157/whitelisthub/internal/auth"
	"github.com/TheMich157/whitelisthub/internal/brand"
	"github.com/TheMich157/whitelisthub/internal/config"
	"github.com/TheMich157/whitelisthub/internal/player"
	"github.com/TheMich157/whitelisthub/internal/rcon"
)

// RunRCON sends one command to the server's remote console. The command is
// passed through rcon.EscapeCommand unless raw is set.
func RunRCON(ctx context.Context, out io.Writer, configFile string, args []string, raw bool) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s rcon <command...>", brand.BinaryName)
	}
	c, err := rconFromConfig(configFile)
	if err != nil {
		return err
	}

	command := strings.Join(args, " ")
	if !raw {
		command = rcon.EscapeCommand(command)
	}
	resp, err := c.Execute(ctx, command)
	if err != nil {
		return err
	}
	if resp = rcon.StripColors(resp); resp != "" {
		Printer.Fprintln(out, resp)
	}
	return nil
}

// rconFromConfig builds a client from the file plus environment overrides.
func rconFromConfig(configFile string) (*rcon.Client, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if !cfg.RCON.Enabled {
		return nil, errors.New("rcon is not enabled in the configuration")
	}
	return rcon.NewClient(rcon.Config{
		Host:     cfg.RCON.Host,
		Port:     cfg.RCON.Port,
		Password: cfg.RCON.Password,
		Timeout:  cfg.RCON.TimeoutDuration(),
	}, nil), nil
}

// RunUUID prints the offline-mode UUID of each name.
func RunUUID(out io.Writer, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("usage: %s uuid <username...>", brand.BinaryName)
	}
	var bad []string
	for _, raw := range names {
		name := player.SanitizeUsername(raw)
		if !player.ValidUsername(name) {
			bad = append(bad, raw)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", name, player.OfflineUUID(name))
	}
	if len(bad) > 0 {
		return fmt.Errorf("invalid username(s): %s", strings.Join(bad, ", "))
	}
	return nil
}

// RunCheck validates the configuration file.
func RunCheck(out io.Writer, configFile string, verbose bool) error {
	if configFile == "" {
		return fmt.Errorf("usage: %s check [-v] <config-file>", brand.BinaryName)
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	Printer.Fprintf(out, "Configuration valid!\n")
	Printer.Fprintf(out, "Schema Version: %s\n", cfg.SchemaVersion)
	Printer.Fprintf(out, "Backend: %s (%s mode)\n", cfg.Backend, cfg.Mode)
	Printer.Fprintf(out, "Whitelist: %s\n", cfg.WhitelistPath())

	if verbose {
		Printer.Fprintln(out)
		if _, err := out.Write(config.Marshal(cfg.Redacted())); err != nil {
			return err
		}
	}
	return nil
}

// RunConfigShow prints the effective configuration with secrets masked.
func RunConfigShow(out io.Writer, configFile string) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return err
	}
	_, err = out.Write(config.Marshal(cfg.Redacted()))
	return err
}

// RunConfigInit writes a default configuration with a freshly generated API
// key. An existing file is only replaced when force is set.
func RunConfigInit(out io.Writer, path, serverRoot string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	key, err := generateAPIKey()
	if err != nil {
		return err
	}
	cfg := config.Default()
	cfg.API.APIKey = key
	if serverRoot != "" {
		cfg.ServerRoot = serverRoot
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := config.WriteFile(path, cfg); err != nil {
		return err
	}

	Printer.Fprintf(out, "Wrote %s\n", path)
	Printer.Fprintf(out, "API key: %s\n", key)
	return nil
}

// RunHashKey prints the bcrypt hash of key for api.api_key_hash. With an
// empty key a new one is generated and printed alongside its hash.
func RunHashKey(out io.Writer, key string) error {
	if key == "" {
		var err error
		if key, err = generateAPIKey(); err != nil {
			return err
		}
		Printer.Fprintf(out, "API key: %s\n", key)
	} else if err := auth.CheckKeyStrength(key); err != nil {
		Printer.Fprintf(out, "Warning: %v\n", err)
	}
	h, err := auth.HashKey(key)
	if err != nil {
		return err
	}
	Printer.Fprintf(out, "api_key_hash = %q\n", h)
	return nil
}

func generateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return "wh_" + hex.EncodeToString(b), nil
}
