package cmd

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/TheMich157/whitelisthub/internal/client"
	"github.com/TheMich157/whitelisthub/internal/config"
)

// RemoteOptions locate a running daemon. Empty fields are filled from the
// environment and then from the config file.
type RemoteOptions struct {
	URL        string
	APIKey     string
	ConfigFile string
	// CACert is a PEM file trusted for https URLs. It defaults to the
	// daemon's own api.tls_cert when the URL comes from the config.
	CACert  string
	Timeout time.Duration
	JSON    bool
}

func (o RemoteOptions) client() (*client.HTTPClient, error) {
	url, key, caFile := o.URL, o.APIKey, o.CACert
	if url == "" {
		url = os.Getenv(config.EnvKey("URL"))
	}
	if key == "" {
		key = os.Getenv(config.EnvKey("API_KEY"))
	}

	if url == "" || key == "" {
		cfg := config.Default()
		if o.ConfigFile != "" {
			if loaded, err := config.LoadFile(o.ConfigFile); err == nil {
				cfg = loaded
			} else if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
		if url == "" {
			url = listenURL(cfg.API.Listen, cfg.API.TLSEnabled())
			if caFile == "" && cfg.API.TLSEnabled() {
				caFile = cfg.API.TLSCert
			}
		}
		if key == "" {
			key = cfg.API.APIKey
		}
	}
	if key == "" {
		return nil, fmt.Errorf("no API key: pass --api-key or set %s", config.EnvKey("API_KEY"))
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := []client.ClientOption{client.WithAPIKey(key)}
	if caFile != "" {
		hc, err := pinnedClient(caFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithHTTPClient(hc))
	}
	opts = append(opts, client.WithTimeout(timeout))
	return client.NewHTTPClient(url, opts...), nil
}

// pinnedClient trusts only the certificates in caFile.
func pinnedClient(caFile string) (*http.Client, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		},
	}, nil
}

// listenURL turns a listen address into a URL a local client can dial.
func listenURL(listen string, https bool) string {
	scheme := "http://"
	if https {
		scheme = "https://"
	}
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return scheme + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return scheme + net.JoinHostPort(host, port)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RunAdd whitelists username through the daemon.
func RunAdd(ctx context.Context, out io.Writer, opts RemoteOptions, username string) error {
	c, err := opts.client()
	if err != nil {
		return err
	}
	res, err := c.Add(ctx, username)
	if err != nil {
		return err
	}
	if opts.JSON {
		return writeJSON(out, res)
	}
	Printer.Fprintf(out, "%s\n", res.Message)
	if res.UUID != "" {
		Printer.Fprintf(out, "UUID: %s\n", res.UUID)
	}
	return nil
}

// RunRemove removes username through the daemon.
func RunRemove(ctx context.Context, out io.Writer, opts RemoteOptions, username string) error {
	c, err := opts.client()
	if err != nil {
		return err
	}
	res, err := c.Remove(ctx, username)
	if err != nil {
		return err
	}
	if opts.JSON {
		return writeJSON(out, res)
	}
	Printer.Fprintf(out, "%s\n", res.Message)
	return nil
}

// RunStatus prints the whitelist.
func RunStatus(ctx context.Context, out io.Writer, opts RemoteOptions) error {
	c, err := opts.client()
	if err != nil {
		return err
	}
	res, err := c.Status(ctx)
	if err != nil {
		return err
	}
	if opts.JSON {
		return writeJSON(out, res)
	}
	Printer.Fprintf(out, "Mode: %s\n", res.Mode)
	Printer.Fprintf(out, "Whitelisted players: %d\n", res.Count)
	for _, u := range res.Users {
		Printer.Fprintf(out, "  %s\n", u)
	}
	return nil
}

// RunHealth prints daemon health. It returns an error when the daemon is
// unhealthy so scripts can rely on the exit code.
func RunHealth(ctx context.Context, out io.Writer, opts RemoteOptions) error {
	c, err := opts.client()
	if err != nil {
		return err
	}
	res, err := c.Health(ctx)
	if res == nil {
		return err
	}
	if opts.JSON {
		if jerr := writeJSON(out, res); jerr != nil {
			return jerr
		}
		return err
	}

	Printer.Fprintf(out, "Status:  %s\n", res.Status)
	Printer.Fprintf(out, "Version: %s\n", res.Version)
	Printer.Fprintf(out, "Backend: %s (%s mode)\n", res.Backend, res.Mode)
	if res.Bridge != "" {
		Printer.Fprintf(out, "Bridge:  %s\n", res.Bridge)
	}

	names := make([]string, 0, len(res.Checks))
	for name := range res.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "\nCHECK\tSTATUS\tMESSAGE")
		for _, name := range names {
			chk := res.Checks[name]
			fmt.Fprintf(tw, "%s\t%s\t%s\n", name, chk.Status, chk.Message)
		}
		if ferr := tw.Flush(); ferr != nil {
			return ferr
		}
	}

	if len(res.Tasks) > 0 {
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "\nTASK\tLAST RUN\tRUNS\tERRORS\tLAST ERROR")
		for _, task := range res.Tasks {
			last := "never"
			if !task.LastRun.IsZero() {
				last = task.LastRun.Local().Format(time.DateTime)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", task.ID, last, task.RunCount, task.ErrorCount, task.LastError)
		}
		if ferr := tw.Flush(); ferr != nil {
			return ferr
		}
	}
	return err
}

// RunAudit prints recent audit events.
func RunAudit(ctx context.Context, out io.Writer, opts RemoteOptions, q client.AuditQuery) error {
	c, err := opts.client()
	if err != nil {
		return err
	}
	evts, err := c.Audit(ctx, q)
	if err != nil {
		return err
	}
	if opts.JSON {
		return writeJSON(out, evts)
	}
	if len(evts) == 0 {
		Printer.Fprintln(out, "No audit events.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tPLAYER\tSOURCE\tIP\tOK")
	for _, e := range evts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n",
			e.Timestamp.Local().Format(time.DateTime), e.Action, e.Player, e.Source, e.IP, e.Success)
	}
	return tw.Flush()
}
