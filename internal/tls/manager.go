package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/TheMich157/whitelisthub/internal/clock"
	"github.com/TheMich157/whitelisthub/internal/logging"
)

// Options configures a Manager.
type Options struct {
	CertFile string
	KeyFile  string
	// SelfSigned generates the pair when missing and regenerates it before
	// expiry. Operator supplied certificates are only reloaded.
	SelfSigned bool
	Hosts      []string

	Clock  clock.Clock
	Logger *logging.Logger
}

// Manager serves the current certificate to the HTTPS listener and swaps it
// on Reload without restarting the server.
type Manager struct {
	opts   Options
	logger *logging.Logger

	mu   sync.RWMutex
	cert *tls.Certificate
}

// NewManager loads the certificate, generating it first if allowed.
func NewManager(opts Options) (*Manager, error) {
	if opts.CertFile == "" || opts.KeyFile == "" {
		return nil, fmt.Errorf("tls: cert and key files are required")
	}
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	m := &Manager{opts: opts, logger: opts.Logger.WithComponent("tls")}
	if err := m.Reload(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads the pair from disk. A self-signed certificate that is
// missing or close to expiry is regenerated first.
func (m *Manager) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := m.opts.Clock.Now()

	if m.opts.SelfSigned {
		generate := !fileExists(m.opts.CertFile) || !fileExists(m.opts.KeyFile)
		if !generate {
			existing, err := LoadCertificate(m.opts.CertFile, m.opts.KeyFile)
			generate = err != nil || NeedsRenewal(existing, now, RenewBefore)
		}
		if generate {
			if err := GenerateSelfSigned(m.opts.CertFile, m.opts.KeyFile, m.opts.Hosts, now, SelfSignedValidity); err != nil {
				return fmt.Errorf("failed to generate self-signed certificate: %w", err)
			}
			m.logger.Info("generated self-signed certificate", "cert", m.opts.CertFile)
		}
	}

	cert, err := LoadCertificate(m.opts.CertFile, m.opts.KeyFile)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.cert = cert
	m.mu.Unlock()

	if NeedsRenewal(cert, now, RenewBefore) {
		m.logger.Warn("certificate expires soon", "not_after", cert.Leaf.NotAfter)
	}
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (m *Manager) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cert == nil {
		return nil, fmt.Errorf("no certificate available")
	}
	return m.cert, nil
}

// NotAfter returns the expiry of the loaded certificate.
func (m *Manager) NotAfter() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cert == nil || m.cert.Leaf == nil {
		return time.Time{}
	}
	return m.cert.Leaf.NotAfter
}

// TLSConfig returns a server config backed by the manager.
func (m *Manager) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: m.GetCertificate,
	}
}
