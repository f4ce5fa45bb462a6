package tls

import (
	"context"
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TheMich157/whitelisthub/internal/clock"
	"github.com/TheMich157/whitelisthub/internal/logging"
)

func paths(t *testing.T) (string, string) {
	dir := t.TempDir()
	return filepath.Join(dir, "certs", "api.crt"), filepath.Join(dir, "certs", "api.key")
}

func TestGenerateSelfSigned(t *testing.T) {
	certFile, keyFile := paths(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := GenerateSelfSigned(certFile, keyFile, []string{"mc.example.com", "192.0.2.10"}, now, 24*time.Hour); err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}

	info, err := os.Stat(keyFile)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key perm = %v, want 0600", info.Mode().Perm())
	}

	cert, err := LoadCertificate(certFile, keyFile)
	if err != nil {
		t.Fatalf("LoadCertificate() error = %v", err)
	}
	if err := cert.Leaf.VerifyHostname("mc.example.com"); err != nil {
		t.Errorf("VerifyHostname(mc.example.com) = %v", err)
	}
	if err := cert.Leaf.VerifyHostname("192.0.2.10"); err != nil {
		t.Errorf("VerifyHostname(192.0.2.10) = %v", err)
	}
	if err := cert.Leaf.VerifyHostname("localhost"); err != nil {
		t.Errorf("VerifyHostname(localhost) = %v", err)
	}
	if !cert.Leaf.NotAfter.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("NotAfter = %v", cert.Leaf.NotAfter)
	}
}

func TestLoadCertificate_InvalidPath(t *testing.T) {
	if _, err := LoadCertificate("/nonexistent/cert.pem", "/nonexistent/key.pem"); err == nil {
		t.Error("expected error for missing files")
	}
}

func TestNeedsRenewal(t *testing.T) {
	certFile, keyFile := paths(t)
	now := time.Now()
	if err := GenerateSelfSigned(certFile, keyFile, nil, now, 10*24*time.Hour); err != nil {
		t.Fatal(err)
	}
	cert, err := LoadCertificate(certFile, keyFile)
	if err != nil {
		t.Fatal(err)
	}
	if !NeedsRenewal(cert, now, RenewBefore) {
		t.Error("10 day certificate should need renewal")
	}
	if NeedsRenewal(cert, now, 24*time.Hour) {
		t.Error("should not need renewal with a 1 day window")
	}
	if !NeedsRenewal(nil, now, RenewBefore) {
		t.Error("nil certificate should need renewal")
	}
}

func TestNewManager_GeneratesSelfSigned(t *testing.T) {
	certFile, keyFile := paths(t)
	m, err := NewManager(Options{CertFile: certFile, KeyFile: keyFile, SelfSigned: true, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	cert, err := m.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil || cert == nil {
		t.Fatalf("GetCertificate() = %v, %v", cert, err)
	}
	if cfg := m.TLSConfig(); cfg.MinVersion != tls.VersionTLS12 || cfg.GetCertificate == nil {
		t.Errorf("TLSConfig() = %+v", cfg)
	}
}

func TestNewManager_MissingManualCertificate(t *testing.T) {
	certFile, keyFile := paths(t)
	if _, err := NewManager(Options{CertFile: certFile, KeyFile: keyFile, Logger: logging.Discard()}); err == nil {
		t.Error("expected error without self_signed")
	}
	if _, err := NewManager(Options{SelfSigned: true}); err == nil {
		t.Error("expected error without paths")
	}
}

func TestReload_RenewsSelfSigned(t *testing.T) {
	certFile, keyFile := paths(t)
	clk := clock.NewMockClock(time.Now())
	m, err := NewManager(Options{CertFile: certFile, KeyFile: keyFile, SelfSigned: true, Clock: clk, Logger: logging.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	first := m.NotAfter()

	// Far from expiry: the same certificate stays.
	clk.Advance(24 * time.Hour)
	if err := m.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !m.NotAfter().Equal(first) {
		t.Errorf("certificate regenerated too early: %v -> %v", first, m.NotAfter())
	}

	clk.Advance(SelfSignedValidity - RenewBefore)
	if err := m.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !m.NotAfter().After(first) {
		t.Errorf("certificate not renewed: %v", m.NotAfter())
	}
}

func TestReload_KeepsManualCertificate(t *testing.T) {
	certFile, keyFile := paths(t)
	now := time.Now()
	if err := GenerateSelfSigned(certFile, keyFile, nil, now, 5*24*time.Hour); err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(Options{CertFile: certFile, KeyFile: keyFile, Logger: logging.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	want := m.NotAfter()
	if err := m.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !m.NotAfter().Equal(want) {
		t.Error("operator certificate was replaced")
	}
}
