package whitelist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/TheMich157/whitelisthub/internal/logging"
	"github.com/TheMich157/whitelisthub/internal/player"
)

// FileOptions configures a FileStore.
type FileOptions struct {
	ServerRoot    string
	WhitelistFile string
	Mode          Mode

	// Mirror, when set, receives best-effort whitelist commands after each write
	// so a running server picks up the change without a reload.
	Mirror Executor
	Logger *logging.Logger
}

// FileStore edits whitelist.json in place.
//
// Add and Remove hold mu for the whole read-modify-write cycle. List takes no lock.
// All file access goes through an os.Root opened on the server root, so symlinks
// inside the tree cannot redirect writes outside it.
type FileStore struct {
	root   string
	rel    string
	mode   Mode
	mirror Executor
	logger *logging.Logger

	mu sync.Mutex
}

// NewFileStore resolves the whitelist path against the server root.
// A path that normalizes to somewhere outside the root fails with ErrPathEscape.
func NewFileStore(opts FileOptions) (*FileStore, error) {
	rel, err := resolvePath(opts.ServerRoot, opts.WhitelistFile)
	if err != nil {
		return nil, err
	}
	if opts.Mode == "" {
		opts.Mode = ModeOffline
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &FileStore{
		root:   filepath.Clean(opts.ServerRoot),
		rel:    rel,
		mode:   opts.Mode,
		mirror: opts.Mirror,
		logger: logger.WithComponent("whitelist-file"),
	}, nil
}

// resolvePath returns the whitelist path relative to root.
// Relative names are joined to root; absolute names are kept as given.
func resolvePath(root, name string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", fmt.Errorf("%w: server root is empty", ErrPathEscape)
	}
	if name == "" {
		name = "whitelist.json"
	}
	cleanRoot, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPathEscape, err)
	}

	target := name
	if !filepath.IsAbs(target) {
		target = filepath.Join(cleanRoot, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(cleanRoot, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", ErrPathEscape
	}
	return rel, nil
}

// Backend implements Store.
func (s *FileStore) Backend() string { return BackendFile }

// Add appends username with its offline-mode UUID.
func (s *FileStore) Add(ctx context.Context, username string) (*Entry, error) {
	if !player.ValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	name := player.SanitizeUsername(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := s.openRoot()
	if err != nil {
		return nil, err
	}
	defer root.Close()

	entries, raw, err := s.read(root)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name, name) {
			return nil, ErrAlreadyWhitelisted
		}
	}

	// The offline derivation is used in online mode too.
	entry := Entry{UUID: player.OfflineUUID(name).String(), Name: name}
	entries = append(entries, entry)
	if err := s.write(root, raw, entries); err != nil {
		return nil, err
	}
	s.logger.Info("player whitelisted", "player", name, "uuid", entry.UUID)

	s.mirrorCommand(ctx, "whitelist add "+name)
	return &entry, nil
}

// Remove drops every entry whose name matches username case-insensitively.
func (s *FileStore) Remove(ctx context.Context, username string) error {
	if !player.ValidUsername(username) {
		return ErrInvalidUsername
	}
	name := player.SanitizeUsername(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := s.openRoot()
	if err != nil {
		return err
	}
	defer root.Close()

	entries, raw, err := s.read(root)
	if err != nil {
		return err
	}
	kept := entries[:0:0]
	for _, e := range entries {
		if !strings.EqualFold(e.Name, name) {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return ErrNotFound
	}
	if err := s.write(root, raw, kept); err != nil {
		return err
	}
	s.logger.Info("player removed from whitelist", "player", name, "removed", len(entries)-len(kept))

	s.mirrorCommand(ctx, "whitelist remove "+name)
	return nil
}

// List reads the current file without locking.
func (s *FileStore) List(_ context.Context) (*Status, error) {
	root, err := s.openRoot()
	if err != nil {
		return nil, err
	}
	defer root.Close()

	entries, _, err := s.read(root)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name != "" {
			users = append(users, e.Name)
		}
	}
	return &Status{Count: len(entries), Users: users, Mode: s.mode}, nil
}

func (s *FileStore) openRoot() (*os.Root, error) {
	root, err := os.OpenRoot(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: open server root: %w", ErrIO, err)
	}
	return root, nil
}

func (s *FileStore) read(root *os.Root) ([]Entry, []byte, error) {
	data, err := root.ReadFile(s.rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("whitelist file not found", "path", s.rel)
			return nil, nil, fmt.Errorf("%w: whitelist file not found", ErrIO)
		}
		return nil, nil, fmt.Errorf("%w: read whitelist: %w", ErrIO, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Entry{}, data, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, fmt.Errorf("%w: parse whitelist: %w", ErrIO, err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, data, nil
}

// write replaces the file atomically via a temp file and rename.
func (s *FileStore) write(root *os.Root, previous []byte, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode whitelist: %w", ErrIO, err)
	}

	if dir := filepath.Dir(s.rel); dir != "." {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create directory: %w", ErrIO, err)
		}
	}

	tmp := s.rel + ".tmp"
	if err := root.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write whitelist: %w", ErrIO, err)
	}
	if err := root.Rename(tmp, s.rel); err != nil {
		_ = root.Remove(tmp)
		return fmt.Errorf("%w: replace whitelist: %w", ErrIO, err)
	}

	if s.logger.Enabled(context.Background(), logging.LevelDebug) {
		diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(previous)),
			B:        difflib.SplitLines(string(data)),
			FromFile: s.rel,
			ToFile:   s.rel,
			Context:  1,
		})
		s.logger.Debug("whitelist rewritten", "diff", diff)
	}
	return nil
}

func (s *FileStore) mirrorCommand(ctx context.Context, command string) {
	if s.mirror == nil {
		return
	}
	if _, err := s.mirror.Execute(ctx, command); err != nil {
		s.logger.Warn("rcon mirror failed, server will pick up the file on reload", "command", command, "error", err)
	}
}
