// Package logwatch tails the game server log and turns recognised lines into events.
package logwatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/TheMich157/whitelisthub/internal/events"
	"github.com/TheMich157/whitelisthub/internal/logging"
	"github.com/TheMich157/whitelisthub/internal/metrics"
)

// DefaultPollInterval re-checks the file even without notifications. Some
// filesystems (network mounts, overlay) never deliver write events.
const DefaultPollInterval = 2 * time.Second

const source = "logwatch"

// Options configures a Watcher.
type Options struct {
	Path         string
	Hub          *events.Hub
	Logger       *logging.Logger
	PollInterval time.Duration
	// FromStart replays the existing file instead of starting at its end.
	FromStart bool
}

// Watcher follows one log file across truncation and rotation.
type Watcher struct {
	path   string
	hub    *events.Hub
	logger *logging.Logger
	poll   time.Duration

	file    *os.File
	offset  int64
	partial []byte
	seekEnd bool
}

// New creates a watcher. Run starts it.
func New(opts Options) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Watcher{
		path:    filepath.Clean(opts.Path),
		hub:     opts.Hub,
		logger:  logger.WithComponent("logwatch"),
		poll:    poll,
		seekEnd: !opts.FromStart,
	}
}

// Run blocks until ctx is done. The directory holding the log is watched so
// the file may be absent at startup and is picked up once created.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	defer w.closeFile()

	w.logger.Info("watching server log", "path", w.path)
	w.reopen()
	// Only the file present at startup is skipped; later ones are read in full.
	w.seekEnd = false
	w.drain()

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				w.logger.Debug("server log created", "path", w.path)
				w.reopen()
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				w.drain()
				w.closeFile()
				continue
			}
			w.drain()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)

		case <-ticker.C:
			if w.file == nil {
				w.reopen()
			}
			w.drain()
		}
	}
}

func (w *Watcher) reopen() {
	w.closeFile()
	f, err := os.Open(w.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("failed to open server log", "path", w.path, "error", err)
		}
		return
	}
	w.file = f
	w.offset = 0
	w.partial = w.partial[:0]
	if w.seekEnd {
		if off, err := f.Seek(0, io.SeekEnd); err == nil {
			w.offset = off
		}
	}
}

func (w *Watcher) closeFile() {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
}

// drain reads everything appended since the last call.
func (w *Watcher) drain() {
	if w.file == nil {
		return
	}
	info, err := w.file.Stat()
	if err != nil {
		w.closeFile()
		return
	}
	if info.Size() < w.offset {
		w.logger.Debug("server log truncated", "path", w.path)
		w.offset = 0
		w.partial = w.partial[:0]
	}
	if _, err := w.file.Seek(w.offset, io.SeekStart); err != nil {
		return
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := w.file.Read(buf)
		if n > 0 {
			w.offset += int64(n)
			w.consume(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.logger.Warn("failed to read server log", "error", err)
			}
			return
		}
	}
}

func (w *Watcher) consume(chunk []byte) {
	w.partial = append(w.partial, chunk...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			return
		}
		line := string(w.partial[:i])
		w.partial = w.partial[i+1:]
		w.handle(line)
	}
}

func (w *Watcher) handle(raw string) {
	l, ok := ParseLine(raw)
	if !ok {
		return
	}
	metrics.Get().LogEvents.WithLabelValues(string(l.Type)).Inc()
	l.Publish(w.hub, source)
}
