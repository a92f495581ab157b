// Package dump implements an optional debug-capture side channel for the
// memory-write path, adapted from decoder/stream/saveFile.go's
// gzip-compress-and-file-to-disk pattern. It is purely observational: it
// never gates or delays NotificationDelayer's release decision (spec.md
// §4.9).
package dump

import (
	"os"
	"path"
	"path/filepath"
	"sync"

	gzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"

	"github.com/flowforge/rxtoe/identity"
	"github.com/flowforge/rxtoe/tcpmodel"
)

// DirectoryPermission mirrors the teacher's defaults.DirectoryPermission
// used by os.MkdirAll in saveFile.go.
const DirectoryPermission = 0o755

// Writer persists every MemCommand payload it is handed, gzip-compressed,
// one file per session under Dir. A nil *Writer is valid and a no-op, so
// callers can wire an optionally-nil Writer into the hot path without a
// branch at every call site.
type Writer struct {
	Dir string
	Log *zap.Logger

	mu      sync.Mutex
	handles map[uint32]*gzip.Writer
	files   map[uint32]*os.File
}

// New returns a Writer rooted at dir, or nil if dir is empty (disabled).
func New(dir string, log *zap.Logger) *Writer {
	if dir == "" {
		return nil
	}

	return &Writer{
		Dir:     dir,
		Log:     log,
		handles: make(map[uint32]*gzip.Writer),
		files:   make(map[uint32]*os.File),
	}
}

// Capture appends payload to the session's capture file, creating it (and
// the session's directory, named via identity.Ident) on first use.
func (w *Writer) Capture(ft tcpmodel.FourTuple, sid uint32, payload []byte) {
	if w == nil || len(payload) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	gz, ok := w.handles[sid]
	if !ok {
		dir := path.Join(w.Dir, identity.Ident(ft))

		if err := os.MkdirAll(dir, DirectoryPermission); err != nil {
			w.Log.Error("failed to create capture directory",
				zap.String("path", dir),
				zap.Int("perm", DirectoryPermission),
				zap.Error(err),
			)

			return
		}

		target := filepath.Join(dir, "payload.bin.gz")

		f, err := os.Create(target)
		if err != nil {
			w.Log.Error("failed to create capture file", zap.String("target", target), zap.Error(err))
			return
		}

		gz = gzip.NewWriter(f)
		w.files[sid] = f
		w.handles[sid] = gz
	}

	if _, err := gz.Write(payload); err != nil {
		w.Log.Error("failed to write capture payload", zap.Uint32("session", sid), zap.Error(err))
	}
}

// Close flushes and closes every open capture file.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error

	for sid, gz := range w.handles {
		if err := gz.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		if f, ok := w.files[sid]; ok {
			if err := f.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	w.handles = make(map[uint32]*gzip.Writer)
	w.files = make(map[uint32]*os.File)

	return firstErr
}
