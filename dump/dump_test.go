package dump

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	gzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"

	"github.com/flowforge/rxtoe/identity"
	"github.com/flowforge/rxtoe/tcpmodel"
)

func TestNewDisabledWhenDirEmpty(t *testing.T) {
	if New("", zap.NewNop()) != nil {
		t.Fatal("New(\"\", ...) should return nil (disabled)")
	}
}

func TestNilWriterCaptureIsNoop(t *testing.T) {
	var w *Writer
	w.Capture(tcpmodel.FourTuple{}, 1, []byte("hello")) // must not panic
	if err := w.Close(); err != nil {
		t.Fatalf("Close on nil Writer: %v", err)
	}
}

func TestCaptureWritesGzipFilePerSession(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, zap.NewNop())
	if w == nil {
		t.Fatal("New returned nil for a non-empty dir")
	}

	ft := tcpmodel.FourTuple{SrcIP: 1, DstIP: 2, SrcPort: 3, DstPort: 4}

	w.Capture(ft, 42, []byte("hello "))
	w.Capture(ft, 42, []byte("world"))

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	target := filepath.Join(dir, identity.Ident(ft), "payload.bin.gz")
	f, err := os.Open(target)
	if err != nil {
		t.Fatalf("capture file not found at expected path: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gz.Close()

	got, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if !bytes.Equal(got, []byte("hello world")) {
		t.Errorf("captured payload = %q, want %q", got, "hello world")
	}
}

func TestCaptureIgnoresEmptyPayload(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, zap.NewNop())

	ft := tcpmodel.FourTuple{SrcIP: 9}
	w.Capture(ft, 1, nil)

	target := filepath.Join(dir, identity.Ident(ft))
	if _, err := os.Stat(target); err == nil {
		t.Error("an empty-payload Capture should not create a session directory")
	}
}
