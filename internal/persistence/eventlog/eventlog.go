// Package eventlog writes one compressed JSON line per tick, for replay and
// offline analysis.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/planet-harvest/internal/engine"
)

// Record is one line of the log.
type Record struct {
	RunID string `json:"run_id,omitempty"`
	engine.TickFrame
}

// Writer appends records to a .jsonl.zst file. It is safe for concurrent
// use.
type Writer struct {
	path  string
	runID string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// Create opens path for writing, creating parent directories.
func Create(path, runID string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("event log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("event log: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("event log encoder: %w", err)
	}
	return &Writer{
		path:  path,
		runID: runID,
		f:     f,
		enc:   enc,
		w:     bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// Path returns the file being written.
func (w *Writer) Path() string { return w.path }

// WriteFrame appends one tick.
func (w *Writer) WriteFrame(f engine.TickFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return os.ErrClosed
	}

	b, err := json.Marshal(Record{RunID: w.runID, TickFrame: f})
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes the compressor and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		if err := w.f.Close(); err1 == nil {
			err1 = err
		}
		w.f = nil
	}
	w.w = nil
	return err1
}

// Read calls fn for every record in the file at path, in order. It stops at
// the first error fn returns.
func Read(path string, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return sc.Err()
}
