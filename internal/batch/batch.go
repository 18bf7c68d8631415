// Package batch implements BatchWriter (§4.F): a writer that splits an
// unbounded stream of items into numbered output files, opening a new
// file whenever the current one reaches a configured item count. The
// corpus extractor shards its output through a Writer (the minhash
// batches use minhash.BatchWriter, which repeats the same rotation for
// its three files). A Writer deletes any file left empty when the run ends —
// mirroring the atomic-rotate and empty-cleanup behavior of the
// original downloader's rolling bundle writer, generalized from one
// fixed record format to any byte-serializable item.
package batch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// Config controls how a Writer names and rotates its output files.
type Config struct {
	OutDir     string // directory the numbered files are created in
	Prefix     string // filename prefix before the number, may be empty
	Suffix     string // filename suffix after the number, e.g. ".gz"
	Digits     int    // zero-padded width of the number; 0 means no padding
	BatchSize  int    // rotate once the current file holds this many items; 0 means never rotate
	FirstIndex int    // number of the first file created
	Compress   bool   // wrap each file in a gzip.Writer
}

// Writer is an item-count-bounded, numbered file writer. Its methods
// serialize on an internal mutex, so concurrent calls are safe; the
// pipeline itself drives each Writer from a single goroutine.
type Writer struct {
	cfg Config

	mu        sync.Mutex
	idx       int
	file      *os.File
	gz        *gzip.Writer
	itemsHere int
	anyWrites bool
}

// NewWriter creates the OutDir (if needed) and opens the first
// numbered file.
func NewWriter(cfg Config) (*Writer, error) {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("batch: creating output dir: %w", err)
	}
	w := &Writer{cfg: cfg, idx: cfg.FirstIndex}
	if err := w.openLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) filename(idx int) string {
	num := fmt.Sprintf("%d", idx)
	if w.cfg.Digits > 0 {
		num = fmt.Sprintf("%0*d", w.cfg.Digits, idx)
	}
	return filepath.Join(w.cfg.OutDir, w.cfg.Prefix+num+w.cfg.Suffix)
}

func (w *Writer) openLocked() error {
	f, err := os.Create(w.filename(w.idx))
	if err != nil {
		return fmt.Errorf("batch: creating %s: %w", w.filename(w.idx), err)
	}
	w.file = f
	w.itemsHere = 0
	w.anyWrites = false
	if w.cfg.Compress {
		w.gz = gzip.NewWriter(f)
	}
	return nil
}

func (w *Writer) writerLocked() io.Writer {
	if w.cfg.Compress {
		return w.gz
	}
	return w.file
}

// closeCurrentLocked flushes and closes the current file, deleting it
// if nothing was ever written to it.
func (w *Writer) closeCurrentLocked() error {
	name := w.file.Name()
	if w.cfg.Compress {
		if err := w.gz.Close(); err != nil {
			w.file.Close()
			return fmt.Errorf("batch: closing gzip stream for %s: %w", name, err)
		}
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("batch: closing %s: %w", name, err)
	}
	if !w.anyWrites {
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("batch: removing empty file %s: %w", name, err)
		}
	}
	return nil
}

// rotateLocked closes the current file and opens the next numbered one.
func (w *Writer) rotateLocked() error {
	if err := w.closeCurrentLocked(); err != nil {
		return err
	}
	w.idx++
	return w.openLocked()
}

// WriteItem appends one whole item (its already-serialized bytes) to
// the current file, rotating to a fresh file first if the current one
// has already reached BatchSize items.
func (w *Writer) WriteItem(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cfg.BatchSize > 0 && w.itemsHere >= w.cfg.BatchSize {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := w.writerLocked().Write(p)
	if err != nil {
		return n, err
	}
	w.itemsHere++
	w.anyWrites = true
	return n, nil
}

// Index returns the number of the file currently being written.
func (w *Writer) Index() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.idx
}

// Close flushes and closes the current file, deleting it if it is
// empty. Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.closeCurrentLocked()
	w.file = nil
	return err
}
