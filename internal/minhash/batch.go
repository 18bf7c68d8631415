package minhash

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/DavidNemeskey/cc-corpus-go/internal/corpus"
)

// BatchConfig controls how a BatchWriter names and rotates a
// MinHashBatch's three parallel files.
type BatchConfig struct {
	OutDir     string
	Digits     int
	BatchSize  int // rotate once the batch holds this many signatures; 0 means never
	FirstIndex int
}

// BatchWriter writes one MinHashBatch (§3): for a numeric prefix N,
// the files N.minhashes (binary, fixed-width signatures), N.doc_ids
// (text, "url\tparagraph_index" per signature) and N.files (text, one
// line per contributing source corpus file recording how many of its
// signatures landed in this batch and where they start). It follows
// the same numbered-file, delete-if-empty rotation idiom as
// internal/batch.Writer, adapted for three files that must rotate in
// lockstep rather than one.
type BatchWriter struct {
	cfg BatchConfig

	mu    sync.Mutex
	idx   int
	mh    *os.File
	doc   *os.File
	files *os.File

	count           int
	curSource       string
	curSourceCount  int
	curSourceOffset int64
	any             bool
}

// NewBatchWriter creates OutDir if needed and opens the first triple.
func NewBatchWriter(cfg BatchConfig) (*BatchWriter, error) {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("minhash: creating output dir: %w", err)
	}
	w := &BatchWriter{cfg: cfg, idx: cfg.FirstIndex}
	if err := w.openLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *BatchWriter) name(ext string) string {
	num := fmt.Sprintf("%d", w.idx)
	if w.cfg.Digits > 0 {
		num = fmt.Sprintf("%0*d", w.cfg.Digits, w.idx)
	}
	return filepath.Join(w.cfg.OutDir, num+ext)
}

func (w *BatchWriter) openLocked() error {
	mh, err := os.Create(w.name(".minhashes"))
	if err != nil {
		return fmt.Errorf("minhash: creating minhashes file: %w", err)
	}
	doc, err := os.Create(w.name(".doc_ids"))
	if err != nil {
		mh.Close()
		return fmt.Errorf("minhash: creating doc_ids file: %w", err)
	}
	fl, err := os.Create(w.name(".files"))
	if err != nil {
		mh.Close()
		doc.Close()
		return fmt.Errorf("minhash: creating files file: %w", err)
	}
	w.mh, w.doc, w.files = mh, doc, fl
	w.count = 0
	w.curSource = ""
	w.curSourceCount = 0
	w.curSourceOffset = 0
	w.any = false
	return nil
}

// flushSourceLocked appends the accumulated record for the current
// source file to .files, if it has contributed anything yet.
// minhash_offset and doc_id_offset are recorded as the same value: the
// signature index (not a byte offset) at which the source's run
// began, since minhashes are fixed-width and doc_ids lines correspond
// 1:1 with them.
func (w *BatchWriter) flushSourceLocked() error {
	if w.curSource == "" || w.curSourceCount == 0 {
		return nil
	}
	_, err := fmt.Fprintf(w.files, "%s\t%d\t%d\t%d\n", w.curSource, w.curSourceCount, w.curSourceOffset, w.curSourceOffset)
	w.curSourceCount = 0
	return err
}

func (w *BatchWriter) closeCurrentLocked() error {
	mhName, docName, filesName := w.mh.Name(), w.doc.Name(), w.files.Name()
	var firstErr error
	if err := w.mh.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.doc.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.files.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("minhash: closing batch %d: %w", w.idx, firstErr)
	}
	if !w.any {
		for _, n := range []string{mhName, docName, filesName} {
			if err := os.Remove(n); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("minhash: removing empty batch file %s: %w", n, err)
			}
		}
	}
	return nil
}

func (w *BatchWriter) rotateLocked() error {
	if err := w.flushSourceLocked(); err != nil {
		return err
	}
	if err := w.closeCurrentLocked(); err != nil {
		return err
	}
	w.idx++
	return w.openLocked()
}

// AddSignature appends one signature and its (url, paragraphIndex)
// identity to the batch, crediting it to sourceFile in the eventual
// .files record. Rotation happens before the write if the batch is
// already full.
func (w *BatchWriter) AddSignature(sourceFile, url string, paragraphIndex int, sig Signature) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cfg.BatchSize > 0 && w.count >= w.cfg.BatchSize {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}
	if sourceFile != w.curSource {
		if err := w.flushSourceLocked(); err != nil {
			return err
		}
		w.curSource = sourceFile
		w.curSourceOffset = int64(w.count)
	}

	buf := make([]byte, 8*len(sig))
	for i, v := range sig {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	if _, err := w.mh.Write(buf); err != nil {
		return fmt.Errorf("minhash: writing signature: %w", err)
	}
	if _, err := fmt.Fprintf(w.doc, "%s\t%d\n", url, paragraphIndex); err != nil {
		return fmt.Errorf("minhash: writing doc id: %w", err)
	}
	w.count++
	w.curSourceCount++
	w.any = true
	return nil
}

// Close flushes the pending source record and the current triple,
// deleting it if it ended up empty. Safe to call more than once.
func (w *BatchWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mh == nil {
		return nil
	}
	if err := w.flushSourceLocked(); err != nil {
		return err
	}
	err := w.closeCurrentLocked()
	w.mh, w.doc, w.files = nil, nil, nil
	return err
}

// ProcessDocument computes and appends one signature per paragraph of
// doc to w, crediting them all to sourceFile. The document's url
// attribute (falling back to its Repr if absent) is recorded alongside
// each paragraph's index.
func ProcessDocument(w *BatchWriter, sourceFile string, doc *corpus.Document) error {
	url, ok := corpus.Get(doc.Attrs, "url")
	if !ok {
		url = doc.Repr()
	}
	for i, p := range doc.Paragraphs {
		sig := Compute(p)
		if err := w.AddSignature(sourceFile, url, i, sig); err != nil {
			return err
		}
	}
	return nil
}
