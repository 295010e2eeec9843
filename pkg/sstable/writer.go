package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tabletdb/tablet/pkg/codec"
	"github.com/tabletdb/tablet/pkg/common/log"
	"github.com/tabletdb/tablet/pkg/sstable/block"
	"github.com/tabletdb/tablet/pkg/sstable/filter"
	"github.com/tabletdb/tablet/pkg/sstable/footer"
)

// fileManager owns the temp-file lifecycle of a table under
// construction: all writes land in a .tmp sibling, and the final path
// appears only through an atomic rename at commit.
type fileManager struct {
	path    string
	tmpPath string
	file    *os.File
}

func newFileManager(path string) (*fileManager, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create table directory: %w", err)
	}

	tmpPath := path + tmpSuffix
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	return &fileManager{path: path, tmpPath: tmpPath, file: file}, nil
}

func (fm *fileManager) write(data []byte) error {
	n, err := fm.file.Write(data)
	if err != nil {
		return fmt.Errorf("write %s: %w", fm.tmpPath, err)
	}
	if n != len(data) {
		return fmt.Errorf("write %s: short write %d of %d bytes", fm.tmpPath, n, len(data))
	}
	return nil
}

func (fm *fileManager) close() error {
	if fm.file == nil {
		return nil
	}
	err := fm.file.Close()
	fm.file = nil
	return err
}

// finalize syncs the temp file, renames it into place and syncs the
// parent directory so the rename itself is durable.
func (fm *fileManager) finalize() error {
	if err := fm.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync table file: %w", err)
	}
	if err := fm.close(); err != nil {
		return fmt.Errorf("failed to close table file: %w", err)
	}
	if err := os.Rename(fm.tmpPath, fm.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return syncDir(filepath.Dir(fm.path))
}

// cleanup removes the temp file after an abort or failure; the final
// path is never touched.
func (fm *fileManager) cleanup() {
	fm.close()
	if err := os.Remove(fm.tmpPath); err != nil && !os.IsNotExist(err) {
		log.WithField("path", fm.tmpPath).Warn("failed to remove temp table file: %v", err)
	}
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open directory for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync directory: %w", err)
	}
	return nil
}

// Writer streams sorted key/value pairs into an immutable table file.
// A writer is single-use and single-threaded; callers serialize
// externally.
type Writer struct {
	fm         *fileManager
	opts       *WriterOptions
	comp       *codec.Compressor
	builder    *block.Builder
	bloom      *filter.Bloom
	index      []IndexEntry
	offset     uint64
	lastKey    []byte
	entries    uint64
	uniqueKeys uint64
	finished   bool
}

// NewWriter creates a writer targeting path. The table becomes visible
// at path only when Finish renames it into place.
func NewWriter(path string, opts *WriterOptions) (*Writer, error) {
	o := opts.norm()

	fm, err := newFileManager(path)
	if err != nil {
		return nil, err
	}

	comp, err := codec.NewCompressor(o.Compression, o.CompressionLevel)
	if err != nil {
		fm.cleanup()
		return nil, err
	}

	// Reserve the zero-filled header pad; data blocks start after it.
	if err := fm.write(make([]byte, headerPadSize)); err != nil {
		comp.Close()
		fm.cleanup()
		return nil, err
	}

	return &Writer{
		fm:      fm,
		opts:    o,
		comp:    comp,
		builder: block.NewBuilder(o.RestartInterval),
		bloom:   filter.New(o.BloomBits, o.BloomHashes),
		offset:  headerPadSize,
	}, nil
}

// Add appends a key/value pair. Keys must be non-decreasing across the
// whole table; equal keys are accepted so callers can store multiple
// versions of one key.
func (w *Writer) Add(key, value []byte) error {
	if w.finished {
		return fmt.Errorf("%w: writer already finished", ErrInvalidInput)
	}
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", ErrInvalidInput)
	}
	if w.entries > 0 && bytes.Compare(key, w.lastKey) < 0 {
		return fmt.Errorf("%w: out of order: %q after %q", ErrInvalidInput, key, w.lastKey)
	}

	if err := w.builder.Add(key, value); err != nil {
		return fmt.Errorf("failed to add to block: %w", err)
	}
	w.bloom.Add(key)

	if w.entries == 0 || !bytes.Equal(key, w.lastKey) {
		w.uniqueKeys++
	}
	w.lastKey = append(w.lastKey[:0], key...)
	w.entries++

	if w.builder.EstimatedSize() >= w.opts.BlockSize {
		return w.flushBlock()
	}
	return nil
}

// flushBlock frames the current builder payload into a data block
// record and records its index entry at the true file offset.
func (w *Writer) flushBlock() error {
	if w.builder.Entries() == 0 {
		return nil
	}

	firstKey := append([]byte(nil), w.builder.FirstKey()...)
	record, err := block.Encode(w.builder.Finish(), block.TypeData, w.comp)
	if err != nil {
		return err
	}
	if err := w.fm.write(record); err != nil {
		return err
	}

	w.index = append(w.index, IndexEntry{
		FirstKey: firstKey,
		Offset:   w.offset,
		Length:   uint32(len(record)),
	})
	w.offset += uint64(len(record))
	w.builder.Reset()
	return nil
}

// writeRaw frames payload as an uncompressed block record and returns
// its extent.
func (w *Writer) writeRaw(payload []byte, typ block.Type) (off uint64, length uint32, err error) {
	record, err := block.Encode(payload, typ, nil)
	if err != nil {
		return 0, 0, err
	}
	if err := w.fm.write(record); err != nil {
		return 0, 0, err
	}
	off = w.offset
	w.offset += uint64(len(record))
	return off, uint32(len(record)), nil
}

// encodeIndex serializes the index block payload: per entry a
// varint-prefixed first key, then big-endian offset and length.
func encodeIndex(entries []IndexEntry) []byte {
	var out []byte
	var tmp [12]byte
	for _, e := range entries {
		out = codec.AppendUvarint32(out, uint32(len(e.FirstKey)))
		out = append(out, e.FirstKey...)
		binary.BigEndian.PutUint64(tmp[0:8], e.Offset)
		binary.BigEndian.PutUint32(tmp[8:12], e.Length)
		out = append(out, tmp[:]...)
	}
	return out
}

// Finish flushes the residual block, writes the filter, index and meta
// blocks and the footer, fsyncs, publishes the file atomically and
// persists the bloom sidecar. On an error before the rename no file
// appears at the final path and the temp file is removed. The directory
// sync and the sidecar write run after the rename, so an error from
// either leaves the published table at the final path.
func (w *Writer) Finish() error {
	if w.finished {
		return fmt.Errorf("%w: writer already finished", ErrInvalidInput)
	}
	w.finished = true
	defer w.comp.Close()

	err := w.finish()
	if err != nil {
		w.fm.cleanup()
	}
	return err
}

func (w *Writer) finish() error {
	if err := w.flushBlock(); err != nil {
		return err
	}

	// Filter block carries the exact sidecar bytes, magic included, so
	// a reader can seed its filter from either source.
	filterOff, filterLen, err := w.writeRaw(w.bloom.Encode(), block.TypeFilter)
	if err != nil {
		return err
	}

	indexOff, indexLen, err := w.writeRaw(encodeIndex(w.index), block.TypeIndex)
	if err != nil {
		return err
	}

	meta := &Metadata{
		Entries:       w.entries,
		UniqueKeys:    w.uniqueKeys,
		NumShards:     w.opts.NumShards,
		SharderName:   w.opts.SharderName,
		SharderConfig: w.opts.SharderConfig,
		Compression:   w.opts.Compression.String(),
	}
	metaOff, metaLen, err := w.writeRaw(encodeMeta(meta), block.TypeMeta)
	if err != nil {
		return err
	}

	ft := footer.Footer{
		IndexOffset:  indexOff,
		IndexLength:  indexLen,
		FilterOffset: filterOff,
		FilterLength: filterLen,
		MetaOffset:   metaOff,
		MetaLength:   metaLen,
	}
	if err := w.fm.write(ft.Encode()); err != nil {
		return err
	}

	if err := w.fm.finalize(); err != nil {
		return err
	}

	// Sidecar publish happens after the table is durable; a missing
	// sidecar is recoverable from the filter block.
	if err := w.bloom.WriteFile(w.fm.path + SidecarSuffix); err != nil {
		return err
	}

	log.WithField("path", w.fm.path).Debug("finished table: %d entries, %d blocks",
		w.entries, len(w.index))
	return nil
}

// Abort discards the table under construction and removes the temp file
func (w *Writer) Abort() {
	if !w.finished {
		w.finished = true
		w.comp.Close()
		w.fm.cleanup()
	}
}

// Entries returns the number of pairs added so far
func (w *Writer) Entries() uint64 {
	return w.entries
}
