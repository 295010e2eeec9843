package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/tabletdb/tablet/pkg/cache"
	"github.com/tabletdb/tablet/pkg/codec"
	"github.com/tabletdb/tablet/pkg/sstable/block"
	"github.com/tabletdb/tablet/pkg/sstable/filter"
	"github.com/tabletdb/tablet/pkg/sstable/footer"
)

// ReaderOptions configure how a table is opened
type ReaderOptions struct {
	// Cache holds decompressed data blocks across readers. Nil disables
	// caching; every block fetch then reads from the file.
	Cache *cache.BlockCache

	// UseSidecar seeds the bloom filter from the .bf sidecar instead of
	// the in-file filter block when the sidecar exists.
	UseSidecar bool
}

// ioManager owns the read handle of an open table
type ioManager struct {
	path     string
	file     *os.File
	fileSize int64
	mu       sync.RWMutex
}

func newIOManager(path string) (*ioManager, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat table: %w", err)
	}
	return &ioManager{path: path, file: file, fileSize: stat.Size()}, nil
}

func (io *ioManager) readAt(data []byte, offset int64) error {
	io.mu.RLock()
	defer io.mu.RUnlock()

	if io.file == nil {
		return fmt.Errorf("table %s is closed", io.path)
	}
	n, err := io.file.ReadAt(data, offset)
	if err != nil {
		return fmt.Errorf("read %s at offset %d: %w", io.path, offset, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: short read at offset %d: %d of %d bytes",
			ErrCorruption, offset, n, len(data))
	}
	return nil
}

func (io *ioManager) close() error {
	io.mu.Lock()
	defer io.mu.Unlock()

	if io.file == nil {
		return nil
	}
	err := io.file.Close()
	io.file = nil
	return err
}

// Reader serves point and range queries against one published table
// file. All state is immutable after OpenReader returns; any number of
// goroutines may query a single Reader.
type Reader struct {
	io    *ioManager
	opts  ReaderOptions
	comp  *codec.Compressor
	index []IndexEntry
	bloom *filter.Bloom
	meta  *Metadata
	ft    *footer.Footer
}

// OpenReader opens a published table file for reading
func OpenReader(path string, opts *ReaderOptions) (*Reader, error) {
	var o ReaderOptions
	if opts != nil {
		o = *opts
	}

	io, err := newIOManager(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{io: io, opts: o}

	if err := r.bootstrap(); err != nil {
		io.close()
		if r.comp != nil {
			r.comp.Close()
		}
		return nil, err
	}
	return r, nil
}

// bootstrap validates the footer and loads the index, filter and meta
// blocks into memory.
func (r *Reader) bootstrap() error {
	if r.io.fileSize < footer.Size {
		return fmt.Errorf("%w: file too small to be a table: %d bytes",
			ErrCorruption, r.io.fileSize)
	}

	footerData := make([]byte, footer.Size)
	if err := r.io.readAt(footerData, r.io.fileSize-footer.Size); err != nil {
		return err
	}
	ft, err := footer.Decode(footerData)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	r.ft = ft

	// Decoder-only compressor; the codec of each block is carried in
	// its own flags.
	comp, err := codec.NewCompressor(codec.NoCompression, 0)
	if err != nil {
		return err
	}
	r.comp = comp

	indexPayload, err := r.readRecord(ft.IndexOffset, ft.IndexLength, block.TypeIndex)
	if err != nil {
		return fmt.Errorf("index block: %w", err)
	}
	if r.index, err = decodeIndex(indexPayload); err != nil {
		return err
	}

	metaPayload, err := r.readRecord(ft.MetaOffset, ft.MetaLength, block.TypeMeta)
	if err != nil {
		return fmt.Errorf("meta block: %w", err)
	}
	if r.meta, err = parseMeta(metaPayload); err != nil {
		return err
	}
	r.meta.Path = r.io.path

	return r.loadFilter()
}

func (r *Reader) loadFilter() error {
	if r.opts.UseSidecar {
		if bloom, err := filter.Open(r.io.path + SidecarSuffix); err == nil {
			r.bloom = bloom
			return nil
		}
		// Fall through to the in-file filter block; the sidecar is an
		// optimization, not the source of truth.
	}

	payload, err := r.readRecord(r.ft.FilterOffset, r.ft.FilterLength, block.TypeFilter)
	if err != nil {
		return fmt.Errorf("filter block: %w", err)
	}
	bloom, err := filter.Decode(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	r.bloom = bloom
	return nil
}

// readRecord reads and validates one block record from the file
func (r *Reader) readRecord(offset uint64, length uint32, typ block.Type) ([]byte, error) {
	record := make([]byte, length)
	if err := r.io.readAt(record, int64(offset)); err != nil {
		return nil, err
	}
	return block.Decode(record, typ, r.comp)
}

func decodeIndex(payload []byte) ([]IndexEntry, error) {
	var entries []IndexEntry
	pos := 0
	for pos < len(payload) {
		klen, n, err := codec.Uvarint32(payload[pos:])
		if err != nil {
			return nil, fmt.Errorf("%w: index entry: %v", ErrCorruption, err)
		}
		pos += n
		if pos+int(klen)+12 > len(payload) {
			return nil, fmt.Errorf("%w: index entry overruns block", ErrCorruption)
		}
		key := append([]byte(nil), payload[pos:pos+int(klen)]...)
		pos += int(klen)
		offset := binary.BigEndian.Uint64(payload[pos:])
		length := binary.BigEndian.Uint32(payload[pos+8:])
		pos += 12

		if len(entries) > 0 && bytes.Compare(entries[len(entries)-1].FirstKey, key) > 0 {
			return nil, fmt.Errorf("%w: index keys out of order", ErrCorruption)
		}
		entries = append(entries, IndexEntry{FirstKey: key, Offset: offset, Length: length})
	}
	return entries, nil
}

// seekIndex returns the position of the greatest index entry with
// firstKey <= key, or -1 if every block starts after key.
func (r *Reader) seekIndex(key []byte) int {
	return sort.Search(len(r.index), func(i int) bool {
		return bytes.Compare(r.index[i].FirstKey, key) > 0
	}) - 1
}

// fetchBlock returns a parsed reader for the data block at the given
// index position, consulting the cache first.
func (r *Reader) fetchBlock(i int) (*block.Reader, error) {
	e := r.index[i]
	key := cache.Key{Path: r.io.path, Offset: e.Offset}

	if r.opts.Cache != nil {
		if payload, ok := r.opts.Cache.Get(key); ok {
			return block.NewReader(payload)
		}
	}

	payload, err := r.readRecord(e.Offset, e.Length, block.TypeData)
	if err != nil {
		return nil, fmt.Errorf("data block at offset %d: %w", e.Offset, err)
	}
	if r.opts.Cache != nil {
		r.opts.Cache.Put(key, payload)
	}
	return block.NewReader(payload)
}

// Get returns the value stored for key. Absent keys yield ErrNotFound.
func (r *Reader) Get(key []byte) ([]byte, error) {
	if !r.bloom.MightContain(key) {
		return nil, ErrNotFound
	}

	i := r.seekIndex(key)
	if i < 0 {
		return nil, ErrNotFound
	}

	br, err := r.fetchBlock(i)
	if err != nil {
		return nil, err
	}
	value, found, err := br.Get(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return value, nil
}

// MightContain reports whether the bloom filter admits key
func (r *Reader) MightContain(key []byte) bool {
	return r.bloom.MightContain(key)
}

// Scan returns a forward iterator over entries with keys in
// [start, end); nil bounds leave the range open on that side.
func (r *Reader) Scan(start, end []byte) *Iterator {
	blockIdx := 0
	if len(start) > 0 {
		if i := r.seekIndex(start); i > 0 {
			blockIdx = i
		}
	}
	return &Iterator{reader: r, blockIdx: blockIdx, start: start, end: end}
}

// Metadata returns the table's meta block contents
func (r *Reader) Metadata() Metadata {
	return *r.meta
}

// Close releases the file handle. In-flight iterators must not be used
// after Close.
func (r *Reader) Close() error {
	if r.comp != nil {
		r.comp.Close()
		r.comp = nil
	}
	return r.io.close()
}
