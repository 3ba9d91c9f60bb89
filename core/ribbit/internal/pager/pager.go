package pager

import (
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/FocuswithJustin/RibbitDB/core/cache"
	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/internal/logging"
)

// Pager errors
var (
	ErrInvalidPageSize = errors.New("invalid page size")
	ErrBadHeader       = errors.New("not a RibbitDB file")
	ErrVersionMismatch = errors.New("unsupported format version")
	ErrCorruptPage     = errors.New("corrupt page")
	ErrPagerFull       = errors.New("page id space exhausted")
	ErrReadOnly        = errors.New("pager is read-only")
	ErrClosed          = errors.New("pager is closed")
)

// Options configures a Pager.
type Options struct {
	// PageSize applies to new files only; existing files keep theirs.
	PageSize int
	// CacheSize bounds the number of clean pages kept in memory.
	CacheSize int
	// CompressionLevel is 0 (raw) to 9.
	CompressionLevel int
	// ReadOnly opens the file without write access.
	ReadOnly bool
}

// DefaultOptions returns the options used by Open when none are given.
func DefaultOptions() Options {
	return Options{
		PageSize:         DefaultPageSize,
		CacheSize:        1000,
		CompressionLevel: DefaultCompression,
	}
}

// Stats counts pager activity since Open.
type Stats struct {
	Reads            int64
	Writes           int64
	CompressedWrites int64
	RawWrites        int64
	CacheHits        int64
	CacheMisses      int64
	DirtyPages       int
	CachedPages      int
}

// Pager manages page slots of a single database file. It is not safe for
// concurrent use.
type Pager struct {
	file     *os.File
	path     string
	pageSize int
	nextID   uint32
	readOnly bool
	created  bool
	closed   bool

	comp  *Compressor
	cache cache.Cache[uint32, *Page]
	dirty map[uint32]*Page
	stats Stats
}

// Open opens or creates the database file at path.
func Open(path string, opts Options) (*Pager, error) {
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if err := ValidatePageSize(opts.PageSize); err != nil {
		return nil, errors.NewOperational("open", path, err)
	}
	comp, err := NewCompressor(opts.CompressionLevel)
	if err != nil {
		return nil, errors.NewOperational("open", path, err)
	}

	flag := os.O_RDWR | os.O_CREATE
	if opts.ReadOnly {
		flag = os.O_RDONLY
	}
	file, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, errors.NewOperational("open", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.NewOperational("stat", path, err)
	}

	p := &Pager{
		file:     file,
		path:     path,
		pageSize: opts.PageSize,
		readOnly: opts.ReadOnly,
		comp:     comp,
		cache:    cache.NewLRUCache[uint32, *Page](cache.Config[uint32, *Page]{MaxSize: opts.CacheSize}),
		dirty:    make(map[uint32]*Page),
	}

	if info.Size() == 0 {
		if opts.ReadOnly {
			file.Close()
			return nil, errors.NewOperational("open", path, ErrBadHeader)
		}
		if err := p.initializeNewDatabase(); err != nil {
			file.Close()
			return nil, errors.NewOperational("initialize", path, err)
		}
	} else if err := p.readHeader(info.Size()); err != nil {
		file.Close()
		return nil, errors.NewOperational("open", path, err)
	}

	logging.DatabaseOpened(path, p.pageSize, p.nextID, p.created)
	return p, nil
}

// initializeNewDatabase writes the file header and the META page 0.
func (p *Pager) initializeNewDatabase() error {
	header := NewFileHeader(p.pageSize)
	if _, err := p.file.WriteAt(header.Encode(), 0); err != nil {
		return fmt.Errorf("failed to write file header: %w", err)
	}
	if _, err := p.Allocate(PageMeta); err != nil {
		return err
	}
	p.created = true
	return p.Flush()
}

func (p *Pager) readHeader(size int64) error {
	buf := make([]byte, fileHeaderLen)
	if _, err := p.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	header, err := ParseFileHeader(buf)
	if err != nil {
		return err
	}
	p.pageSize = int(header.PageSize)
	if size < int64(p.pageSize) {
		return fmt.Errorf("%w: file shorter than its header", ErrBadHeader)
	}
	p.nextID = uint32((size - int64(p.pageSize)) / int64(p.pageSize))
	return nil
}

// Allocate reserves the next page id and returns an empty dirty page.
func (p *Pager) Allocate(typ PageType) (*Page, error) {
	if err := p.writable(); err != nil {
		return nil, err
	}
	if p.nextID > MaxPageID {
		return nil, errors.NewOperational("allocate page", p.path, ErrPagerFull)
	}
	page := NewPage(p.nextID, typ, p.pageSize)
	page.dirty = true
	p.dirty[page.ID] = page
	p.nextID++
	return page, nil
}

// Get returns page id from memory or disk, or nil when the page does not
// exist or cannot be decoded.
func (p *Pager) Get(id uint32) *Page {
	if p.closed || id >= p.nextID {
		return nil
	}
	if page, ok := p.dirty[id]; ok {
		p.stats.CacheHits++
		return page
	}
	if page, ok := p.cache.Get(id); ok {
		p.stats.CacheHits++
		return page
	}
	p.stats.CacheMisses++

	page, _, err := p.readPage(id)
	if err != nil {
		logging.Debug("page read failed", "path", p.path, "page_id", id, "error", err.Error())
		return nil
	}
	p.cache.Put(id, page)
	return page
}

// Write pins a modified page in memory until the next Flush.
func (p *Pager) Write(page *Page) error {
	if err := p.writable(); err != nil {
		return err
	}
	page.dirty = true
	p.dirty[page.ID] = page
	p.cache.Remove(page.ID)
	return nil
}

// readPage loads and decodes one slot; compressed reports the stored form.
func (p *Pager) readPage(id uint32) (*Page, bool, error) {
	buf := make([]byte, p.pageSize)
	n, err := p.file.ReadAt(buf, SlotOffset(id, p.pageSize))
	if err != nil && err != io.EOF {
		return nil, false, err
	}
	if n < p.pageSize {
		return nil, false, fmt.Errorf("short read of page %d: %d bytes", id, n)
	}
	p.stats.Reads++

	if data := trimZeros(buf); len(data) > 0 {
		if image, err := Decompress(data); err == nil {
			if page, err := DecodePage(image, p.pageSize); err == nil {
				return p.checkID(page, id, true)
			}
		}
	}
	page, err := DecodePage(buf, p.pageSize)
	if err != nil {
		return nil, false, err
	}
	return p.checkID(page, id, false)
}

func (p *Pager) checkID(page *Page, id uint32, compressed bool) (*Page, bool, error) {
	if page.ID != id&MaxPageID {
		return nil, false, fmt.Errorf("%w: slot %d holds page %d", ErrCorruptPage, id, page.ID)
	}
	page.ID = id
	return page, compressed, nil
}

// writePage compresses and stores one page in its slot.
func (p *Pager) writePage(page *Page) error {
	image := page.Encode()
	stored := image
	if p.comp.Enabled() {
		compressed, err := p.comp.Compress(image)
		if err != nil {
			return err
		}
		if len(compressed) < p.pageSize {
			stored = compressed
		}
	}
	if len(stored) == len(image) {
		p.stats.RawWrites++
	} else {
		p.stats.CompressedWrites++
	}

	slot := make([]byte, p.pageSize)
	copy(slot, stored)
	if _, err := p.file.WriteAt(slot, SlotOffset(page.ID, p.pageSize)); err != nil {
		return fmt.Errorf("failed to write page %d: %w", page.ID, err)
	}
	p.stats.Writes++
	return nil
}

// Flush writes every dirty page and syncs the file.
func (p *Pager) Flush() error {
	if p.closed {
		return ErrClosed
	}
	if len(p.dirty) == 0 {
		return nil
	}
	if p.readOnly {
		return ErrReadOnly
	}
	start := time.Now()

	ids := make([]uint32, 0, len(p.dirty))
	for id := range p.dirty {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		page := p.dirty[id]
		if err := p.writePage(page); err != nil {
			return errors.NewOperational("flush", p.path, err)
		}
		page.dirty = false
		delete(p.dirty, id)
		p.cache.Put(id, page)
	}
	if err := p.file.Sync(); err != nil {
		return errors.NewOperational("sync", p.path, err)
	}
	logging.PagesFlushed(p.path, len(ids), time.Since(start))
	return nil
}

// Close flushes dirty pages and releases the file. Closing twice is a no-op.
func (p *Pager) Close() error {
	if p.closed {
		return nil
	}
	var flushErr error
	if !p.readOnly {
		flushErr = p.Flush()
	}
	p.closed = true
	p.cache.Clear()
	if err := p.file.Close(); err != nil && flushErr == nil {
		return errors.NewOperational("close", p.path, err)
	}
	return flushErr
}

func (p *Pager) writable() error {
	if p.closed {
		return ErrClosed
	}
	if p.readOnly {
		return ErrReadOnly
	}
	return nil
}

// PageSize returns the page size in bytes.
func (p *Pager) PageSize() int {
	return p.pageSize
}

// PageCount returns the number of allocated page ids.
func (p *Pager) PageCount() uint32 {
	return p.nextID
}

// Path returns the database file path.
func (p *Pager) Path() string {
	return p.path
}

// ReadOnly reports whether the file was opened without write access.
func (p *Pager) ReadOnly() bool {
	return p.readOnly
}

// Created reports whether Open created a new file.
func (p *Pager) Created() bool {
	return p.created
}

// Stats returns a snapshot of pager counters.
func (p *Pager) Stats() Stats {
	s := p.stats
	s.DirtyPages = len(p.dirty)
	s.CachedPages = p.cache.Len()
	return s
}
