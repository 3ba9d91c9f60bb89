package pager

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	dberrors "github.com/FocuswithJustin/RibbitDB/core/errors"
)

func openTemp(t *testing.T, opts Options) (*Pager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.rbx")
	p, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, path
}

func TestOpenCreatesHeaderAndMetaPage(t *testing.T) {
	p, path := openTemp(t, DefaultOptions())

	if !p.Created() {
		t.Error("Created() = false for a new file")
	}
	if p.PageCount() != 1 {
		t.Errorf("PageCount() = %d, want 1", p.PageCount())
	}
	meta := p.Get(0)
	if meta == nil || meta.Type != PageMeta {
		t.Fatalf("page 0 = %+v, want META page", meta)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 2*DefaultPageSize {
		t.Errorf("file size = %d, want %d", len(data), 2*DefaultPageSize)
	}
	if string(data[:5]) != Magic {
		t.Errorf("magic = %q", data[:5])
	}
	if v := binary.LittleEndian.Uint16(data[5:7]); v != FormatVersion {
		t.Errorf("version = %d", v)
	}
	if ps := binary.LittleEndian.Uint32(data[7:11]); ps != DefaultPageSize {
		t.Errorf("page size = %d", ps)
	}
}

func TestPagesPersistAcrossReopen(t *testing.T) {
	for _, level := range []int{NoCompression, 1, DefaultCompression} {
		t.Run("level", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "db.rbx")
			opts := DefaultOptions()
			opts.CompressionLevel = level
			opts.PageSize = 2048

			p, err := Open(path, opts)
			if err != nil {
				t.Fatal(err)
			}
			page, err := p.Allocate(PageTable)
			if err != nil {
				t.Fatal(err)
			}
			page.AppendRecord([]byte("hello"))
			page.AppendRecord(bytes.Repeat([]byte("z"), 500))
			page.Next = 9
			if err := p.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			opts.PageSize = DefaultPageSize // ignored for existing files
			p2, err := Open(path, opts)
			if err != nil {
				t.Fatalf("reopen error = %v", err)
			}
			defer p2.Close()

			if p2.PageSize() != 2048 {
				t.Errorf("PageSize() = %d, want 2048", p2.PageSize())
			}
			if p2.PageCount() != 2 {
				t.Fatalf("PageCount() = %d, want 2", p2.PageCount())
			}
			got := p2.Get(1)
			if got == nil {
				t.Fatal("Get(1) = nil")
			}
			recs := got.Records()
			if len(recs) != 2 || string(recs[0].Payload) != "hello" || got.Next != 9 {
				t.Errorf("reloaded page = %+v records %d", got, len(recs))
			}
			if got.IsDirty() {
				t.Error("page read from disk is dirty")
			}
		})
	}
}

func TestCompressionStats(t *testing.T) {
	p, _ := openTemp(t, DefaultOptions())
	page, _ := p.Allocate(PageTable)
	page.AppendRecord(bytes.Repeat([]byte("a"), 1000))
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	s := p.Stats()
	if s.CompressedWrites == 0 {
		t.Errorf("Stats() = %+v, want compressed writes", s)
	}
	if s.DirtyPages != 0 {
		t.Errorf("DirtyPages = %d after Flush", s.DirtyPages)
	}
}

func TestIncompressiblePageStoredRaw(t *testing.T) {
	p, path := openTemp(t, Options{PageSize: MinPageSize, CacheSize: 10, CompressionLevel: 9})
	page, _ := p.Allocate(PageTable)

	// Pseudo-random bytes ending in zeros: the raw image must survive the
	// zero-stripping read path.
	payload := make([]byte, MinPageSize-PageHeaderSize-RecordHeaderSize)
	x := uint32(2463534242)
	for i := range payload[:len(payload)-16] {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		payload[i] = byte(x)
	}
	page.AppendRecord(payload)
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	if p.Stats().RawWrites == 0 {
		t.Fatal("expected the page to be stored raw")
	}
	p.Close()

	p2, err := Open(path, Options{CacheSize: 10, CompressionLevel: 9})
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Close()
	got := p2.Get(1)
	if got == nil {
		t.Fatal("Get(1) = nil for raw page")
	}
	if recs := got.Records(); len(recs) != 1 || !bytes.Equal(recs[0].Payload, payload) {
		t.Error("raw page payload mismatch")
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	badMagic := filepath.Join(dir, "magic.rbx")
	hdr := NewFileHeader(DefaultPageSize).Encode()
	copy(hdr, "XXXXX")
	os.WriteFile(badMagic, hdr, 0o644)

	badVersion := filepath.Join(dir, "version.rbx")
	hdr = NewFileHeader(DefaultPageSize).Encode()
	binary.LittleEndian.PutUint16(hdr[5:7], 99)
	os.WriteFile(badVersion, hdr, 0o644)

	truncated := filepath.Join(dir, "short.rbx")
	os.WriteFile(truncated, []byte("RBX"), 0o644)

	tests := []struct {
		name string
		path string
		opts Options
		want error
	}{
		{name: "bad magic", path: badMagic, want: ErrBadHeader},
		{name: "version mismatch", path: badVersion, want: ErrVersionMismatch},
		{name: "truncated header", path: truncated, want: ErrBadHeader},
		{name: "bad page size", path: filepath.Join(dir, "new.rbx"), opts: Options{PageSize: 3000}, want: ErrInvalidPageSize},
		{name: "missing directory", path: filepath.Join(dir, "nope", "x.rbx"), want: os.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.path, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, dberrors.ErrOperational) {
				t.Errorf("Open() error = %v, want operational error", err)
			}
		})
	}
}

func TestGetMissingOrCorruptPage(t *testing.T) {
	p, path := openTemp(t, DefaultOptions())
	page, _ := p.Allocate(PageTable)
	page.AppendRecord([]byte("row"))
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	// Scribble over page 1's slot.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteAt(bytes.Repeat([]byte{0x42}, 64), SlotOffset(1, DefaultPageSize))
	f.Close()

	p2, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Close()

	if got := p2.Get(1); got != nil {
		t.Errorf("Get(corrupt) = %+v, want nil", got)
	}
	if got := p2.Get(50); got != nil {
		t.Errorf("Get(beyond end) = %+v, want nil", got)
	}
}

func TestWritePinsPageUntilFlush(t *testing.T) {
	p, _ := openTemp(t, Options{CacheSize: 1, CompressionLevel: 1})
	a, _ := p.Allocate(PageTable)
	b, _ := p.Allocate(PageTable)
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}

	got := p.Get(a.ID)
	got.AppendRecord([]byte("pinned"))
	if err := p.Write(got); err != nil {
		t.Fatal(err)
	}
	p.Get(b.ID) // would evict a clean page from a size-1 cache

	again := p.Get(a.ID)
	if len(again.Records()) != 1 {
		t.Error("dirty page lost before Flush")
	}
}

func TestAllocateLimits(t *testing.T) {
	p, _ := openTemp(t, DefaultOptions())
	p.nextID = MaxPageID + 1
	if _, err := p.Allocate(PageTable); !errors.Is(err, ErrPagerFull) {
		t.Errorf("Allocate() error = %v, want ErrPagerFull", err)
	}
}

func TestReadOnly(t *testing.T) {
	_, path := openTemp(t, DefaultOptions())

	p, err := Open(path, Options{ReadOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if _, err := p.Allocate(PageTable); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Allocate() error = %v, want ErrReadOnly", err)
	}
	if p.Get(0) == nil {
		t.Error("Get(0) = nil on read-only pager")
	}
}

func TestCloseTwice(t *testing.T) {
	p, _ := openTemp(t, DefaultOptions())
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if p.Get(0) != nil {
		t.Error("Get() after Close returned a page")
	}
	if _, err := p.Allocate(PageTable); !errors.Is(err, ErrClosed) {
		t.Errorf("Allocate() after Close error = %v", err)
	}
}

func TestInspect(t *testing.T) {
	p, path := openTemp(t, DefaultOptions())
	for i := 0; i < 3; i++ {
		page, _ := p.Allocate(PageTable)
		page.AppendRecord(bytes.Repeat([]byte{byte(i)}, 100))
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if len(r.Pages) != 4 {
		t.Fatalf("len(Pages) = %d, want 4", len(r.Pages))
	}
	if r.ByType[PageMeta] != 1 || r.ByType[PageTable] != 3 {
		t.Errorf("ByType = %v", r.ByType)
	}
	if !r.Pages[1].Compressed || r.Pages[1].StoredBytes >= DefaultPageSize {
		t.Errorf("page 1 = %+v, want compressed", r.Pages[1])
	}
	if r.Size != 5*DefaultPageSize {
		t.Errorf("Size = %d", r.Size)
	}
}
