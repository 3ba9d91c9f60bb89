package pager

import (
	"os"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
)

// PageInfo summarizes one page slot.
type PageInfo struct {
	ID          uint32
	Type        PageType
	RecordCount uint16
	FreeSpace   uint16
	Next        uint32
	Prev        uint32
	Compressed  bool
	StoredBytes int
	Err         error // set when the slot could not be decoded
}

// Report describes a database file without modifying it.
type Report struct {
	Path     string
	Size     int64
	Header   FileHeader
	Pages    []PageInfo
	ByType   map[PageType]int
	Unusable int
}

// Inspect opens path read-only and summarizes its header and every page.
func Inspect(path string) (*Report, error) {
	p, err := Open(path, Options{CompressionLevel: NoCompression, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer p.Close()

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewOperational("stat", path, err)
	}

	r := &Report{
		Path:   path,
		Size:   info.Size(),
		Header: *NewFileHeader(p.pageSize),
		ByType: make(map[PageType]int),
	}
	for id := uint32(0); id < p.nextID; id++ {
		pi := PageInfo{ID: id}
		page, compressed, err := p.readPage(id)
		if err != nil {
			pi.Err = err
			r.Unusable++
			r.Pages = append(r.Pages, pi)
			continue
		}
		pi.Type = page.Type
		pi.RecordCount = page.RecordCount
		pi.FreeSpace = page.FreeSpace
		pi.Next = page.Next
		pi.Prev = page.Prev
		pi.Compressed = compressed
		pi.StoredBytes = p.pageSize
		if compressed {
			pi.StoredBytes = p.storedLen(id)
		}
		r.ByType[page.Type]++
		r.Pages = append(r.Pages, pi)
	}
	return r, nil
}

// storedLen returns the slot length without zero padding.
func (p *Pager) storedLen(id uint32) int {
	buf := make([]byte, p.pageSize)
	if _, err := p.file.ReadAt(buf, SlotOffset(id, p.pageSize)); err != nil {
		return 0
	}
	return len(trimZeros(buf))
}
