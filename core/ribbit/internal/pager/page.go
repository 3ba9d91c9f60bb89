package pager

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PageType identifies what a page holds.
type PageType uint32

// Page types
const (
	PageFree     PageType = 0
	PageTable    PageType = 1
	PageIndex    PageType = 2
	PageOverflow PageType = 3
	PageMeta     PageType = 4
)

func (t PageType) String() string {
	switch t {
	case PageFree:
		return "FREE"
	case PageTable:
		return "TABLE"
	case PageIndex:
		return "INDEX"
	case PageOverflow:
		return "OVERFLOW"
	case PageMeta:
		return "META"
	}
	return fmt.Sprintf("PageType(%d)", uint32(t))
}

// RecordHeaderSize is the length prefix in front of each record.
const RecordHeaderSize = 4

// Page is one fixed-size unit of storage: a header and a body of
// length-prefixed records packed from offset 0.
type Page struct {
	ID          uint32
	Type        PageType
	FreeSpace   uint16
	RecordCount uint16
	Next        uint32
	Prev        uint32
	Body        []byte

	dirty bool
}

// NewPage creates an empty page for the given page size.
func NewPage(id uint32, typ PageType, pageSize int) *Page {
	capacity := pageSize - PageHeaderSize
	return &Page{
		ID:        id,
		Type:      typ,
		FreeSpace: uint16(capacity),
		Body:      make([]byte, capacity),
	}
}

// Capacity returns the body size in bytes.
func (p *Page) Capacity() int {
	return len(p.Body)
}

// Used returns the number of body bytes occupied by records.
func (p *Page) Used() int {
	return len(p.Body) - int(p.FreeSpace)
}

// IsDirty reports whether the page changed since it was last written.
func (p *Page) IsDirty() bool {
	return p.dirty
}

// MarkDirty flags the page for the next flush.
func (p *Page) MarkDirty() {
	p.dirty = true
}

// Fits reports whether a payload of n bytes fits with its length prefix.
func (p *Page) Fits(n int) bool {
	return RecordHeaderSize+n <= int(p.FreeSpace)
}

// WriteRecord copies raw bytes at offset, counts one record and charges the
// free space. It fails when the bytes do not fit.
func (p *Page) WriteRecord(offset int, data []byte) bool {
	if offset < 0 || len(data) > int(p.FreeSpace) || offset+len(data) > len(p.Body) {
		return false
	}
	copy(p.Body[offset:], data)
	p.RecordCount++
	p.FreeSpace -= uint16(len(data))
	p.dirty = true
	return true
}

// AppendRecord writes length:u32 | payload at the end of the used area.
func (p *Page) AppendRecord(payload []byte) (int, bool) {
	if !p.Fits(len(payload)) {
		return 0, false
	}
	offset := p.Used()
	rec := make([]byte, RecordHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(rec, uint32(len(payload)))
	copy(rec[RecordHeaderSize:], payload)
	if !p.WriteRecord(offset, rec) {
		return 0, false
	}
	return offset, true
}

// ReadRecord returns length bytes at offset, or nil when out of range.
func (p *Page) ReadRecord(offset, length int) []byte {
	if offset < 0 || length < 0 || offset+length > len(p.Body) {
		return nil
	}
	return p.Body[offset : offset+length]
}

// Record is a payload together with its body offset.
type Record struct {
	Offset  int
	Payload []byte
}

// Records walks the length-prefixed records in the used area. It stops at
// a zero length or a length that runs past the used area.
func (p *Page) Records() []Record {
	var out []Record
	used := p.Used()
	for off := 0; off+RecordHeaderSize <= used; {
		n := int(binary.LittleEndian.Uint32(p.Body[off:]))
		if n == 0 || off+RecordHeaderSize+n > used {
			break
		}
		out = append(out, Record{Offset: off, Payload: p.Body[off+RecordHeaderSize : off+RecordHeaderSize+n]})
		off += RecordHeaderSize + n
	}
	return out
}

// Clear drops every record and resets the free space.
func (p *Page) Clear() {
	for i := range p.Body {
		p.Body[i] = 0
	}
	p.FreeSpace = uint16(len(p.Body))
	p.RecordCount = 0
	p.dirty = true
}

// Encode serializes the page image: padded header followed by the body.
func (p *Page) Encode() []byte {
	buf := make([]byte, PageHeaderSize+len(p.Body))
	copy(buf[0:5], Magic)
	binary.LittleEndian.PutUint16(buf[5:7], uint16(p.ID))
	binary.LittleEndian.PutUint32(buf[7:11], uint32(p.Type))
	binary.LittleEndian.PutUint16(buf[11:13], p.FreeSpace)
	binary.LittleEndian.PutUint16(buf[13:15], p.RecordCount)
	binary.LittleEndian.PutUint32(buf[15:19], p.Next)
	binary.LittleEndian.PutUint32(buf[19:23], p.Prev)
	copy(buf[PageHeaderSize:], p.Body)
	return buf
}

// DecodePage parses a page image. Images shorter than pageSize (trailing
// zeros stripped) are zero-extended.
func DecodePage(data []byte, pageSize int) (*Page, error) {
	if len(data) < pageHeaderLen {
		return nil, fmt.Errorf("%w: image is %d bytes", ErrCorruptPage, len(data))
	}
	if len(data) > pageSize {
		return nil, fmt.Errorf("%w: image is %d bytes, page size %d", ErrCorruptPage, len(data), pageSize)
	}
	if !bytes.Equal(data[0:5], []byte(Magic)) {
		return nil, fmt.Errorf("%w: bad page magic", ErrCorruptPage)
	}
	p := &Page{
		ID:          uint32(binary.LittleEndian.Uint16(data[5:7])),
		Type:        PageType(binary.LittleEndian.Uint32(data[7:11])),
		FreeSpace:   binary.LittleEndian.Uint16(data[11:13]),
		RecordCount: binary.LittleEndian.Uint16(data[13:15]),
		Next:        binary.LittleEndian.Uint32(data[15:19]),
		Prev:        binary.LittleEndian.Uint32(data[19:23]),
		Body:        make([]byte, pageSize-PageHeaderSize),
	}
	if int(p.FreeSpace) > len(p.Body) {
		return nil, fmt.Errorf("%w: free space %d exceeds body %d", ErrCorruptPage, p.FreeSpace, len(p.Body))
	}
	if len(data) > PageHeaderSize {
		copy(p.Body, data[PageHeaderSize:])
	}
	return p, nil
}
