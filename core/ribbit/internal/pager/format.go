// Package pager implements the RBXDB file format and page management.
//
// The pager owns the database file, reads and writes fixed-size page slots,
// compresses page images with LZMA, and keeps recently used pages in an LRU
// cache. Dirty pages stay pinned in memory until Flush.
package pager

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// File format constants
const (
	// Magic tags the file header and every page header.
	Magic = "RBXDB"

	// FormatVersion is the on-disk format version written to new files.
	FormatVersion uint16 = 1

	// DefaultPageSize is the default page size for new databases.
	DefaultPageSize = 4096

	// MinPageSize is the minimum allowed page size.
	MinPageSize = 1024

	// MaxPageSize is the maximum allowed page size. Free space is a u16.
	MaxPageSize = 32768

	// PageHeaderSize is the padded size of a page header.
	PageHeaderSize = 32

	// fileHeaderLen is the number of meaningful bytes in the file header.
	fileHeaderLen = 5 + 2 + 4 + 4 + 4

	// pageHeaderLen is the number of meaningful bytes in a page header.
	pageHeaderLen = 5 + 2 + 4 + 2 + 2 + 4 + 4

	// MaxPageID is the largest page id representable in a page header.
	MaxPageID = 0xFFFF
)

// FileHeader is the page-sized header at the start of every database file.
type FileHeader struct {
	Magic     [5]byte
	Version   uint16
	PageSize  uint32
	Reserved1 uint32
	Reserved2 uint32
}

// NewFileHeader returns the header for a new file with the given page size.
func NewFileHeader(pageSize int) *FileHeader {
	h := &FileHeader{Version: FormatVersion, PageSize: uint32(pageSize)}
	copy(h.Magic[:], Magic)
	return h
}

// Encode serializes the header zero-padded to the page size.
func (h *FileHeader) Encode() []byte {
	buf := make([]byte, h.PageSize)
	copy(buf[0:5], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[5:7], h.Version)
	binary.LittleEndian.PutUint32(buf[7:11], h.PageSize)
	binary.LittleEndian.PutUint32(buf[11:15], h.Reserved1)
	binary.LittleEndian.PutUint32(buf[15:19], h.Reserved2)
	return buf
}

// ParseFileHeader decodes and validates a file header.
func ParseFileHeader(data []byte) (*FileHeader, error) {
	if len(data) < fileHeaderLen {
		return nil, fmt.Errorf("%w: header is %d bytes", ErrBadHeader, len(data))
	}
	h := &FileHeader{}
	copy(h.Magic[:], data[0:5])
	h.Version = binary.LittleEndian.Uint16(data[5:7])
	h.PageSize = binary.LittleEndian.Uint32(data[7:11])
	h.Reserved1 = binary.LittleEndian.Uint32(data[11:15])
	h.Reserved2 = binary.LittleEndian.Uint32(data[15:19])

	if !bytes.Equal(h.Magic[:], []byte(Magic)) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadHeader, h.Magic[:])
	}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrVersionMismatch, h.Version, FormatVersion)
	}
	if err := ValidatePageSize(int(h.PageSize)); err != nil {
		return nil, err
	}
	return h, nil
}

// ValidatePageSize checks that size is a power of two in range.
func ValidatePageSize(size int) error {
	if size < MinPageSize || size > MaxPageSize || size&(size-1) != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, size)
	}
	return nil
}

// SlotOffset returns the file offset of page id's slot.
func SlotOffset(id uint32, pageSize int) int64 {
	return int64(pageSize) * (int64(id) + 1)
}
