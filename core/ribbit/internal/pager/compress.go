package pager

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// Compression levels. Level 0 stores every page raw; levels 1-9 select the
// LZMA dictionary size.
const (
	NoCompression      = 0
	DefaultCompression = 6
	MaxCompression     = 9
)

// Compressor compresses page images into xz streams.
type Compressor struct {
	level int
	wcfg  xz.WriterConfig
}

// NewCompressor returns a compressor for the given level.
func NewCompressor(level int) (*Compressor, error) {
	if level < NoCompression || level > MaxCompression {
		return nil, fmt.Errorf("compression level %d out of range 0-%d", level, MaxCompression)
	}
	return &Compressor{
		level: level,
		wcfg: xz.WriterConfig{
			DictCap:  1 << (12 + level),
			CheckSum: xz.CRC32,
		},
	}, nil
}

// Enabled reports whether pages are compressed at all.
func (c *Compressor) Enabled() bool {
	return c.level > NoCompression
}

// Compress returns the xz stream for data.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := c.wcfg.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress page: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish xz stream: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates an xz stream produced by Compress.
func Decompress(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create xz reader: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress page: %w", err)
	}
	return out, nil
}

// trimZeros strips the zero padding after a stored image.
func trimZeros(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}
