// Package record encodes row values into the tagged byte form stored in
// table pages and protects each row with a BLAKE3 digest.
//
// Encoded values:
//
//	count:u16 | { tag:u8 | data }*
//
// where data is 8 little-endian bytes for integers and reals and
// len:u32 followed by raw bytes for text, blobs and "other" values.
// A row payload is the encoded values followed by the 32-byte digest of
// those same bytes.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/zeebo/blake3"
)

// Value tags.
const (
	TagNull  byte = 0
	TagInt   byte = 1
	TagReal  byte = 2
	TagText  byte = 3
	TagBlob  byte = 4
	TagOther byte = 5
)

// HashSize is the size of a row digest in bytes.
const HashSize = 32

// MaxValues is the largest number of values a single row may hold.
const MaxValues = math.MaxUint16

// Hash is a row integrity digest.
type Hash [HashSize]byte

// Other wraps a value that has no dedicated tag. It is stored as text and
// decoded back into Other.
type Other string

var (
	// ErrTruncated indicates encoded bytes that end early.
	ErrTruncated = errors.New("record truncated")
	// ErrBadTag indicates an unknown value tag.
	ErrBadTag = errors.New("unknown value tag")
	// ErrChecksum indicates a payload whose digest does not match its values.
	ErrChecksum = errors.New("row checksum mismatch")
	// ErrTrailing indicates bytes left over after the last value.
	ErrTrailing = errors.New("trailing bytes after record")
)

// Encode produces the deterministic tagged encoding of values.
// Values must already be normalized (see Normalize).
func Encode(values []any) ([]byte, error) {
	if len(values) > MaxValues {
		return nil, fmt.Errorf("row has %d values, max %d", len(values), MaxValues)
	}
	buf := make([]byte, 2, 2+len(values)*9)
	binary.LittleEndian.PutUint16(buf, uint16(len(values)))
	for i, v := range values {
		var err error
		if buf, err = appendValue(buf, v); err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
	}
	return buf, nil
}

func appendValue(buf []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(buf, TagNull), nil
	case int64:
		buf = append(buf, TagInt)
		return binary.LittleEndian.AppendUint64(buf, uint64(x)), nil
	case float64:
		buf = append(buf, TagReal)
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(x)), nil
	case string:
		return appendBytes(append(buf, TagText), []byte(x)), nil
	case []byte:
		return appendBytes(append(buf, TagBlob), x), nil
	case Other:
		return appendBytes(append(buf, TagOther), []byte(x)), nil
	}
	return nil, fmt.Errorf("cannot encode %T", v)
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// Decode parses bytes produced by Encode.
func Decode(b []byte) ([]any, error) {
	values, n, err := decode(b)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, ErrTrailing
	}
	return values, nil
}

// decode returns the values and the number of bytes consumed.
func decode(b []byte) ([]any, int, error) {
	if len(b) < 2 {
		return nil, 0, ErrTruncated
	}
	count := int(binary.LittleEndian.Uint16(b))
	pos := 2
	values := make([]any, 0, count)
	for i := 0; i < count; i++ {
		if pos >= len(b) {
			return nil, 0, ErrTruncated
		}
		tag := b[pos]
		pos++
		switch tag {
		case TagNull:
			values = append(values, nil)
		case TagInt, TagReal:
			if pos+8 > len(b) {
				return nil, 0, ErrTruncated
			}
			bits := binary.LittleEndian.Uint64(b[pos:])
			pos += 8
			if tag == TagInt {
				values = append(values, int64(bits))
			} else {
				values = append(values, math.Float64frombits(bits))
			}
		case TagText, TagBlob, TagOther:
			if pos+4 > len(b) {
				return nil, 0, ErrTruncated
			}
			n := int(binary.LittleEndian.Uint32(b[pos:]))
			pos += 4
			if n < 0 || pos+n > len(b) {
				return nil, 0, ErrTruncated
			}
			raw := b[pos : pos+n]
			pos += n
			switch tag {
			case TagText:
				values = append(values, string(raw))
			case TagBlob:
				blob := make([]byte, len(raw))
				copy(blob, raw)
				values = append(values, blob)
			default:
				values = append(values, Other(raw))
			}
		default:
			return nil, 0, fmt.Errorf("%w %d at offset %d", ErrBadTag, tag, pos-1)
		}
	}
	return values, pos, nil
}

// Digest returns the BLAKE3-256 digest of b.
func Digest(b []byte) Hash {
	return Hash(blake3.Sum256(b))
}

// Verify reports whether hash is the digest of the encoding of values.
func Verify(values []any, hash Hash) bool {
	b, err := Encode(values)
	if err != nil {
		return false
	}
	return Digest(b) == hash
}

// EncodeRow returns the page payload for a row: encoded values + digest.
func EncodeRow(values []any) ([]byte, error) {
	b, err := Encode(values)
	if err != nil {
		return nil, err
	}
	h := Digest(b)
	return append(b, h[:]...), nil
}

// DecodeRow parses and verifies a row payload.
func DecodeRow(payload []byte) ([]any, error) {
	if len(payload) < HashSize+2 {
		return nil, ErrTruncated
	}
	body := payload[:len(payload)-HashSize]
	var h Hash
	copy(h[:], payload[len(payload)-HashSize:])
	if Digest(body) != h {
		return nil, ErrChecksum
	}
	return Decode(body)
}
