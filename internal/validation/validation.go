// Package validation checks user-supplied paths and names before they reach
// the storage layer, and identifies database files by their magic bytes.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// Limits on user-supplied input.
const (
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
	// MaxIdentifierLength is the maximum allowed table, column or index name length.
	MaxIdentifierLength = 128
	// ReservedPrefix starts the names of system tables.
	ReservedPrefix = "__"
)

// Common validation errors.
var (
	ErrEmptyPath         = errors.New("path cannot be empty")
	ErrPathTooLong       = errors.New("path too long")
	ErrInvalidCharacter  = errors.New("invalid character")
	ErrEmptyIdentifier   = errors.New("identifier cannot be empty")
	ErrIdentifierTooLong = errors.New("identifier too long")
	ErrReservedName      = errors.New("reserved name")
	ErrFileType          = errors.New("unexpected file type")
)

// ValidatePath checks length limits and rejects null bytes and control
// characters. It does not touch the filesystem.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// ValidateIdentifier checks a name coming from outside RibbitDB, such as a
// SQLite table, before it is used in generated SQL. Names starting with
// ReservedPrefix belong to the catalog.
func ValidateIdentifier(name string) error {
	if name == "" {
		return ErrEmptyIdentifier
	}
	if len(name) > MaxIdentifierLength {
		return fmt.Errorf("%w: %d characters (max %d)", ErrIdentifierTooLong, len(name), MaxIdentifierLength)
	}
	if strings.HasPrefix(name, ReservedPrefix) {
		return fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	for _, r := range name {
		if unicode.IsControl(r) || r == '"' {
			return fmt.Errorf("%w in %q", ErrInvalidCharacter, name)
		}
	}
	return nil
}

// FileType is the kind of file detected from its first bytes.
type FileType string

const (
	FileTypeRibbit  FileType = "ribbit"
	FileTypeWAL     FileType = "wal"
	FileTypeSQLite  FileType = "sqlite"
	FileTypeEmpty   FileType = "empty"
	FileTypeUnknown FileType = "unknown"
)

// magicBytes defines magic byte signatures for file type detection.
var magicBytes = []struct {
	fileType FileType
	magic    []byte
}{
	{FileTypeRibbit, []byte("RBXDB")},
	{FileTypeWAL, []byte("RWAL")},
	{FileTypeSQLite, []byte("SQLite format 3\x00")},
}

// DetectFileType reads the start of r and reports which kind of file it is.
func DetectFileType(r io.Reader) (FileType, error) {
	buf := make([]byte, 16)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	buf = buf[:n]
	if n == 0 {
		return FileTypeEmpty, nil
	}
	for _, sig := range magicBytes {
		if bytes.HasPrefix(buf, sig.magic) {
			return sig.fileType, nil
		}
	}
	return FileTypeUnknown, nil
}

// DetectFile opens path and detects its type.
func DetectFile(path string) (FileType, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileTypeUnknown, err
	}
	defer f.Close()
	return DetectFileType(f)
}

// ExpectFileType returns an error wrapping ErrFileType unless the file at
// path is of type want. A missing or empty file is accepted when
// allowNew is set, since opening it creates a fresh one.
func ExpectFileType(path string, want FileType, allowNew bool) error {
	got, err := DetectFile(path)
	if err != nil {
		if allowNew && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if got == want || (allowNew && got == FileTypeEmpty) {
		return nil
	}
	return fmt.Errorf("%w: %s is %s, want %s", ErrFileType, path, got, want)
}
