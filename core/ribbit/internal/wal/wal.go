// Package wal implements the replication log: an append-only file of
// statements that changed a database, each with its bound arguments.
//
// The log is written after a statement succeeds and is never replayed
// when a database is opened. Followers read it with ReadFrom.
package wal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/s2"
	"github.com/zeebo/blake3"

	dberrors "github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/record"
	"github.com/FocuswithJustin/RibbitDB/internal/logging"
)

/*
Each frame is a fixed header followed by the s2-compressed entry body.

| offset | size | description                         |
|--------|------|-------------------------------------|
| 0      | 4    | Magic "RWAL"                        |
| 4      | 1    | Frame version                       |
| 5      | 8    | Log sequence number                 |
| 13     | 8    | Unix time in nanoseconds            |
| 21     | 16   | Entry id (UUID)                     |
| 37     | 4    | Size of the uncompressed body       |
| 41     | 4    | Size of the compressed body         |
| 45     | 32   | BLAKE3 digest of the uncompressed body |

The body is sql_len:u32 | sql | record.Encode(args). Integers are little
endian.
*/
const (
	Magic      = "RWAL"
	Version    = 1
	HeaderSize = 77

	// MaxBodySize bounds a single entry so a corrupt length cannot force a
	// huge allocation.
	MaxBodySize = 64 << 20
)

var (
	// ErrCorrupt indicates a frame with a bad magic, version or digest.
	ErrCorrupt = errors.New("corrupt log frame")
	// ErrTorn indicates a frame cut short by the end of the file.
	ErrTorn = errors.New("torn log frame")
	// ErrClosed is returned by operations on a closed log.
	ErrClosed = errors.New("log is closed")
)

// Entry is one logged statement.
type Entry struct {
	LSN  uint64
	Time time.Time
	ID   uuid.UUID
	SQL  string
	Args []any
}

// Log is an open replication log. It is not safe for concurrent use.
type Log struct {
	path string
	f    *os.File
	lsn  uint64
	size int64
	now  func() time.Time
}

// Open opens or creates the log at path. It scans existing frames to find
// the last LSN and cuts the file after the last intact frame.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dberrors.NewOperational("open log", path, err)
	}

	l := &Log{path: path, f: f, now: time.Now}
	good, last, err := scan(f, func(Entry) bool { return true })
	if err != nil && !errors.Is(err, ErrTorn) && !errors.Is(err, ErrCorrupt) {
		f.Close()
		return nil, dberrors.NewOperational("scan log", path, err)
	}
	if err != nil {
		logging.Warn("replication log damaged, truncating", "path", path, "offset", good, "error", err)
		if terr := f.Truncate(good); terr != nil {
			f.Close()
			return nil, dberrors.NewOperational("truncate log", path, terr)
		}
	}
	if _, err := f.Seek(good, io.SeekStart); err != nil {
		f.Close()
		return nil, dberrors.NewOperational("seek log", path, err)
	}
	l.lsn = last
	l.size = good
	return l, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// LSN returns the sequence number of the last appended entry, 0 when the
// log is empty.
func (l *Log) LSN() uint64 {
	return l.lsn
}

// Size returns the byte length of the intact frames.
func (l *Log) Size() int64 {
	return l.size
}

// Append writes one entry with the next LSN. Args must be normalized
// storage values.
func (l *Log) Append(sql string, args []any) (Entry, error) {
	if l.f == nil {
		return Entry{}, ErrClosed
	}
	e := Entry{LSN: l.lsn + 1, Time: l.now(), ID: uuid.New(), SQL: sql, Args: args}
	frame, err := encodeFrame(e)
	if err != nil {
		return Entry{}, err
	}
	if _, err := l.f.Write(frame); err != nil {
		return Entry{}, dberrors.NewOperational("append log", l.path, err)
	}
	l.lsn = e.LSN
	l.size += int64(len(frame))
	logging.ReplicationAppend(e.LSN, len(frame))
	return e, nil
}

// Sync flushes appended frames to stable storage.
func (l *Log) Sync() error {
	if l.f == nil {
		return ErrClosed
	}
	if err := l.f.Sync(); err != nil {
		return dberrors.NewOperational("sync log", l.path, err)
	}
	return nil
}

// ReadFrom returns every entry with an LSN strictly greater than lsn.
func (l *Log) ReadFrom(lsn uint64) ([]Entry, error) {
	if l.f == nil {
		return nil, ErrClosed
	}
	r := io.NewSectionReader(l.f, 0, l.size)
	return collect(r, lsn)
}

// ReadFile reads the entries after lsn from the log at path without
// opening it for writing. It stops quietly at a damaged tail.
func ReadFile(path string, lsn uint64) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dberrors.NewOperational("open log", path, err)
	}
	defer f.Close()
	return collect(f, lsn)
}

func collect(r io.Reader, lsn uint64) ([]Entry, error) {
	var out []Entry
	_, _, err := scan(r, func(e Entry) bool {
		if e.LSN > lsn {
			out = append(out, e)
		}
		return true
	})
	if err != nil && !errors.Is(err, ErrTorn) && !errors.Is(err, ErrCorrupt) {
		return nil, err
	}
	return out, nil
}

// Truncate drops every entry with an LSN at or below lsn. The survivors
// are copied to a temporary file that replaces the log. Numbering
// continues from LSN(); a log reopened with no entries starts again at 1.
func (l *Log) Truncate(lsn uint64) error {
	if l.f == nil {
		return ErrClosed
	}
	keep, err := l.ReadFrom(lsn)
	if err != nil {
		return err
	}

	tmpPath := l.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return dberrors.NewOperational("truncate log", tmpPath, err)
	}
	var size int64
	w := bufio.NewWriter(tmp)
	for _, e := range keep {
		frame, err := encodeFrame(e)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
		w.Write(frame)
		size += int64(len(frame))
	}
	err = w.Flush()
	if err == nil {
		err = tmp.Sync()
	}
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return dberrors.NewOperational("truncate log", tmpPath, err)
	}

	l.f.Close()
	if err := os.Rename(tmpPath, l.path); err != nil {
		tmp.Close()
		l.f = nil
		return dberrors.NewOperational("truncate log", l.path, err)
	}
	if _, err := tmp.Seek(size, io.SeekStart); err != nil {
		tmp.Close()
		l.f = nil
		return dberrors.NewOperational("truncate log", l.path, err)
	}
	l.f = tmp
	l.size = size
	return nil
}

// Close syncs and closes the file. It is safe to call more than once.
func (l *Log) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Sync()
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	if err != nil {
		return dberrors.NewOperational("close log", l.path, err)
	}
	return nil
}

func encodeBody(sql string, args []any) ([]byte, error) {
	enc, err := record.Encode(args)
	if err != nil {
		return nil, fmt.Errorf("encode log arguments: %w", err)
	}
	body := make([]byte, 4, 4+len(sql)+len(enc))
	binary.LittleEndian.PutUint32(body, uint32(len(sql)))
	body = append(body, sql...)
	return append(body, enc...), nil
}

func decodeBody(body []byte) (string, []any, error) {
	if len(body) < 4 {
		return "", nil, ErrCorrupt
	}
	n := int(binary.LittleEndian.Uint32(body))
	if n > len(body)-4 {
		return "", nil, ErrCorrupt
	}
	args, err := record.Decode(body[4+n:])
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return string(body[4 : 4+n]), args, nil
}

func encodeFrame(e Entry) ([]byte, error) {
	body, err := encodeBody(e.SQL, e.Args)
	if err != nil {
		return nil, err
	}
	if len(body) > MaxBodySize {
		return nil, dberrors.NewValidation("statement", fmt.Sprintf("log entry of %d bytes exceeds %d", len(body), MaxBodySize))
	}
	compressed := s2.Encode(nil, body)
	sum := blake3.Sum256(body)

	frame := make([]byte, HeaderSize+len(compressed))
	copy(frame[0:4], Magic)
	frame[4] = Version
	binary.LittleEndian.PutUint64(frame[5:13], e.LSN)
	binary.LittleEndian.PutUint64(frame[13:21], uint64(e.Time.UnixNano()))
	copy(frame[21:37], e.ID[:])
	binary.LittleEndian.PutUint32(frame[37:41], uint32(len(body)))
	binary.LittleEndian.PutUint32(frame[41:45], uint32(len(compressed)))
	copy(frame[45:77], sum[:])
	copy(frame[HeaderSize:], compressed)
	return frame, nil
}

// readFrame reads one frame. It returns io.EOF at a clean end of input.
func readFrame(r io.Reader) (Entry, int64, error) {
	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, header)
	if err == io.EOF {
		return Entry{}, 0, io.EOF
	}
	if err != nil {
		return Entry{}, 0, fmt.Errorf("%w: header has %d of %d bytes", ErrTorn, n, HeaderSize)
	}
	if string(header[0:4]) != Magic {
		return Entry{}, 0, fmt.Errorf("%w: bad magic %q", ErrCorrupt, header[0:4])
	}
	if header[4] != Version {
		return Entry{}, 0, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, header[4])
	}

	rawLen := binary.LittleEndian.Uint32(header[37:41])
	compLen := binary.LittleEndian.Uint32(header[41:45])
	if rawLen > MaxBodySize || compLen > uint32(s2.MaxEncodedLen(MaxBodySize)) {
		return Entry{}, 0, fmt.Errorf("%w: body length %d/%d", ErrCorrupt, rawLen, compLen)
	}
	compressed := make([]byte, compLen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return Entry{}, 0, fmt.Errorf("%w: body cut short", ErrTorn)
	}
	body, err := s2.Decode(nil, compressed)
	if err != nil || len(body) != int(rawLen) {
		return Entry{}, 0, fmt.Errorf("%w: body does not decompress", ErrCorrupt)
	}
	sum := blake3.Sum256(body)
	if !bytes.Equal(sum[:], header[45:77]) {
		return Entry{}, 0, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}
	sql, args, err := decodeBody(body)
	if err != nil {
		return Entry{}, 0, err
	}

	e := Entry{
		LSN:  binary.LittleEndian.Uint64(header[5:13]),
		Time: time.Unix(0, int64(binary.LittleEndian.Uint64(header[13:21]))),
		SQL:  sql,
		Args: args,
	}
	copy(e.ID[:], header[21:37])
	return e, int64(HeaderSize) + int64(compLen), nil
}

// scan calls fn for each intact frame until fn returns false, the input
// ends or a damaged frame is found. It returns the byte length of the
// intact prefix and the last LSN seen.
func scan(r io.Reader, fn func(Entry) bool) (int64, uint64, error) {
	br := bufio.NewReader(r)
	var offset int64
	var last uint64
	for {
		e, n, err := readFrame(br)
		if err == io.EOF {
			return offset, last, nil
		}
		if err != nil {
			return offset, last, err
		}
		offset += n
		last = e.LSN
		if !fn(e) {
			return offset, last, nil
		}
	}
}
