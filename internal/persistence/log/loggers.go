package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"gridnav.dev/internal/sim/world"
)

const hourLayout = "2006-01-02-15"

// segment is one open hourly file. Reopening an hour appends a new zstd
// frame; readers decode concatenated frames transparently.
type segment struct {
	hour string
	path string
	f    *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
}

func openSegment(path, hour string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("zstd %s: %w", path, err)
	}
	return &segment{hour: hour, path: path, f: f, zw: zw, buf: bufio.NewWriterSize(zw, 64*1024)}, nil
}

// writeLine pushes one record through to the file so a crash loses at most
// the line being written.
func (s *segment) writeLine(b []byte) error {
	if _, err := s.buf.Write(b); err != nil {
		return err
	}
	if err := s.buf.WriteByte('\n'); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.zw.Flush()
}

func (s *segment) close() error {
	return errors.Join(s.buf.Flush(), s.zw.Close(), s.f.Close())
}

// Stream appends records of one type as JSON lines to hourly zstd files
// named <prefix>-YYYY-MM-DD-HH.jsonl.zst under dir. Safe for concurrent use.
type Stream[T any] struct {
	dir    string
	prefix string
	now    func() time.Time

	mu    sync.Mutex
	cur   *segment
	lines uint64
}

func NewStream[T any](dir, prefix string) *Stream[T] {
	return &Stream[T]{dir: dir, prefix: prefix, now: time.Now}
}

func (s *Stream[T]) Append(v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", s.prefix, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	hour := s.now().UTC().Format(hourLayout)
	if s.cur == nil || s.cur.hour != hour {
		if err := s.rotateLocked(hour); err != nil {
			return err
		}
	}
	if err := s.cur.writeLine(b); err != nil {
		return fmt.Errorf("%s: write: %w", s.prefix, err)
	}
	s.lines++
	return nil
}

func (s *Stream[T]) rotateLocked(hour string) error {
	if s.cur != nil {
		err := s.cur.close()
		s.cur = nil
		if err != nil {
			return fmt.Errorf("%s: close segment: %w", s.prefix, err)
		}
	}
	seg, err := openSegment(filepath.Join(s.dir, fmt.Sprintf("%s-%s.jsonl.zst", s.prefix, hour)), hour)
	if err != nil {
		return err
	}
	s.cur = seg
	return nil
}

// Path is the file currently being written, or "" before the first Append.
func (s *Stream[T]) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return ""
	}
	return s.cur.path
}

// Lines counts records appended since the stream was created.
func (s *Stream[T]) Lines() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

func (s *Stream[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	err := s.cur.close()
	s.cur = nil
	return err
}

// TickLogger is the world's tick log; cmd/replay reads it with ForEachTick.
type TickLogger struct {
	*Stream[world.TickLogEntry]
}

func NewTickLogger(worldDir string) *TickLogger {
	return &TickLogger{NewStream[world.TickLogEntry](filepath.Join(worldDir, "events"), "events")}
}

func (l *TickLogger) WriteTick(e world.TickLogEntry) error { return l.Append(e) }

// AuditLogger records one line per applied search.
type AuditLogger struct {
	*Stream[world.AuditEntry]
}

func NewAuditLogger(worldDir string) *AuditLogger {
	return &AuditLogger{NewStream[world.AuditEntry](filepath.Join(worldDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(e world.AuditEntry) error { return l.Append(e) }
