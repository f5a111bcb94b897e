package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/newtron-network/newtnet/pkg/util"
)

// Logger is where the drain records processed actions.
type Logger interface {
	Log(event *Event) error
	Query(filter Filter) ([]*Event, error)
	Close() error
}

// rotationLayout is embedded in rotated file names. It sorts lexically in
// rotation order.
const rotationLayout = "20060102T150405.000000"

// maxLine bounds one encoded event; switch errors can carry console output.
const maxLine = 1 << 20

// RotationConfig configures log file rotation
type RotationConfig struct {
	MaxSize    int64 // Max file size in bytes before rotation
	MaxBackups int   // Max number of old files to retain
}

// FileLogger appends events to a JSON-lines file. A write that would take
// the file past MaxSize first renames it with the rotation time inserted
// ahead of the extension (audit.jsonl becomes
// audit-20261014T101500.000000.jsonl). Rotated files are part of the trail:
// Query reads them oldest first, then the live file.
type FileLogger struct {
	path     string
	rotation RotationConfig

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewFileLogger opens path for appending, creating its directory.
func NewFileLogger(path string, rotation RotationConfig) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	l := &FileLogger{path: path, rotation: rotation}
	if err := l.open(); err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return l, nil
}

func (l *FileLogger) open() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	l.file, l.size = file, info.Size()
	return nil
}

// Log appends event as one line.
func (l *FileLogger) Log(event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event %s: %w", event.ID, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return os.ErrClosed
	}
	if limit := l.rotation.MaxSize; limit > 0 && l.size > 0 && l.size+int64(len(line)) > limit {
		if err := l.rotate(time.Now()); err != nil {
			return fmt.Errorf("rotating audit log: %w", err)
		}
	}
	n, err := l.file.Write(line)
	l.size += int64(n)
	return err
}

// Query returns the matching events of the whole trail, oldest first.
func (l *FileLogger) Query(filter Filter) ([]*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ReadTrail(l.path, filter)
}

// Close closes the live file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *FileLogger) rotate(now time.Time) error {
	if err := l.file.Close(); err != nil {
		return err
	}
	l.file = nil
	name := rotatedName(l.path, now)
	for {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			break
		}
		now = now.Add(time.Microsecond)
		name = rotatedName(l.path, now)
	}
	if err := os.Rename(l.path, name); err != nil {
		return err
	}
	if err := l.open(); err != nil {
		return err
	}

	if l.rotation.MaxBackups > 0 {
		backups := rotatedFiles(l.path)
		for _, old := range backups[:max(0, len(backups)-l.rotation.MaxBackups)] {
			if err := os.Remove(old); err != nil {
				util.Warnf("audit: removing %s: %v", old, err)
			}
		}
	}
	return nil
}

func splitExt(path string) (string, string) {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext), ext
}

func rotatedName(path string, t time.Time) string {
	base, ext := splitExt(path)
	return base + "-" + t.UTC().Format(rotationLayout) + ext
}

// rotatedFiles lists the rotated files of path, oldest first. Files that
// only look like rotations are ignored.
func rotatedFiles(path string) []string {
	base, ext := splitExt(path)
	matches, err := filepath.Glob(base + "-*" + ext)
	if err != nil {
		return nil
	}
	var files []string
	for _, m := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(m, base+"-"), ext)
		if _, err := time.Parse(rotationLayout, stamp); err == nil {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files
}

// ReadTrail queries the audit trail kept at path, including its rotated
// files, without opening it for writing. Files last written before
// filter.StartTime are skipped unread. Offset and Limit page the merged
// result.
func ReadTrail(path string, filter Filter) ([]*Event, error) {
	events := []*Event{}
	for _, file := range append(rotatedFiles(path), path) {
		if !filter.StartTime.IsZero() {
			if info, err := os.Stat(file); err == nil && info.ModTime().Before(filter.StartTime) {
				continue
			}
		}
		found, err := readFile(file, filter)
		if err != nil {
			return nil, err
		}
		events = append(events, found...)
	}

	if filter.Offset > 0 {
		events = events[min(filter.Offset, len(events)):]
	}
	if filter.Limit > 0 && filter.Limit < len(events) {
		events = events[:filter.Limit]
	}
	return events, nil
}

// readFile returns the matching events of one file. A missing file has none.
func readFile(path string, filter Filter) ([]*Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []*Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLine)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			util.Warnf("audit: %s:%d: skipping malformed entry: %v", filepath.Base(path), lineNum, err)
			continue
		}
		if filter.Matches(&event) {
			events = append(events, &event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return events, nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Log(*Event) error               { return nil }
func (Nop) Query(Filter) ([]*Event, error) { return []*Event{}, nil }
func (Nop) Close() error                   { return nil }
