package sdk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

const (
	logTailLines    = 100
	logFileMaxBytes = 2 * 1024 * 1024
	logFileMaxFiles = 5
	logFileName     = "loginpage.log"
)

var errLogDirEmpty = errors.New("log directory is empty")

// logFile mirrors SDK log output into a size-rotated file and keeps the
// last lines in memory.
type logFile struct {
	mu       sync.Mutex
	dir      string
	baseName string
	file     *os.File
	size     int64
	tail     []string
}

func newLogFile() *logFile {
	return &logFile{baseName: logFileName}
}

func (m *logFile) setDir(dir string) error {
	if dir == "" {
		return errLogDirEmpty
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dir == dir && m.file != nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if m.file != nil {
		_ = m.file.Close()
		m.file = nil
	}
	m.dir = dir
	return m.openLocked()
}

// Write implements io.Writer so the logger can tee into the file.
func (m *logFile) Write(p []byte) (int, error) {
	m.appendLine(string(p))
	return len(p), nil
}

func (m *logFile) appendLine(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendTailLocked(line)
	m.appendFileLocked(line)
}

func (m *logFile) appendTailLocked(line string) {
	for _, segment := range strings.Split(line, "\n") {
		if segment == "" {
			continue
		}
		m.tail = append(m.tail, segment)
		if len(m.tail) > logTailLines {
			m.tail = m.tail[len(m.tail)-logTailLines:]
		}
	}
}

func (m *logFile) appendFileLocked(line string) {
	if m.file == nil {
		return
	}
	n, err := m.file.WriteString(line)
	if err != nil {
		return
	}
	m.size += int64(n)
	if m.size >= logFileMaxBytes {
		_ = m.rotateLocked()
	}
}

func (m *logFile) openLocked() error {
	path := filepath.Join(m.dir, m.baseName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if info, err := file.Stat(); err == nil {
		m.size = info.Size()
	}
	m.file = file
	return nil
}

func (m *logFile) rotateLocked() error {
	if m.file != nil {
		_ = m.file.Close()
		m.file = nil
	}
	base := filepath.Join(m.dir, m.baseName)
	_ = os.Remove(fmt.Sprintf("%s.%d", base, logFileMaxFiles))
	for i := logFileMaxFiles - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", base, i), fmt.Sprintf("%s.%d", base, i+1))
	}
	_ = os.Rename(base, base+".1")
	m.size = 0
	return m.openLocked()
}

// snapshot returns the rotated files oldest first followed by the live
// file.
func (m *logFile) snapshot() []byte {
	m.mu.Lock()
	dir := m.dir
	m.mu.Unlock()
	if dir == "" {
		return nil
	}
	var out []byte
	base := filepath.Join(dir, m.baseName)
	for i := logFileMaxFiles; i >= 1; i-- {
		if data, err := os.ReadFile(fmt.Sprintf("%s.%d", base, i)); err == nil {
			out = append(out, data...)
		}
	}
	if data, err := os.ReadFile(base); err == nil {
		out = append(out, data...)
	}
	return out
}

func (m *logFile) tailLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tail...)
}

func (m *logFile) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file != nil {
		_ = m.file.Close()
		m.file = nil
	}
}

func formatLine(line string) string {
	return time.Now().Format("2006-01-02 15:04:05.000") + " " + line
}

// logPanic records a recovered panic with its stack.
func (c *Client) logPanic(context string, value any) {
	line := fmt.Sprintf("GO PANIC: %s: %v\n%s\n", context, value, debug.Stack())
	fmt.Fprint(os.Stderr, line)
	c.logs.appendLine(formatLine(line))
}
