// Package logger 提供 lantern CLI 的文件日志：按日期和大小轮转，可选 stderr 双写。
// 日志文件位于 ~/.lantern/logs/，命名为 lantern-YYYY-MM-DD[.N].log。
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const filePrefix = "lantern-"

// Config configures the file logger.
type Config struct {
	Dir        string
	Level      slog.Level
	JSON       bool // write JSON lines instead of logfmt-style text
	MaxAgeDays int  // 0 keeps files forever
	MaxSizeMB  int
	Stderr     bool
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Dir:        defaultLogDir(),
		Level:      slog.LevelInfo,
		MaxAgeDays: 14,
		MaxSizeMB:  20,
	}
}

func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".lantern", "logs")
	}
	return filepath.Join(home, ".lantern", "logs")
}

// ParseLevel maps a config string to a level. Unknown names are an error.
func ParseLevel(name string) (slog.Level, error) {
	var lvl slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", name, err)
	}
	return lvl, nil
}

// Manager owns the current log file.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	file    *os.File
	curDate string
}

// New creates the log directory and opens today's file.
func New(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		cfg.Dir = defaultLogDir()
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 20
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	m := &Manager{cfg: cfg}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.rotateLocked(); err != nil {
		return nil, err
	}
	return m, nil
}

// Logger returns a slog.Logger writing through the manager.
func (m *Manager) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: m.cfg.Level}
	if m.cfg.JSON {
		return slog.New(slog.NewJSONHandler(m, opts))
	}
	return slog.New(slog.NewTextHandler(m, opts))
}

// Write implements io.Writer, rotating first when needed.
func (m *Manager) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_ = m.rotateLocked()

	var (
		n   int
		err error
	)
	if m.file != nil {
		n, err = m.file.Write(p)
	}
	if m.cfg.Stderr {
		_, _ = os.Stderr.Write(p)
	}
	return n, err
}

// Close closes the current file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// Dir returns the log directory.
func (m *Manager) Dir() string { return m.cfg.Dir }

// CurrentFile returns the path being written.
func (m *Manager) CurrentFile() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file != nil {
		return m.file.Name()
	}
	return fileName(m.cfg.Dir, today(), 0)
}

func (m *Manager) maxBytes() int64 { return int64(m.cfg.MaxSizeMB) << 20 }

func (m *Manager) rotateLocked() error {
	date := today()
	if m.file != nil && m.curDate == date {
		info, err := m.file.Stat()
		if err != nil || info.Size() < m.maxBytes() {
			return nil
		}
	}
	if m.file != nil {
		_ = m.file.Close()
		m.file = nil
	}

	// 当天文件已满时选下一个序号
	path := fileName(m.cfg.Dir, date, 0)
	for seq := 1; seq < 100; seq++ {
		info, err := os.Stat(path)
		if err != nil || info.Size() < m.maxBytes() {
			break
		}
		path = fileName(m.cfg.Dir, date, seq)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	m.file = f
	m.curDate = date
	return nil
}

// Cleanup removes files older than MaxAgeDays and reports how many went.
func (m *Manager) Cleanup() (int, error) {
	if m.cfg.MaxAgeDays <= 0 {
		return 0, nil
	}
	files, err := ListFiles(m.cfg.Dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().AddDate(0, 0, -m.cfg.MaxAgeDays)
	current := m.CurrentFile()
	removed := 0
	for _, f := range files {
		if f.Path == current || !f.ModTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(f.Path); err == nil {
			removed++
		}
	}
	return removed, nil
}

// FileInfo describes one log file.
type FileInfo struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// ListFiles lists log files, newest first. A missing directory is empty.
func ListFiles(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var files []FileInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:    name,
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name > files[j].Name
		}
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// Tail returns the last n non-empty lines of a file, optionally only those
// containing match (case-insensitive).
func Tail(path string, n int, match string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 200
	}
	q := strings.ToLower(match)
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(line), q) {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Follow copies data appended to path into w until ctx is done.
func Follow(ctx context.Context, path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}

	buf := make([]byte, 4096)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
		}
		if readErr != nil && readErr != io.EOF {
			return readErr
		}
		if readErr == io.EOF {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
}

func today() string {
	return time.Now().Format("2006-01-02")
}

func fileName(dir, date string, seq int) string {
	if seq == 0 {
		return filepath.Join(dir, filePrefix+date+".log")
	}
	return filepath.Join(dir, fmt.Sprintf("%s%s.%d.log", filePrefix, date, seq))
}
