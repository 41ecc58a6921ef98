package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger handles installer logging to both stdout and files.
// install.log carries the step-by-step record, error.log keeps the raw
// driver text behind every user-facing failure.
type Logger struct {
	mu         sync.RWMutex
	installLog *log.Logger
	errorLog   *log.Logger
	accessLog  *log.Logger
	debugLog   *log.Logger
	files      []*os.File
	isDebug    bool
}

// NewLogger creates a new logger writing into logDir
func NewLogger(logDir string, debug bool) (*Logger, error) {
	dirPerm := os.FileMode(0700)
	if os.Geteuid() == 0 {
		dirPerm = 0755
	}
	if err := os.MkdirAll(logDir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{isDebug: debug}

	open := func(name string) (*os.File, error) {
		f, err := os.OpenFile(filepath.Join(logDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		l.files = append(l.files, f)
		return f, nil
	}

	installFile, err := open("install.log")
	if err != nil {
		return nil, err
	}
	errorFile, err := open("error.log")
	if err != nil {
		return nil, err
	}
	accessFile, err := open("access.log")
	if err != nil {
		return nil, err
	}

	l.installLog = log.New(io.MultiWriter(installFile, os.Stdout), "", 0)
	l.errorLog = log.New(io.MultiWriter(errorFile, installFile, os.Stderr), "", 0)
	// Access only to file, not stdout
	l.accessLog = log.New(accessFile, "", 0)
	l.debugLog = log.New(io.MultiWriter(installFile, os.Stdout), "", 0)

	return l, nil
}

// NewWriterLogger builds a logger on plain writers, used by the CLI and tests
func NewWriterLogger(out, errOut io.Writer, debug bool) *Logger {
	return &Logger{
		installLog: log.New(out, "", 0),
		errorLog:   log.New(errOut, "", 0),
		accessLog:  log.New(out, "", 0),
		debugLog:   log.New(out, "", 0),
		isDebug:    debug,
	}
}

// NewDiscardLogger returns a logger that drops everything
func NewDiscardLogger() *Logger {
	return NewWriterLogger(io.Discard, io.Discard, false)
}

func stamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

// Info logs an informational message
func (l *Logger) Info(format string, v ...interface{}) {
	l.installLog.Printf("[%s] [INFO] %s", stamp(), fmt.Sprintf(format, v...))
}

// Warn logs a recoverable problem
func (l *Logger) Warn(format string, v ...interface{}) {
	l.installLog.Printf("[%s] [WARN] %s", stamp(), fmt.Sprintf(format, v...))
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.errorLog.Printf("[%s] [ERROR] %s", stamp(), fmt.Sprintf(format, v...))
}

// Debug logs only when debug is enabled
func (l *Logger) Debug(format string, v ...interface{}) {
	if !l.DebugEnabled() {
		return
	}
	l.debugLog.Printf("[%s] [DEBUG] %s", stamp(), fmt.Sprintf(format, v...))
}

// SetDebug toggles debug output, used on config reload
func (l *Logger) SetDebug(debug bool) {
	l.mu.Lock()
	l.isDebug = debug
	l.mu.Unlock()
}

// DebugEnabled reports whether debug output is on
func (l *Logger) DebugEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isDebug
}

// Access logs an access entry (Apache Combined Log Format)
func (l *Logger) Access(ip, user, method, path, protocol string, status int, size int64, referer, userAgent string) {
	timestamp := time.Now().Format("02/Jan/2006:15:04:05 -0700")
	if user == "" {
		user = "-"
	}
	if referer == "" {
		referer = "-"
	}
	if userAgent == "" {
		userAgent = "-"
	}

	l.accessLog.Printf(`%s - %s [%s] "%s %s %s" %d %d "%s" "%s"`,
		ip, user, timestamp, method, path, protocol, status, size, referer, userAgent)
}

// Close closes all log files
func (l *Logger) Close() error {
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}
