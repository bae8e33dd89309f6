package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelColors = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgCyan),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed),
	LevelFatal: color.New(color.FgRed, color.Bold),
}

type Logger struct {
	mu            sync.Mutex
	fileLogger    *log.Logger
	stdout        io.Writer
	level         Level
	includeStdout bool
	colorize      bool
}

// New opens (or creates) the log file at filePath. An empty path disables
// file output and leaves only the stdout mirror.
func New(filePath string, level Level, includeStdout bool) (*Logger, error) {
	l := &Logger{
		stdout:        os.Stdout,
		level:         level,
		includeStdout: includeStdout,
		colorize:      isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
	}

	if filePath != "" {
		if dir := filepath.Dir(filePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		l.fileLogger = log.New(f, "", 0)
	}

	return l, nil
}

// NewWriter logs every line at or above level to w, without colour.
func NewWriter(w io.Writer, level Level) *Logger {
	return &Logger{
		fileLogger: log.New(w, "", 0),
		level:      level,
	}
}

// Nop discards everything.
func Nop() *Logger {
	return NewWriter(io.Discard, LevelFatal+1)
}

func (l *Logger) log(lvl Level, prefix string, format string, v ...interface{}) {
	if l == nil || lvl < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, v...)
	fullMsg := fmt.Sprintf("%s [%s] %s", timestamp, prefix, msg)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileLogger != nil {
		l.fileLogger.Println(fullMsg)
	}

	// Debug stays in the file so worker output on a terminal remains readable
	if l.includeStdout && l.stdout != nil && lvl >= LevelInfo {
		tag := "[" + prefix + "]"
		if l.colorize {
			tag = levelColors[lvl].Sprint(tag)
		}
		fmt.Fprintf(l.stdout, "%s %s %s\n", timestamp, tag, msg)
	}
}

func ParseLevel(lvl string) Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(f string, v ...any) { l.log(LevelDebug, "DEBUG", f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.log(LevelInfo, "INFO", f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.log(LevelWarn, "WARN", f, v...) }
func (l *Logger) Error(f string, v ...any) { l.log(LevelError, "ERROR", f, v...) }
func (l *Logger) Fatal(f string, v ...any) { l.log(LevelFatal, "FATAL", f, v...); os.Exit(1) }

func (l *Logger) Write(p []byte) (n int, err error) {
	// Echo and other libraries often include a newline at the end
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.Info("%s", msg)
	}
	return len(p), nil
}
