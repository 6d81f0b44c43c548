package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	currentLevel atomic.Int32
	out          = stdlog.New(os.Stdout, "", 0)
)

func init() {
	currentLevel.Store(int32(LevelInfo))
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func SetLevel(level string) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		currentLevel.Store(int32(LevelDebug))
	case "INFO":
		currentLevel.Store(int32(LevelInfo))
	case "WARN":
		currentLevel.Store(int32(LevelWarn))
	case "ERROR":
		currentLevel.Store(int32(LevelError))
	}
}

// SetOutput redirects log output, primarily for tests.
func SetOutput(w io.Writer) {
	out = stdlog.New(w, "", 0)
}

func write(level Level, format string, v ...any) {
	if int32(level) < currentLevel.Load() {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	out.Println(fmt.Sprintf("[%s] [%s] %s", timestamp, level, fmt.Sprintf(format, v...)))
}

func Debug(format string, v ...any) { write(LevelDebug, format, v...) }
func Info(format string, v ...any)  { write(LevelInfo, format, v...) }
func Warn(format string, v ...any)  { write(LevelWarn, format, v...) }
func Error(format string, v ...any) { write(LevelError, format, v...) }
