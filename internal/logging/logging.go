package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel orders message severities; a message is written when its level is
// at or above the current one.
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

var level atomic.Int32

func init() {
	level.Store(int32(levelFromEnv()))
}

// ParseLevel converts a level name to a LogLevel. Unknown names map to
// LevelInfo with ok false.
func ParseLevel(name string) (LogLevel, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	for i, n := range levelNames {
		if n == name {
			return LogLevel(i), true
		}
	}
	return LevelInfo, false
}

// levelFromEnv reads DEBUG (any truthy value) and then LOG_LEVEL.
func levelFromEnv() LogLevel {
	switch strings.ToLower(os.Getenv("DEBUG")) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}
	l, _ := ParseLevel(os.Getenv("LOG_LEVEL"))
	return l
}

// SetLevel overrides the level taken from the environment.
func SetLevel(l LogLevel) {
	level.Store(int32(l))
}

// GetLevel returns the current level.
func GetLevel() LogLevel {
	return LogLevel(level.Load())
}

// IsDebugEnabled reports whether Debug messages are written.
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// SetOutput redirects all log output, including Printf.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func write(l LogLevel, tag, format string, args []any) {
	if l < GetLevel() {
		return
	}
	log.Print(tag + fmt.Sprintf(format, args...))
}

func Debug(format string, args ...any) { write(LevelDebug, "[DEBUG] ", format, args) }

func Info(format string, args ...any) { write(LevelInfo, "[INFO] ", format, args) }

func Warn(format string, args ...any) { write(LevelWarn, "[WARN] ", format, args) }

func Error(format string, args ...any) { write(LevelError, "[ERROR] ", format, args) }

// Fatal writes the message regardless of level and exits with status 1.
func Fatal(format string, args ...any) {
	log.Fatal("[FATAL] " + fmt.Sprintf(format, args...))
}

// Printf writes without a level tag, regardless of level.
func Printf(format string, args ...any) {
	log.Printf(format, args...)
}

func (l LogLevel) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("unknown(%d)", l)
}
