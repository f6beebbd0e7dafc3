// File: control/log.go
// Author: momentics <momentics@gmail.com>
//
// Unified log facility. A single global severity threshold gates all
// diagnostics; messages either go to the installed callback or, when no
// callback is set, to a zerolog console writer on stderr.

package control

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel enumerates diagnostic severities, lowest first.
type LogLevel int32

const (
	LogDebug LogLevel = iota
	LogNotice
	LogWarning
	LogError
	LogCritical
)

// String returns the lower-case severity name.
func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "debug"
	case LogNotice:
		return "notice"
	case LogWarning:
		return "warning"
	case LogError:
		return "error"
	case LogCritical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

// LogCallback receives every message at or above the threshold. The area
// tag names the emitting subsystem ("reactor", "socket", ...).
type LogCallback func(level LogLevel, area, message string)

type callbackBox struct{ cb LogCallback }

var (
	logThreshold atomic.Int32 // LogLevel, defaults to LogNotice
	logCallback  atomic.Pointer[callbackBox]
	stderrLogger zerolog.Logger
)

func init() {
	logThreshold.Store(int32(LogNotice))
	stderrLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}).
		With().Timestamp().Logger()
}

// SetLogLevel adjusts the global severity threshold.
func SetLogLevel(level LogLevel) {
	logThreshold.Store(int32(level))
}

// GetLogLevel returns the current threshold.
func GetLogLevel() LogLevel {
	return LogLevel(logThreshold.Load())
}

// SetLogCallback installs a user callback for all diagnostics at or above
// the threshold. Passing nil restores the default stderr output.
func SetLogCallback(cb LogCallback) {
	if cb == nil {
		logCallback.Store(nil)
		return
	}
	logCallback.Store(&callbackBox{cb: cb})
}

// Logf emits one diagnostic message. Formatting is skipped entirely when
// the level is below the threshold.
func Logf(level LogLevel, area, format string, args ...any) {
	if level < GetLogLevel() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if box := logCallback.Load(); box != nil {
		box.cb(level, area, msg)
		return
	}
	stderrLogger.WithLevel(zerologLevel(level)).Str("area", area).Msg(msg)
}

func zerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case LogDebug:
		return zerolog.DebugLevel
	case LogNotice:
		return zerolog.InfoLevel
	case LogWarning:
		return zerolog.WarnLevel
	case LogError:
		return zerolog.ErrorLevel
	case LogCritical:
		// WithLevel does not terminate the process at FatalLevel.
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
