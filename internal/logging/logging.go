// Public domain.

// Package logging configures the zerolog loggers used across jointcal.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Environment variables overriding the configured level and color.
const (
	EnvLogLevel   = "JOINTCAL_LOG_LEVEL"
	EnvLogNoColor = "JOINTCAL_LOG_NOCOLOR"
)

// Profile selects the default level and timestamping.
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var (
	configureOnce sync.Once
	mu            sync.RWMutex
	root          = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// ConfigureRuntime sets up console logging at info level.
func ConfigureRuntime() { Configure(ProfileRuntime) }

// ConfigureTests sets up console logging at debug level without timestamps.
func ConfigureTests() { Configure(ProfileTest) }

// Configure installs the root logger.  Only the first call has effect.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		level := zerolog.InfoLevel
		timestamp := true
		if profile == ProfileTest {
			level = zerolog.DebugLevel
			timestamp = false
		}
		if l, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
			level = l
		}
		noColor, _ := parseBool(os.Getenv(EnvLogNoColor))
		setRoot(newLogger(os.Stderr, level, timestamp, noColor))
	})
}

func newLogger(w io.Writer, level zerolog.Level, timestamp, noColor bool) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: time.RFC3339}
	if !timestamp {
		cw.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

func setRoot(l zerolog.Logger) {
	mu.Lock()
	root = l
	mu.Unlock()
}

// For returns a logger tagged with a component name, for example
// "jointcal.Associations".
func For(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str("component", component).Logger()
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
