// Package logx provides leveled, component-tagged logging with context-aware debug domains.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// rank orders levels for threshold filtering.
func (l Level) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// ParseLevel maps a config string onto a Level. Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	Domains map[string]bool // nil = all domains
}

//nolint:gochecknoglobals // process-wide logging configuration
var (
	outMu     sync.Mutex
	out       io.Writer = os.Stderr
	threshold           = LevelInfo

	debugMu     sync.RWMutex
	debugConfig = &DebugConfig{}
)

func init() { //nolint:gochecknoinits // env-driven debug switches
	initDebugFromEnv()
}

// initDebugFromEnv reads DEBUG=1|true and DEBUG_DOMAINS=run,dispatch.
func initDebugFromEnv() {
	debugMu.Lock()
	defer debugMu.Unlock()

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = parseDomains(strings.Split(domains, ","))
	}
}

func parseDomains(domains []string) map[string]bool {
	if len(domains) == 0 {
		return nil
	}
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			set[d] = true
		}
	}
	return set
}

// SetOutput redirects all log output. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	out = w
}

// SetLevel sets the minimum level written by Logger methods.
func SetLevel(level Level) {
	outMu.Lock()
	defer outMu.Unlock()
	threshold = level
}

// SetDebugConfig enables or disables debug logging, optionally restricted to domains.
func SetDebugConfig(enabled bool, domains []string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugConfig.Enabled = enabled
	debugConfig.Domains = parseDomains(domains)
}

// IsDebugEnabledForDomain returns whether debug logging is on for a domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

func write(component string, level Level, message string) {
	line := fmt.Sprintf("[%s] [%s] %s: %s\n", time.Now().UTC().Format(timestampFormat), component, level, message)

	outMu.Lock()
	defer outMu.Unlock()
	_, _ = io.WriteString(out, line)
}

func enabled(level Level) bool {
	outMu.Lock()
	defer outMu.Unlock()
	return level.rank() >= threshold.rank()
}

// Logger writes lines tagged with a component name.
type Logger struct {
	component string
}

// NewLogger returns a logger for the named component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// Component returns the logger's tag.
func (l *Logger) Component() string {
	return l.component
}

// With returns a logger whose tag is extended with a sub-component.
func (l *Logger) With(sub string) *Logger {
	return &Logger{component: l.component + "/" + sub}
}

func (l *Logger) log(level Level, format string, args ...any) {
	if !enabled(level) {
		return
	}
	write(l.component, level, fmt.Sprintf(format, args...))
}

// Debug logs only when debug logging is enabled (any domain).
func (l *Logger) Debug(format string, args ...any) {
	debugMu.RLock()
	on := debugConfig.Enabled
	debugMu.RUnlock()
	if !on {
		return
	}
	write(l.component, LevelDebug, fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

type ctxKey string

const turnIDKey ctxKey = "turn_id"

// WithTurnID stores a turn identifier used to prefix context-aware debug lines.
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnIDKey, turnID)
}

// TurnID returns the turn identifier carried by ctx, or "".
func TurnID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(turnIDKey).(string)
	return id
}

// Debug logs a debug message for a domain, tagged with the turn id from ctx.
//
//	DEBUG=1                         # all domains
//	DEBUG=1 DEBUG_DOMAINS=run       # only the run orchestrator
//	DEBUG=1 DEBUG_DOMAINS=run,tools # several
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	component := TurnID(ctx)
	if component == "" {
		component = "unknown"
	}
	write(component, LevelDebug, fmt.Sprintf("[%s] %s", domain, fmt.Sprintf(format, args...)))
}

// DebugState logs a state transition for a domain.
func DebugState(ctx context.Context, domain, from, to string) {
	Debug(ctx, domain, "State %s -> %s", from, to)
}

//nolint:gochecknoglobals // convenience logger for package-level helpers
var defaultLogger = NewLogger("system")

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
//
//	if err != nil { return logx.Wrap(err, "load config") }
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
