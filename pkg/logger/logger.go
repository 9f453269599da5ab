// Package logger wraps log/slog with tint's colored console handler behind
// the small call surface goenet's core and CLI use throughout (SPEC_FULL.md
// §10.1): Debug/Info/Warn/Error/Success/Fatal plus Section/Banner for the
// CLI's startup output.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// ANSI color codes, used only by Section/Banner's hand-drawn boxes; regular
// log lines are colored by tint itself.
const (
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorCyan   = "\033[36m"
)

// Logger is a small wrapper around *slog.Logger with a dynamically
// adjustable level, so a Host can be constructed before the CLI has parsed
// --verbose and still have SetLevel take effect.
type Logger struct {
	log   *slog.Logger
	level *slog.LevelVar
}

// New builds a Logger writing tint-colored lines to w-equivalent (stderr),
// at LevelInfo until changed with SetLevel.
func New() *Logger {
	lv := &slog.LevelVar{}
	lv.Set(slog.LevelInfo)
	h := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lv,
		TimeFormat: time.Kitchen,
	})
	return &Logger{log: slog.New(h), level: lv}
}

var defaultLogger = New()

// Default returns the package's shared Logger, used when a Host is
// constructed without an explicit Config.Logger.
func Default() *Logger { return defaultLogger }

// SetLevel changes the minimum level this Logger emits.
func (l *Logger) SetLevel(level slog.Level) { l.level.Set(level) }

// SetTimeFormat and ShowTime are kept for call-surface parity with the
// pre-slog logger; tint fixes its time layout at handler construction, so
// these are no-ops here rather than full reconfiguration.
func (l *Logger) SetTimeFormat(string) {}
func (l *Logger) ShowTime(bool)        {}

func (l *Logger) Debug(format string, args ...any) { l.log.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Info(format string, args ...any)  { l.log.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warn(format string, args ...any)  { l.log.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Error(format string, args ...any) { l.log.Error(fmt.Sprintf(format, args...)) }

// Success logs at Info level tagged for visual distinction in the console
// handler; slog has no dedicated level between Info and Warn.
func (l *Logger) Success(format string, args ...any) {
	l.log.Info(fmt.Sprintf(format, args...), "status", "ok")
}

// Fatal logs at Error level and terminates the process.
func (l *Logger) Fatal(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// Section prints a boxed section header to stdout, for the CLI's own
// startup narration rather than structured log output.
func (l *Logger) Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n%s╔%s╗%s\n", ColorCyan, border, ColorReset)
	fmt.Printf("%s║%s %-57s %s║%s\n", ColorCyan, ColorReset, title, ColorCyan, ColorReset)
	fmt.Printf("%s╚%s╝%s\n\n", ColorCyan, border, ColorReset)
}

// Banner prints the CLI's startup banner.
func (l *Logger) Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║    ██████╗  ██████╗ ███████╗███╗   ██╗███████╗████████╗  ║
║   ██╔════╝ ██╔═══██╗██╔════╝████╗  ██║██╔════╝╚══██╔══╝  ║
║   ██║  ███╗██║   ██║█████╗  ██╔██╗ ██║█████╗     ██║     ║
║   ██║   ██║██║   ██║██╔══╝  ██║╚██╗██║██╔══╝     ██║     ║
║   ╚██████╔╝╚██████╔╝███████╗██║ ╚████║███████╗   ██║     ║
║    ╚═════╝  ╚═════╝ ╚══════╝╚═╝  ╚═══╝╚══════╝   ╚═╝     ║
║                                                           ║
║              %s%-37s%s║
║                    %sVersion %-7s%s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, ColorCyan, title, ColorReset, ColorGreen, version, ColorReset)
}

// Package-level convenience functions delegate to Default(), matching the
// call style used where a Host isn't in scope (e.g. package main before any
// Host exists).
func SetLevel(level slog.Level)        { defaultLogger.SetLevel(level) }
func Debug(format string, args ...any) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...any)  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...any)  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...any) { defaultLogger.Error(format, args...) }
func Success(format string, args ...any) { defaultLogger.Success(format, args...) }
func Fatal(format string, args ...any) { defaultLogger.Fatal(format, args...) }
func Section(title string)             { defaultLogger.Section(title) }
func Banner(title, version string)     { defaultLogger.Banner(title, version) }
