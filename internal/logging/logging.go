// Package logging carries the small logging surface shared by the pipeline
// engines and the binaries.
//
// Engines depend only on the Logger interface so tests can capture output or
// silence it. The leveled helpers are for the binaries, which log through the
// standard logger with a level label prefix.
package logging

import "log"

// Logger is the minimal logging dependency used by pipeline components.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Printf(string, ...any) {}

const (
	errorLabel = "[ERROR] "
	warnLabel  = "[WARN ] "
	infoLabel  = "[INFO ] "
	debugLabel = "[DEBUG] "
)

// Error prints to the standard logger, adding an error label.
// Arguments are handled in the manner of [fmt.Printf].
func Error(format string, args ...any) {
	log.Printf(errorLabel+format, args...)
}

// Warn prints to the standard logger, adding a warn label.
// Arguments are handled in the manner of [fmt.Printf].
func Warn(format string, args ...any) {
	log.Printf(warnLabel+format, args...)
}

// Info prints to the standard logger, adding an info label.
// Arguments are handled in the manner of [fmt.Printf].
func Info(format string, args ...any) {
	log.Printf(infoLabel+format, args...)
}

// Debug prints to the standard logger, adding a debug label.
// Arguments are handled in the manner of [fmt.Printf].
func Debug(format string, args ...any) {
	log.Printf(debugLabel+format, args...)
}
