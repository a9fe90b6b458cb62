package logger

import "sync"

var (
	defMu      sync.RWMutex
	builtinLog = NewSlog(InfoLevel, false)
	defLogger  = builtinLog
)

func current() Logger {
	defMu.RLock()
	defer defMu.RUnlock()

	return defLogger
}

// SetDefault installs l as the process-wide default logger and returns the previous one.
// Only one default is active at a time; a nil l is ignored.
func SetDefault(l Logger) Logger {
	defMu.Lock()
	defer defMu.Unlock()

	prev := defLogger
	if l != nil {
		defLogger = l
	}

	return prev
}

// ResetDefault restores the built-in slog logger as the default.
func ResetDefault() {
	defMu.Lock()
	defer defMu.Unlock()

	defLogger = builtinLog
}

func Debug(msg string, keysAndValues ...any) {
	current().Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	current().Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	current().Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	current().Error(msg, keysAndValues...)
}

func Fatal(msg string, keysAndValues ...any) {
	current().Fatal(msg, keysAndValues...)
}

func SetLevel(level LogLevel) {
	current().SetLevel(level)
}

func GetLogger() Logger {
	return current()
}

func With(keyValues ...any) Logger {
	return current().With(keyValues...)
}
