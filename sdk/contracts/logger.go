package contracts

import "time"

// LogLevel represents the severity level for logging.
type LogLevel int

const (
	// InfoLevel indicates informational messages that highlight the progress of the engine.
	InfoLevel LogLevel = iota
	// DebugLevel indicates debug messages that are useful for developers to troubleshoot issues.
	DebugLevel
	// ErrorLevel indicates error messages that represent serious issues that need attention.
	ErrorLevel
	// WarnLevel indicates potentially harmful situations that should be monitored.
	WarnLevel
	// FatalLevel indicates very severe error events that will presumably lead the application to abort.
	FatalLevel
)

// String returns the lower-case level name used in configuration files.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case ErrorLevel:
		return "error"
	case WarnLevel:
		return "warn"
	case FatalLevel:
		return "fatal"
	}
	return "info"
}

// ParseLogLevel maps a configuration string to a LogLevel. Unknown names map to InfoLevel.
func ParseLogLevel(name string) LogLevel {
	for _, level := range []LogLevel{DebugLevel, ErrorLevel, WarnLevel, FatalLevel} {
		if level.String() == name {
			return level
		}
	}
	return InfoLevel
}

// LogDestination specifies where the log messages should be directed.
type LogDestination string

const (
	// ConsoleLog directs log messages to the console output.
	ConsoleLog LogDestination = "console"
	// FileLog directs log messages to a file.
	FileLog LogDestination = "file"
)

// Field is a typed key/value pair attached to a log entry.
type Field interface {
	Bool(key string, val bool) Field
	Int(key string, val int) Field
	Float64(key string, val float64) Field
	String(key string, val string) Field
	Time(key string, val time.Time) Field
	Int64(key string, val int64) Field
	Error(key string, val error) Field
	Uint64(key string, val uint64) Field
	Uint32(key string, val uint32) Field
	Uint8(key string, val uint8) Field
}

// Logger records messages at different severity levels.
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	Field() Field

	SetLevel(level LogLevel)
	SetDestination(dest LogDestination, filePath ...string)
}
