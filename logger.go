package sambungo

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger is the structured logging sink consumed by the logging policy.
// keysAndValues are alternating key/value pairs in the slog style.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SimpleLogger writes leveled key/value lines to stderr. Intended for
// development; production users typically adapt their own logger.
type SimpleLogger struct {
	out *log.Logger
}

// NewSimpleLogger creates a console logger.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{
		out: log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *SimpleLogger) Debug(msg string, keysAndValues ...any) {
	l.write("DEBUG", msg, keysAndValues)
}

func (l *SimpleLogger) Info(msg string, keysAndValues ...any) {
	l.write("INFO", msg, keysAndValues)
}

func (l *SimpleLogger) Warn(msg string, keysAndValues ...any) {
	l.write("WARN", msg, keysAndValues)
}

func (l *SimpleLogger) Error(msg string, keysAndValues ...any) {
	l.write("ERROR", msg, keysAndValues)
}

func (l *SimpleLogger) write(level, msg string, keysAndValues []any) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	l.out.Print(b.String())
}
