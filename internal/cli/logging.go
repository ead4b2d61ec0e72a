package cli

import (
	"fmt"
	"os"

	"github.com/decred/slog"
)

// logBackend hands out subsystem loggers that share one output and level.
type logBackend struct {
	backend *slog.Backend
	level   slog.Level
}

func newLogBackend(level string) (*logBackend, error) {
	if level == "" {
		level = "info"
	}
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return &logBackend{backend: slog.NewBackend(os.Stdout), level: lvl}, nil
}

// Logger returns the logger for a subsystem tag such as SETL.
func (b *logBackend) Logger(subsystem string) slog.Logger {
	l := b.backend.Logger(subsystem)
	l.SetLevel(b.level)
	return l
}
