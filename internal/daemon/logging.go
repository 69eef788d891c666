package daemon

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger returns a logger writing to a size-rotated log file. An empty
// path falls back to stderr, which suits foreground runs.
func FileLogger(path string) *log.Logger {
	var out io.Writer = os.Stderr
	if path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	return log.New(out, "[daemon] ", log.LstdFlags)
}
