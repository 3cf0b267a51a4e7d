// Package logging builds the component loggers used across vq. When a log
// file is configured the output goes through a size-rotated file; otherwise
// it goes to stderr.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bobstanton/vaultquery/internal/config"
)

// New returns a logger for one component, prefixed "[component] ".
func New(component string, cfg config.LogConfig) *log.Logger {
	var w io.Writer = os.Stderr
	if cfg.File != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}
	return log.New(w, "["+component+"] ", log.LstdFlags)
}
