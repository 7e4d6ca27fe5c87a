package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig controls the rotating log file used when logging.output is "file".
type FileConfig struct {
	Path      string
	MaxSizeMB int
	// MaxFiles is how many rotated files are kept; zero keeps all of them.
	MaxFiles int
	// MaxAgeDays removes rotated files older than this; zero disables it.
	MaxAgeDays int
	// Uncompressed keeps rotated files as plain text instead of gzip.
	Uncompressed bool
}

// NewFileWriter returns a size-rotated log file writer. Timestamps in
// rotated file names are UTC, matching the log lines.
func NewFileWriter(cfg FileConfig) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   !cfg.Uncompressed,
	}
}
