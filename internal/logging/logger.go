// Package logging builds the diagnostic logger. Standard output belongs to
// the collector protocol, so logs only ever go to a rotating file.
package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the log file created inside the log directory.
const FileName = "infraprobe.log"

// ErrUnavailable is returned when the log directory cannot be created.
var ErrUnavailable = errors.New("log directory unavailable")

// New returns a JSON logger writing to dir/FileName at the given level. The
// file is rotated once it reaches maxSize bytes, rounded to whole megabytes.
// An empty dir returns a no-op logger.
func New(dir, level string, maxSize int64) (*zap.Logger, error) {
	if dir == "" {
		return zap.NewNop(), nil
	}

	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(dir, FileName),
		MaxSize:    megabytes(maxSize),
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, lvl)
	return zap.New(core).With(zap.Int("pid", os.Getpid())), nil
}

// megabytes converts to lumberjack's unit. Anything under 1MB is 1MB.
func megabytes(n int64) int {
	mb := int(n >> 20)
	if mb < 1 {
		return 1
	}
	return mb
}
