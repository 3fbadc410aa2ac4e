// Package logging builds the zap loggers used by the command line tool.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options selects the logger format and level.
type Options struct {
	// Format is "console" (default) or "json".
	Format string
	// Level is a zap level name: debug, info, warn, error. Default: warn.
	Level string
	// Verbosity raises the level when Level is empty: 1 for info, 2+ for debug.
	Verbosity int
	// Writer receives log lines. Default: stderr.
	Writer io.Writer
}

// New builds a logger from opts.
func New(opts Options) (*zap.Logger, error) {
	level, err := resolveLevel(opts)
	if err != nil {
		return nil, err
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	var enc zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", FormatConsole:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cfg.EncodeCaller = nil
		enc = zapcore.NewConsoleEncoder(cfg)
	case FormatJSON:
		enc = zapcore.NewJSONEncoder(zap.NewProductionConfig().EncoderConfig)
	default:
		return nil, errors.Newf("unknown log format %q (want console or json)", opts.Format)
	}

	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level)), nil
}

// VerbosityToLevel maps -v flag counts to zap levels.
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= 0:
		return zapcore.WarnLevel
	case verbosity == 1:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func resolveLevel(opts Options) (zapcore.Level, error) {
	if opts.Level == "" {
		return VerbosityToLevel(opts.Verbosity), nil
	}
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return 0, errors.Wrapf(err, "log level")
	}
	return level, nil
}
