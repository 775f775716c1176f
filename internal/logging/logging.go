// Package logging builds the process logger: a console stream plus one JSON file per day.
package logging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/osmike/sweeper/internal/domain"
	errs "github.com/osmike/sweeper/internal/error"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configure New.
type Options struct {
	// Dir receives <YYYY-MM-DD>.log. Empty disables the file.
	Dir string

	// Level is debug, info, warn or error. Empty means info.
	Level string

	// Console defaults to stderr.
	Console zapcore.WriteSyncer

	Now func() time.Time
}

// ParseLevel accepts the level names used in configuration.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	l, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return l, errs.New(errs.ErrInvalidConfig, fmt.Sprintf("log level %q", level))
	}
	return l, nil
}

// New builds the logger and returns a closer that syncs and closes the day file.
//
// When the day file already exists a session banner is appended first, so separate runs on
// the same day stay easy to tell apart.
func New(opts Options) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	if opts.Console == nil {
		opts.Console = zapcore.Lock(os.Stderr)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), opts.Console, level),
	}

	var file *os.File
	if opts.Dir != "" {
		file, err = openDayFile(opts.Dir, opts.Now())
		if err != nil {
			return nil, nil, err
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(file), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	closer := func() error {
		// Syncing a terminal returns EINVAL on some platforms.
		_ = logger.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return logger, closer, nil
}

// FileName returns the day file for t.
func FileName(dir string, t time.Time) string {
	return filepath.Join(dir, t.Format(domain.DATE_LAYOUT)+".log")
}

func openDayFile(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := FileName(dir, now)

	_, statErr := os.Stat(path)
	existed := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", path, statErr)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if existed {
		rule := strings.Repeat("=", 60)
		banner := fmt.Sprintf("\n%s\n=== NEW SESSION STARTED: %s ===\n%s\n", rule, now.Format(time.DateTime), rule)
		if _, err := f.WriteString(banner); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write session banner: %w", err)
		}
	}
	return f, nil
}
