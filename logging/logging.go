// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xmdhs/ddns-ipv6/config"
)

const (
	StdErrOutput = "stderr"
	StdOutOutput = "stdout"
)

// ParseLevel maps a config level name to a zap level. Unknown names are info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	}
	return zap.InfoLevel
}

// DebugFromEnv interprets the DEBUG environment variable. ok is false when
// the variable is set to something other than true/1/false/0.
func DebugFromEnv(v string) (debug, ok bool) {
	switch strings.ToLower(v) {
	case "true", "1":
		return true, true
	case "", "false", "0":
		return false, true
	}
	return false, false
}

// Debug decides whether debug logging is on. A DEBUG variable that is set
// wins over the --debug flag, even when it says false.
func Debug(env string, set, flag bool) (debug, ok bool) {
	if !set {
		return flag, true
	}
	return DebugFromEnv(env)
}

// New builds a logger for cfg. A file output is rotated by lumberjack.
func New(cfg config.Log, debug bool) (*zap.Logger, error) {
	level := ParseLevel(cfg.Level)
	if debug {
		level = zap.DebugLevel
	}

	var w io.Writer
	switch cfg.Output {
	case "", StdErrOutput:
		w = os.Stderr
	case StdOutOutput:
		w = os.Stdout
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		w = &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core, zap.AddCaller()), nil
}
