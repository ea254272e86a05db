// Package logging wires zap to a rotating file sink, the structured
// logging setup the rest of this module assumes is already configured by
// the time any store starts handling ingress.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where logs go and how they rotate.
type Config struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      zapcore.Level
	// AlsoStderr additionally mirrors output to stderr, useful during
	// local development.
	AlsoStderr bool
}

// DefaultConfig matches what a node would reasonably ship with out of the
// box: modest rotation, info level.
func DefaultConfig(filename string) Config {
	return Config{
		Filename:   filename,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Level:      zapcore.InfoLevel,
	}
}

// New builds a zap.Logger writing JSON-encoded entries to a lumberjack
// rotating file. Ingress rejections never log above debug; hash-size and
// date-tolerance rejections log as warnings.
func New(cfg Config) (*zap.Logger, error) {
	rotator := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	writers := []zapcore.WriteSyncer{zapcore.AddSync(rotator)}
	if cfg.AlsoStderr {
		writers = append(writers, zapcore.Lock(zapcore.AddSync(os.Stderr)))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.NewMultiWriteSyncer(writers...),
		cfg.Level,
	)
	return zap.New(core, zap.AddCaller()), nil
}
