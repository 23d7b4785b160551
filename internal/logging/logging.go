// Package logging configures the process-wide logrus logger, rotating file
// output through lumberjack.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls log destination and rotation.
type Options struct {
	Level      string
	FilePath   string // empty disables file output
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Console    bool
}

// New builds a logrus.Logger per opts. Console output is always text
// formatted; file output (when FilePath is set) is JSON formatted so log
// aggregators can index it.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	var writers []io.Writer
	if opts.Console || opts.FilePath == "" {
		writers = append(writers, os.Stdout)
	}
	if opts.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    maxOr(opts.MaxSizeMB, 50),
			MaxBackups: maxOr(opts.MaxBackups, 5),
			MaxAge:     maxOr(opts.MaxAgeDays, 14),
			Compress:   true,
		})
	}
	switch len(writers) {
	case 0:
		logger.SetOutput(os.Stdout)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: opts.FilePath != ""})
	return logger
}

func maxOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// RequestFields builds the standard per-request field set attached to log
// entries across the gateway.
func RequestFields(requestID, provider, model string) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"provider":   provider,
		"model":      model,
	}
}
