package logger

import (
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFile is the name of the rotated JSON log inside the configured log dir.
const LogFile = "grant-processor.log"

// ParseLevel maps "debug", "info", "warn" or "error" to a zap level.
// Anything else yields info.
func ParseLevel(logLevel string) zap.AtomicLevel {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return level
}

// FileCore is a JSON core writing to a size rotated file in logDir.
func FileCore(logDir string, level zap.AtomicLevel) zapcore.Core {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, LogFile),
		MaxSize:    100, // MB
		MaxBackups: 5,
	})
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), writer, level)
}

// NewLogger creates a JSON logger writing only to a rotated file in logDir.
// If logDir is empty the logger discards everything.
func NewLogger(logDir, logLevel string) *zap.SugaredLogger {
	if logDir == "" {
		return zap.NewNop().Sugar()
	}
	return zap.New(FileCore(logDir, ParseLevel(logLevel))).Sugar()
}
