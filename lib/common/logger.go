package common

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// prefLogger implements the ILogger interface on top of a zap logger
type prefLogger struct {
	name  string
	level logger.LogLevel
	sugar *zap.SugaredLogger
	mu    sync.RWMutex
}

func (l *prefLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *prefLogger) enabled(level logger.LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

func (l *prefLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.sugar.Debugf("%-15s | %s", l.name, fmt.Sprintf(format, args...))
	}
}

func (l *prefLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.sugar.Infof("%-15s | %s", l.name, fmt.Sprintf(format, args...))
	}
}

func (l *prefLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.sugar.Warnf("%-15s | %s", l.name, fmt.Sprintf(format, args...))
	}
}

func (l *prefLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.sugar.Errorf("%-15s | %s", l.name, fmt.Sprintf(format, args...))
	}
}

func (l *prefLogger) Panicf(format string, args ...interface{}) {
	if l.enabled(logger.CRITICAL) {
		panic(fmt.Sprintf(format, args...))
	}
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	baseOnce sync.Once
	base     *zap.Logger
)

// baseLogger builds the shared zap core. All level filtering happens in
// prefLogger, so the core itself accepts everything from debug upwards.
func baseLogger() *zap.Logger {
	baseOnce.Do(func() {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
		encoderConfig.CallerKey = ""

		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.Lock(os.Stdout),
			zap.DebugLevel,
		)
		base = zap.New(core)
	})
	return base
}

// CreateLogger implements dragonboats logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	return &prefLogger{
		name:  pkgName,
		level: logger.INFO,
		sugar: baseLogger().Sugar(),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// loggerNames lists every package logger of this module
var loggerNames = []string{"pref", "store", "dispatch", "lifecycle", "cmd"}

var factoryOnce sync.Once

// installFactory registers CreateLogger with dragonboat. It has to run before
// the first message is logged, so it is triggered from init.
func installFactory() {
	factoryOnce.Do(func() {
		logger.SetLoggerFactory(CreateLogger)
	})
}

func init() {
	installFactory()
}

// InitLoggers sets the level of all package loggers
func InitLoggers(level string) error {
	installFactory()

	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}
	for _, name := range loggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}

// SyncLoggers flushes buffered log entries
func SyncLoggers() {
	_ = baseLogger().Sync()
}
