package common

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Node Logger
// --------------------------------------------------------------------------

// rKVLogger writes one line per message: date, time, level, package logger
// name and message. It is installed as dragonboat logger factory, so every
// logger.GetLogger call of rKV returns one.
type rKVLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *rKVLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *rKVLogger) Debugf(format string, args ...interface{}) {
	l.logAt(logger.DEBUG, "DEBUG", format, args...)
}

func (l *rKVLogger) Infof(format string, args ...interface{}) {
	l.logAt(logger.INFO, "INFO", format, args...)
}

func (l *rKVLogger) Warningf(format string, args ...interface{}) {
	l.logAt(logger.WARNING, "WARN", format, args...)
}

func (l *rKVLogger) Errorf(format string, args ...interface{}) {
	l.logAt(logger.ERROR, "ERROR", format, args...)
}

// Panicf panics regardless of the level, a critical message always ends the caller.
func (l *rKVLogger) Panicf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-11s | %s", "PANIC", l.name, message)
	panic(message)
}

// logAt writes the message if lvl is enabled for this logger
func (l *rKVLogger) logAt(lvl logger.LogLevel, tag string, format string, args ...interface{}) {
	if l.level < lvl {
		return
	}
	l.logger.Printf("%-5s | %-11s | %s", tag, l.name, fmt.Sprintf(format, args...))
}

// CreateLogger is the logger.Factory of rKV. New loggers log at info until
// InitLoggers sets the configured level.
func CreateLogger(pkgName string) logger.ILogger {
	return &rKVLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: log.New(os.Stdout, "", log.Ldate|log.Ltime),
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
		return logger.INFO, errors.Newf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// LoggerNames lists the package loggers of rKV
var LoggerNames = []string{"store", "replication", "health", "db", "rpc", "client"}

// InitLoggers installs CreateLogger and sets level on all package loggers of
// LoggerNames. An invalid level falls back to info.
func InitLoggers(level string) {
	logger.SetLoggerFactory(CreateLogger)

	lvl, err := ParseLogLevel(level)
	for _, name := range LoggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	if err != nil {
		logger.GetLogger("rpc").Warningf("%v, using info", err)
	}
}
