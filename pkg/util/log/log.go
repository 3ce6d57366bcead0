// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package log implements the agent's logging facade on top of seelog.
package log

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cihub/seelog"
)

var (
	logger *agentLogger

	// This buffer holds log lines sent to the logger before its
	// initialization. Even if setting up the logger is one of the first
	// things the agent does, we still load the conf and resolve the
	// driver paths before that point.
	logsBuffer           = []func(){}
	bufferLogsBeforeInit = true
	bufferMutex          sync.Mutex
	defaultStackDepth    = 2
)

// agentLogger is a wrapper structure for seelog
type agentLogger struct {
	inner seelog.LoggerInterface
	level seelog.LogLevel
	l     sync.RWMutex
}

// SetupLogger configures the logger singleton with a seelog interface
func SetupLogger(l seelog.LoggerInterface, level string) {
	logger = &agentLogger{
		inner: l,
	}

	lvl, ok := seelog.LogLevelFromString(strings.ToLower(level))
	if !ok {
		lvl = seelog.InfoLvl
	}
	logger.level = lvl

	// We're not going to call the wrapper directly, but through the
	// exported functions, which adds a frame in the stack trace that
	// should be skipped to get to the original caller.
	logger.inner.SetAdditionalStackDepth(defaultStackDepth) //nolint:errcheck

	// Flushing logs buffered before the logger was initialized
	bufferMutex.Lock()
	bufferLogsBeforeInit = false
	defer bufferMutex.Unlock()
	for _, logLine := range logsBuffer {
		logLine()
	}
	logsBuffer = []func(){}
}

// ChangeLogLevel changes the current log level, valid levels are trace, debug,
// info, warn, error, critical and off
func ChangeLogLevel(level string) error {
	if logger == nil {
		return errors.New("cannot change loglevel: logger not initialized")
	}

	logger.l.Lock()
	defer logger.l.Unlock()

	lvl, ok := seelog.LogLevelFromString(strings.ToLower(level))
	if !ok {
		return errors.New("bad log level")
	}
	logger.level = lvl
	return nil
}

// GetLogLevel returns the current log level
func GetLogLevel() (seelog.LogLevel, error) {
	if logger == nil {
		return seelog.InfoLvl, errors.New("logger not initialized")
	}

	logger.l.RLock()
	defer logger.l.RUnlock()

	return logger.level, nil
}

func (sw *agentLogger) shouldLog(level seelog.LogLevel) bool {
	sw.l.RLock()
	shouldLog := level >= sw.level
	sw.l.RUnlock()

	return shouldLog
}

func addLogToBuffer(logHandle func()) {
	bufferMutex.Lock()
	defer bufferMutex.Unlock()

	logsBuffer = append(logsBuffer, logHandle)
}

// bufferOrLog stashes the line if the logger isn't up yet, logs it otherwise.
func bufferOrLog(level seelog.LogLevel, doLog func()) {
	bufferMutex.Lock()
	buffer := bufferLogsBeforeInit
	bufferMutex.Unlock()

	if buffer && logger == nil {
		addLogToBuffer(doLog)
		return
	}
	if logger == nil || !logger.shouldLog(level) {
		return
	}
	doLog()
}

// Trace logs at the trace level
func Trace(v ...interface{}) {
	bufferOrLog(seelog.TraceLvl, func() { logger.inner.Trace(v...) })
}

// Tracef formats message according to format specifier and logs at the trace level
func Tracef(format string, params ...interface{}) {
	bufferOrLog(seelog.TraceLvl, func() { logger.inner.Tracef(format, params...) })
}

// Debug logs at the debug level
func Debug(v ...interface{}) {
	bufferOrLog(seelog.DebugLvl, func() { logger.inner.Debug(v...) })
}

// Debugf formats message according to format specifier and logs at the debug level
func Debugf(format string, params ...interface{}) {
	bufferOrLog(seelog.DebugLvl, func() { logger.inner.Debugf(format, params...) })
}

// Info logs at the info level
func Info(v ...interface{}) {
	bufferOrLog(seelog.InfoLvl, func() { logger.inner.Info(v...) })
}

// Infof formats message according to format specifier and logs at the info level
func Infof(format string, params ...interface{}) {
	bufferOrLog(seelog.InfoLvl, func() { logger.inner.Infof(format, params...) })
}

// Warn logs at the warn level and returns an error containing the formated log message
func Warn(v ...interface{}) error {
	err := fmt.Errorf("%s", fmt.Sprint(v...))
	bufferOrLog(seelog.WarnLvl, func() { logger.inner.Warn(err.Error()) }) //nolint:errcheck
	return err
}

// Warnf formats message according to format specifier, logs at the warn level
// and returns an error containing the formated log message
func Warnf(format string, params ...interface{}) error {
	err := fmt.Errorf(format, params...)
	bufferOrLog(seelog.WarnLvl, func() { logger.inner.Warn(err.Error()) }) //nolint:errcheck
	return err
}

// Error logs at the error level and returns an error containing the formated log message
func Error(v ...interface{}) error {
	err := fmt.Errorf("%s", fmt.Sprint(v...))
	bufferOrLog(seelog.ErrorLvl, func() { logger.inner.Error(err.Error()) }) //nolint:errcheck
	return err
}

// Errorf formats message according to format specifier, logs at the error level
// and returns an error containing the formated log message
func Errorf(format string, params ...interface{}) error {
	err := fmt.Errorf(format, params...)
	bufferOrLog(seelog.ErrorLvl, func() { logger.inner.Error(err.Error()) }) //nolint:errcheck
	return err
}

// Critical logs at the critical level and returns an error containing the formated log message
func Critical(v ...interface{}) error {
	err := fmt.Errorf("%s", fmt.Sprint(v...))
	bufferOrLog(seelog.CriticalLvl, func() { logger.inner.Critical(err.Error()) }) //nolint:errcheck
	return err
}

// Criticalf formats message according to format specifier, logs at the critical
// level and returns an error containing the formated log message
func Criticalf(format string, params ...interface{}) error {
	err := fmt.Errorf(format, params...)
	bufferOrLog(seelog.CriticalLvl, func() { logger.inner.Critical(err.Error()) }) //nolint:errcheck
	return err
}

// Flush flushes the underlying inner log
func Flush() {
	if logger != nil && logger.inner != nil {
		logger.inner.Flush()
	}
}

// ReplaceLogger allows replacing the internal logger, returns old logger
func ReplaceLogger(l seelog.LoggerInterface) seelog.LoggerInterface {
	if logger == nil {
		return nil
	}

	logger.l.Lock()
	defer logger.l.Unlock()

	old := logger.inner
	l.SetAdditionalStackDepth(defaultStackDepth) //nolint:errcheck
	logger.inner = l

	return old
}
