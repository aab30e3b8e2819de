/*
 Licensed to the Apache Software Foundation (ASF) under one
 or more contributor license agreements.  See the NOTICE file
 distributed with this work for additional information
 regarding copyright ownership.  The ASF licenses this file
 to you under the Apache License, Version 2.0 (the
 "License"); you may not use this file except in compliance
 with the License.  You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package log

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerHandle identifies a subsystem logger. Handles are static and must be
// declared below, never constructed at runtime by callers.
type LoggerHandle struct {
	id   int
	name string
}

func (h *LoggerHandle) String() string {
	return h.name
}

// The list of all subsystem loggers.
var (
	Core       = &LoggerHandle{id: 0, name: "core"}
	Allocator  = &LoggerHandle{id: 1, name: "core.allocator"}
	Sorter     = &LoggerHandle{id: 2, name: "core.sorter"}
	Quota      = &LoggerHandle{id: 3, name: "core.quota"}
	Config     = &LoggerHandle{id: 4, name: "core.config"}
	Web        = &LoggerHandle{id: 5, name: "core.web"}
	Entrypoint = &LoggerHandle{id: 6, name: "core.entrypoint"}
	Metrics    = &LoggerHandle{id: 7, name: "core.metrics"}
	Diagnostic = &LoggerHandle{id: 8, name: "core.diagnostic"}
)

const handleCount = 9

var once sync.Once
var initialized bool
var rootLogger *zap.Logger
var zapConfig *zap.Config
var loggers []*zap.Logger
var levels []zapcore.Level

// Logger returns the root logger, initializing it with the default
// configuration if no logger has been set up yet.
func Logger() *zap.Logger {
	once.Do(func() {
		if rootLogger == nil {
			zapConfig = createConfig()
			var err error
			rootLogger, err = zapConfig.Build()
			// this should really not happen so just write to stdout and set a Nop logger
			if err != nil {
				fmt.Printf("Logging disabled, logger init failed with error: %v\n", err)
				rootLogger = zap.NewNop()
			}
		}
		initLoggers()
		initialized = true
	})
	return rootLogger
}

// Log returns the logger associated with the given handle.
func Log(handle *LoggerHandle) *zap.Logger {
	Logger()
	return loggers[handle.id]
}

// InitializeLogger installs an externally built logger and its config. It is
// a no-op once any logger has been used; the first caller wins.
func InitializeLogger(logger *zap.Logger, config *zap.Config) {
	once.Do(func() {
		rootLogger = logger
		zapConfig = config
		initLoggers()
		initialized = true
		rootLogger.Info("logging initialized from external configuration")
	})
}

func IsDebugEnabled() bool {
	if !initialized {
		// when under development mode
		return true
	}
	return rootLogger.Core().Enabled(zapcore.DebugLevel)
}

// Visible by tests
func InitAndSetLevel(level zapcore.Level) {
	Logger()
	zapConfig.Level.SetLevel(level)
	for i := range levels {
		levels[i] = level
	}
}

// SetLogLevel changes the level of a single subsystem logger at runtime.
func SetLogLevel(handle *LoggerHandle, level zapcore.Level) {
	Logger()
	levels[handle.id] = level
}

func initLoggers() {
	loggers = make([]*zap.Logger, handleCount)
	levels = make([]zapcore.Level, handleCount)
	for _, handle := range []*LoggerHandle{
		Core, Allocator, Sorter, Quota, Config, Web, Entrypoint, Metrics, Diagnostic,
	} {
		h := handle
		levels[h.id] = zapcore.DebugLevel
		loggers[h.id] = rootLogger.Named(h.name).WithOptions(
			zap.WrapCore(func(inner zapcore.Core) zapcore.Core {
				return filteredCore{level: func() zapcore.Level { return levels[h.id] }, inner: inner}
			}))
	}
}

// Create a log config to keep full control over
// LogLevel set to DEBUG, Encodes for console, Writes to stderr,
// Enables development mode (DPanicLevel),
// Print stack traces for messages at WarnLevel and above
func createConfig() *zap.Config {
	return &zap.Config{
		Level:       zap.NewAtomicLevelAt(zap.DebugLevel),
		Development: true,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			LevelKey:      "level",
			TimeKey:       "time",
			NameKey:       "name",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			LineEnding:    zapcore.DefaultLineEnding,
			// note: https://godoc.org/go.uber.org/zap/zapcore#EncoderConfig
			// only EncodeName is optional all others must be set
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
}
