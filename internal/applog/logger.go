// Package applog provides a process-wide arbor logger singleton configured
// from appconfig.Config, with console and/or file writers per deployment.
package applog

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	arborcommon "github.com/ternarybob/arbor/common"
	"github.com/ternarybob/arbor/models"

	"github.com/beebs-dev/dorch/internal/appconfig"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

// Get returns the global logger, falling back to a bare console logger if
// Setup hasn't run yet (e.g. very early in main() before config load).
func Get() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		defer loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(writerConfig(models.LogWriterTypeConsole, "", ""))
	}
	return globalLogger
}

// Setup configures and installs the global logger from cfg.Logging.
func Setup(cfg appconfig.LoggingConfig) arbor.ILogger {
	logger := arbor.NewLogger()

	hasFile := contains(cfg.Output, "file")
	hasConsole := contains(cfg.Output, "stdout") || contains(cfg.Output, "console")

	if hasFile {
		logsDir := cfg.Dir
		if logsDir == "" {
			logsDir = "./logs"
		}
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			logger = logger.WithConsoleWriter(writerConfig(models.LogWriterTypeConsole, "", cfg.TimeFormat))
			logger.Warn().Err(err).Str("logs_dir", logsDir).Msg("failed to create logs directory")
		} else {
			logFile := filepath.Join(logsDir, "dorch.log")
			logger = logger.WithFileWriter(writerConfig(models.LogWriterTypeFile, logFile, cfg.TimeFormat))
		}
	}

	if hasConsole || !hasFile {
		logger = logger.WithConsoleWriter(writerConfig(models.LogWriterTypeConsole, "", cfg.TimeFormat))
	}

	logger = logger.WithLevelFromString(cfg.Level)

	loggerMutex.Lock()
	globalLogger = logger
	loggerMutex.Unlock()

	return logger
}

func writerConfig(t models.LogWriterType, filename, timeFormat string) models.WriterConfiguration {
	if timeFormat == "" {
		timeFormat = "15:04:05.000"
	}
	return models.WriterConfiguration{
		Type:       t,
		FileName:   filename,
		TimeFormat: timeFormat,
		MaxSize:    100 * 1024 * 1024,
		MaxBackups: 3,
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Stop flushes any buffered log output before process exit.
func Stop() {
	arborcommon.Stop()
}
