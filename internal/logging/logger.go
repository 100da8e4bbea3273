package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	// LogLevelQuiet suppresses all output except critical errors
	LogLevelQuiet LogLevel = "quiet"
	// LogLevelNormal shows standard operational messages
	LogLevelNormal LogLevel = "normal"
	// LogLevelVerbose shows detailed operational information
	LogLevelVerbose LogLevel = "verbose"
	// LogLevelDebug shows all debug information
	LogLevelDebug LogLevel = "debug"
)

// Logger provides structured logging capabilities
type Logger struct {
	logger *logrus.Logger
	level  LogLevel
}

// Config holds logger configuration
type Config struct {
	Level      LogLevel
	Output     io.Writer
	Format     string // "text" or "json"
	ShowCaller bool
	LogFile    string
}

// NewLogger creates a new logger with the specified configuration
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	// Set output
	if config.Output != nil {
		logger.SetOutput(config.Output)
	} else {
		logger.SetOutput(os.Stdout)
	}

	// Set format
	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			DisableColors:   false,
		})
	}

	// Set log level based on our custom levels
	switch config.Level {
	case LogLevelQuiet:
		logger.SetLevel(logrus.ErrorLevel)
	case LogLevelNormal:
		logger.SetLevel(logrus.InfoLevel)
	case LogLevelVerbose:
		logger.SetLevel(logrus.DebugLevel)
	case LogLevelDebug:
		logger.SetLevel(logrus.TraceLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	// Enable caller reporting if requested
	if config.ShowCaller {
		logger.SetReportCaller(true)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				filename := filepath.Base(f.File)
				return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filename, f.Line)
			},
		})
	}

	// Set up file logging if specified
	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFile, err)
		}

		// Use multi-writer to write to both file and stdout
		if config.Output == nil {
			logger.SetOutput(io.MultiWriter(os.Stdout, file))
		} else {
			logger.SetOutput(io.MultiWriter(config.Output, file))
		}
	}

	return &Logger{
		logger: logger,
		level:  config.Level,
	}, nil
}

// NewDefaultLogger creates a logger with default configuration
func NewDefaultLogger() *Logger {
	config := Config{
		Level:      LogLevelNormal,
		Output:     os.Stdout,
		Format:     "text",
		ShowCaller: false,
	}

	logger, _ := NewLogger(config)
	return logger
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.logger.WithFields(fields)
}

// WithField returns a logger with a single additional field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

// Pipeline operation logging methods

// LogBackupGenerated logs a completed snapshot generation.
func (l *Logger) LogBackupGenerated(backupID string, ownerID int64, entityType string, rows int, size string, duration time.Duration) {
	l.logger.WithFields(logrus.Fields{
		"operation":   "backup_generate",
		"backup_id":   backupID,
		"owner_id":    ownerID,
		"entity_type": entityType,
		"rows":        rows,
		"size":        size,
		"duration":    duration.String(),
	}).Info("Backup generated")
}

// LogBackupSkipped logs a snapshot that was skipped because the owner has no
// rows of that type.
func (l *Logger) LogBackupSkipped(ownerID int64, entityType string) {
	l.logger.WithFields(logrus.Fields{
		"operation":   "backup_generate",
		"owner_id":    ownerID,
		"entity_type": entityType,
	}).Info("Backup skipped: no rows to snapshot")
}

// LogUploadAttempt logs one cloud upload attempt.
func (l *Logger) LogUploadAttempt(backupID string, attempt, maxAttempts int, err error) {
	fields := logrus.Fields{
		"operation": "cloud_upload",
		"backup_id": backupID,
		"attempt":   attempt,
		"max":       maxAttempts,
	}
	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Warn("Cloud upload attempt failed")
	} else {
		l.logger.WithFields(fields).Info("Cloud upload completed")
	}
}

// LogUploadTerminal logs a terminal upload failure after all attempts.
func (l *Logger) LogUploadTerminal(backupID string, attempts int, err error) {
	l.logger.WithFields(logrus.Fields{
		"operation": "cloud_upload",
		"backup_id": backupID,
		"attempts":  attempts,
		"error":     err.Error(),
	}).Error("Cloud upload failed terminally")
}

// LogRestoreSummary logs the outcome of a restore run.
func (l *Logger) LogRestoreSummary(backupID, entityType string, restored, skipped, duplicates int) {
	l.logger.WithFields(logrus.Fields{
		"operation":   "restore",
		"backup_id":   backupID,
		"entity_type": entityType,
		"restored":    restored,
		"skipped":     skipped,
		"duplicates":  duplicates,
	}).Info("Restore completed")
}

// LogRetentionSweep logs a retention purge.
func (l *Logger) LogRetentionSweep(processed, purged int, warnings []string, duration time.Duration) {
	fields := logrus.Fields{
		"operation": "retention_sweep",
		"processed": processed,
		"purged":    purged,
		"duration":  duration.String(),
	}
	if len(warnings) > 0 {
		fields["warnings"] = warnings
	}
	l.logger.WithFields(fields).Info("Retention sweep completed")
}

// LogScheduledRun logs a scheduler-triggered backup run for one owner.
func (l *Logger) LogScheduledRun(ownerID int64, frequency string, types int, failures int) {
	fields := logrus.Fields{
		"operation": "scheduled_run",
		"owner_id":  ownerID,
		"frequency": frequency,
		"types":     types,
	}
	if failures > 0 {
		fields["failures"] = failures
		l.logger.WithFields(fields).Warn("Scheduled backup run completed with failures")
	} else {
		l.logger.WithFields(fields).Info("Scheduled backup run completed")
	}
}

// Standard logging methods

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.logger.Info(msg)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.logger.Debug(msg)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.logger.Warn(msg)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.logger.Error(msg)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) {
	l.logger.Fatal(msg)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf(format, args...)
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	switch level {
	case LogLevelQuiet:
		l.logger.SetLevel(logrus.ErrorLevel)
	case LogLevelNormal:
		l.logger.SetLevel(logrus.InfoLevel)
	case LogLevelVerbose:
		l.logger.SetLevel(logrus.DebugLevel)
	case LogLevelDebug:
		l.logger.SetLevel(logrus.TraceLevel)
	}
}

// LogOperationStart logs the start of an operation and returns a function to log completion
func (l *Logger) LogOperationStart(operation string, fields map[string]interface{}) func(error) {
	startTime := time.Now()

	logFields := logrus.Fields{
		"operation": operation,
		"status":    "started",
	}

	// Add additional fields
	for k, v := range fields {
		logFields[k] = v
	}

	l.logger.WithFields(logFields).Debug("Operation started")

	return func(err error) {
		duration := time.Since(startTime)
		logFields["status"] = "completed"
		logFields["duration"] = duration.String()

		if err != nil {
			logFields["error"] = err.Error()
			logFields["success"] = false
			l.logger.WithFields(logFields).Error("Operation failed")
		} else {
			logFields["success"] = true
			l.logger.WithFields(logFields).Info("Operation completed")
		}
	}
}
