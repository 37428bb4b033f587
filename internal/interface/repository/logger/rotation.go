package logger

import "gopkg.in/natefinch/lumberjack.v2"

// RotationConfig holds the log rotation knobs (max size, max age, max
// backups); toLumberjack translates them into the lumberjack.Logger
// that performs the rotation.
type RotationConfig struct {
	MaxSizeMB  int // megabytes, lumberjack's native unit
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// DefaultRotationConfig returns a conservative default: 100MB per
// file, 7 days retention, 5 compressed backups.
func DefaultRotationConfig() *RotationConfig {
	return &RotationConfig{
		MaxSizeMB:  100,
		MaxAgeDays: 7,
		MaxBackups: 5,
		Compress:   true,
	}
}

func (c *RotationConfig) toLumberjack(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    c.MaxSizeMB,
		MaxAge:     c.MaxAgeDays,
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
	}
}
