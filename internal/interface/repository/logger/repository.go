// Package logger is the concrete domain.Logger implementation backed
// by zap and lumberjack.
package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/StartiOne/upstream-proxy/internal/domain"
)

// Repository is a domain.Logger writing structured, leveled entries to
// a rotating file.
type Repository struct {
	core *zap.Logger
}

var _ domain.Logger = (*Repository)(nil)

// New creates the log directory if needed and returns a Repository
// writing to filepath.Join(directory, filename), rotated per config
// (DefaultRotationConfig if nil).
func New(directory, filename string, config *RotationConfig) (*Repository, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, err
	}

	if config == nil {
		config = DefaultRotationConfig()
	}

	writer := zapcore.AddSync(config.toLumberjack(filepath.Join(directory, filename)))

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), writer, zapcore.DebugLevel)
	return &Repository{core: zap.New(core)}, nil
}

// Info logs msg at info level with fields attached.
func (r *Repository) Info(msg string, fields map[string]interface{}) {
	r.core.Info(msg, toZapFields(fields)...)
}

// Error logs msg at error level, attaching err and fields.
func (r *Repository) Error(msg string, err error, fields map[string]interface{}) {
	f := toZapFields(fields)
	if err != nil {
		f = append(f, zap.Error(err))
	}
	r.core.Error(msg, f...)
}

// Debug logs msg at debug level with fields attached.
func (r *Repository) Debug(msg string, fields map[string]interface{}) {
	r.core.Debug(msg, toZapFields(fields)...)
}

// Close flushes any buffered log entries.
func (r *Repository) Close() error {
	return r.core.Sync()
}
