package logger

import "go.uber.org/zap"

// toZapFields converts the domain.Logger call-site's loosely typed
// field map into zap.Field values.
func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
