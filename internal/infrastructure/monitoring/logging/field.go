package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a typed key-value pair attached to a log entry. Components build
// fields with the constructors below and never import zap themselves.
type Field = zapcore.Field

var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Float64  = zap.Float64
	Bool     = zap.Bool
	Duration = zap.Duration
	Strings  = zap.Strings
	Any      = zap.Any
)

// Err logs err's message under "error", or "<nil>" for a nil error.
func Err(err error) Field {
	if err == nil {
		return zap.String("error", "<nil>")
	}
	return zap.String("error", err.Error())
}

// FieldValues decodes fields into a plain map, as an encoder would see them.
// Integers come back as int64.
func FieldValues(fields []Field) map[string]interface{} {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	return enc.Fields
}
