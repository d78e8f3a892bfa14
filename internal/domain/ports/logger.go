package ports

import (
	"fmt"
	"time"
)

// Logger is the structured logger services and adapters write to. The zap
// adapter in pkg/logging implements it; tests pass one built on zaptest.
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
}

// Field is one structured key/value pair
type Field struct {
	Key   string
	Value any
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Stringer creates a field rendered with the value's String method. Use it
// for ids and amounts: uuid.UUID and decimal.Decimal both log as text.
func Stringer(key string, value fmt.Stringer) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates the conventional "error" field
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field holding an arbitrary value
func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}
