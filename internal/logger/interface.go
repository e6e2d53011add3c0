// Package logger wraps zerolog behind a small component-tagged interface.
package logger

// Logger provides structured logging with a component tag and fields.
type Logger interface {
	Info(component, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
	Warning(component, message string, fields map[string]interface{})
	Debug(component, message string, fields map[string]interface{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) Info(string, string, map[string]interface{}) {}
func (Nop) Error(string, error, map[string]interface{}) {}
func (Nop) Warning(string, string, map[string]interface{}) {}
func (Nop) Debug(string, string, map[string]interface{}) {}

// OrNop returns l, or a Nop logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return l
}
