package rangebar

import "fmt"

// ConfigError reports an invalid processor configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rangebar: config %s: %s", e.Field, e.Reason)
}

// SequenceError reports a malformed trade or a broken input ordering.
// It always carries the offending trade's identifying fields and is fatal
// to the processor instance that observed it.
type SequenceError struct {
	TradeID   int64
	Symbol    string
	Timestamp int64
	Reason    string
	Err       error
}

func (e *SequenceError) Error() string {
	msg := fmt.Sprintf("rangebar: trade id=%d symbol=%s ts=%d: %s", e.TradeID, e.Symbol, e.Timestamp, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SequenceError) Unwrap() error { return e.Err }
