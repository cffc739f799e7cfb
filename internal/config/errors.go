package config

import "fmt"

// ConfigurationError reports invalid setup parameters. It is the only error that
// aborts a session, and it is always raised before the first turn.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}
