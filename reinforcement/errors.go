package reinforcement

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports invalid or degenerate training parameters, or an
// environment whose state or action space cannot be trained on.
type ConfigurationError struct {
	Problems []string
}

func newConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Problems: []string{fmt.Sprintf(format, args...)}}
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + strings.Join(e.Problems, "; ")
}

// MalformedKeyError is returned when a state or state-action key cannot be decoded.
type MalformedKeyError struct {
	Key    string
	Reason string
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("malformed key %q: %s", e.Key, e.Reason)
}

// ErrUnknownState is returned when the environment reports a state outside its declared state space.
var ErrUnknownState = errors.New("state not in state space")
