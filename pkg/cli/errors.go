package cli

import "fmt"

// ConfigError reports a configuration problem surfaced by a command. Field
// names the offending config key in dotted form ("server.listen_address")
// and may be empty when the problem is not tied to a single key.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError wraps a failure from a named command so the CLI entrypoint
// can report which subcommand failed.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a ConfigError for a config key.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewCommandError wraps err as a failure of the named command.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}
