package core

import (
	"errors"
	"fmt"
)

// ConfigError is a fatal, user-actionable problem detected before a batch
// starts. Nothing has been sent to the remote API when one is returned.
type ConfigError struct {
	Code    string // stable code for programmatic handling
	Message string // what is wrong
	Action  string // how to fix it
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Configuration error codes.
const (
	ErrCodeNoTokens         = "NO_TOKENS"
	ErrCodeNoPrompts        = "NO_PROMPTS"
	ErrCodeLedgerUnreadable = "LEDGER_UNREADABLE"
	ErrCodeInvalidConfig    = "INVALID_CONFIG"
	ErrCodeDuplicateToken   = "DUPLICATE_TOKEN"
)

// ErrNoTokens is returned when the credential pool is empty at batch start.
func ErrNoTokens(settingsPath string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeNoTokens,
		Message: "No credential tokens configured",
		Action:  fmt.Sprintf("Add one with `batchgen tokens add <name> <token>` or edit %s", settingsPath),
	}
}

// ErrNoPrompts is returned when the ledger has no pending prompts.
func ErrNoPrompts(promptsFile string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeNoPrompts,
		Message: fmt.Sprintf("No pending prompts in %s", promptsFile),
		Action:  "Add one prompt per line; lines starting with # are ignored",
	}
}

// ErrLedgerUnreadable wraps a failure to load the prompt file.
func ErrLedgerUnreadable(promptsFile string, cause error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeLedgerUnreadable,
		Message: fmt.Sprintf("Cannot read prompts file %s: %v", promptsFile, cause),
		Action:  "Set PROMPTS_FILE to an existing, readable text file",
	}
}

// ErrInvalidConfig reports an out-of-range or malformed setting.
func ErrInvalidConfig(name, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidConfig,
		Message: fmt.Sprintf("Invalid %s: %s", name, reason),
		Action:  fmt.Sprintf("Fix %s in your .env or settings file", name),
	}
}

// ErrDuplicateToken reports an add of a secret already in the pool.
func ErrDuplicateToken(name string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeDuplicateToken,
		Message: fmt.Sprintf("Token %q is already configured", name),
		Action:  "Remove the existing entry first or use a different token",
	}
}

// IsConfigError returns the ConfigError anywhere in err's chain.
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode returns the ConfigError code in err's chain, or "".
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
