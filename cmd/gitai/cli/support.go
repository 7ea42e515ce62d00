package cli

import (
	"os"

	"github.com/charmbracelet/huh"
)

// IsAccessibleMode returns true if accessibility mode should be enabled.
// Set ACCESSIBLE=1 (or any non-empty value) to enable accessible mode,
// which uses simpler prompts that work better with screen readers.
func IsAccessibleMode() bool {
	return os.Getenv("ACCESSIBLE") != ""
}

func gitaiTheme() *huh.Theme {
	return huh.ThemeDracula()
}

// NewAccessibleForm creates a new huh form with accessibility mode enabled
// if the ACCESSIBLE environment variable is set. WithAccessible() is only
// available on forms, not individual fields, so every prompt goes through
// this constructor rather than building a huh.Form directly.
func NewAccessibleForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...).WithTheme(gitaiTheme())
	if IsAccessibleMode() {
		form = form.WithAccessible(true)
	}
	return form
}

// SilentError wraps an error that a command has already reported to the
// user (e.g. via a formatted message to stderr), so main.go's generic
// error printer should not print it again.
type SilentError struct {
	err error
}

// NewSilentError wraps err as a SilentError.
func NewSilentError(err error) *SilentError {
	return &SilentError{err: err}
}

func (e *SilentError) Error() string { return e.err.Error() }
func (e *SilentError) Unwrap() error { return e.err }
