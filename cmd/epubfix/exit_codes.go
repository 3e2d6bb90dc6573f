package main

import (
	"errors"
	"os"

	"github.com/simp-lee/epubfix"
	"github.com/simp-lee/epubfix/internal/config"
)

// Exit codes for the epubfix CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess   = 0 // Every book repaired or valid
	ExitGeneral   = 1 // General/unexpected error
	ExitUsage     = 2 // Invalid flags, config, or rule names
	ExitIO        = 3 // Input missing, unreadable, not an ePub, or DRM protected
	ExitValidator = 4 // epubcheck missing or crashed
	ExitInvalid   = 5 // Book still fails validation
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Still invalid (exit 5)
	if errors.Is(err, epubfix.ErrNoProgress) ||
		errors.Is(err, epubfix.ErrIterationLimit) ||
		errors.Is(err, ErrBookInvalid) {
		return ExitInvalid
	}

	// Validator errors (exit 4)
	if errors.Is(err, epubfix.ErrValidatorNotFound) ||
		errors.Is(err, epubfix.ErrValidatorFailed) {
		return ExitValidator
	}

	// Usage/config errors (exit 2)
	if errors.Is(err, ErrUsage) ||
		errors.Is(err, ErrUnknownRule) ||
		errors.Is(err, ErrInvalidOutput) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrInvalidValue) {
		return ExitUsage
	}

	// I/O and input errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrNoInput) ||
		errors.Is(err, ErrReadStylesheet) ||
		errors.Is(err, epubfix.ErrInvalidEPub) ||
		errors.Is(err, epubfix.ErrDRMProtected) ||
		errors.Is(err, epubfix.ErrUnsafePath) ||
		errors.Is(err, epubfix.ErrFileNotFound) {
		return ExitIO
	}

	return ExitGeneral
}
