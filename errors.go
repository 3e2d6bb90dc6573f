package epubfix

import "errors"

// Sentinel errors returned by the epubfix package.
var (
	// ErrDRMProtected indicates the ePub file is protected by DRM
	// (e.g., Adobe ADEPT, Apple FairPlay, Readium LCP). Encrypted
	// documents cannot be repaired textually.
	ErrDRMProtected = errors.New("epubfix: file is DRM protected")

	// ErrInvalidEPub indicates the file is not a usable ePub
	// (e.g., missing container.xml and no .opf file found).
	ErrInvalidEPub = errors.New("epubfix: invalid ePub file")

	// ErrFileNotFound indicates the requested file does not exist
	// in the workspace.
	ErrFileNotFound = errors.New("epubfix: file not found in archive")

	// ErrUnsafePath indicates an archive entry would be extracted
	// outside of the workspace root.
	ErrUnsafePath = errors.New("epubfix: unsafe archive entry path")

	// ErrValidatorNotFound indicates the validator could not be started
	// because the java binary or the epubcheck jar is missing.
	ErrValidatorNotFound = errors.New("epubfix: validator not found")

	// ErrValidatorFailed indicates the validator exited abnormally
	// without producing any recognisable message.
	ErrValidatorFailed = errors.New("epubfix: validator failed")

	// ErrNoProgress indicates a pass left the book unchanged, or no
	// enabled rule addresses the codes in the last report.
	ErrNoProgress = errors.New("epubfix: no further fixes apply")

	// ErrIterationLimit indicates the book still fails validation
	// after the maximum number of passes.
	ErrIterationLimit = errors.New("epubfix: iteration limit reached")
)
