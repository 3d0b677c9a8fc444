// Package apperr holds the sentinel errors shared across sidestamp packages.
//
// Per-item errors are wrapped with fmt.Errorf("...: %w") at the point of
// failure and classified at the item boundary with errors.Is.
package apperr

import "errors"

// Run-level.
var (
	ErrDirectoryNotFound = errors.New("directory not found")
)

// Per-item skips.
var (
	ErrNoMatch          = errors.New("no matching image")
	ErrMissingTimestamp = errors.New("missing timestamp")
)

// Per-item errors.
var (
	ErrInvalidSidecar   = errors.New("invalid sidecar")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrImageOpen        = errors.New("cannot open image")
	ErrDecode           = errors.New("cannot decode metadata")
	ErrEncode           = errors.New("cannot encode metadata")
	ErrWrite            = errors.New("cannot write image")
)

// Shells.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrInvalidPath = errors.New("invalid path")
)
