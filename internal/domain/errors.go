package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrNotConnected indicates no serial port is open
	ErrNotConnected = errors.New("teensyrom is not connected")

	// ErrFileNotFound indicates the path is not in the cache
	ErrFileNotFound = errors.New("file not found")

	// ErrNoFiles indicates a random pick found nothing to choose from
	ErrNoFiles = errors.New("no matching files in cache")

	// ErrNotLaunchable indicates the file kind cannot be run by the cartridge
	ErrNotLaunchable = errors.New("file type cannot be launched")
)
