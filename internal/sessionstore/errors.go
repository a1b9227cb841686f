package sessionstore

import "errors"

// Sentinel errors matching the Resource/Validation taxonomy of spec §7.
var (
	ErrNotFound     = errors.New("sessionstore: not found")
	ErrCorrupt      = errors.New("sessionstore: corrupt document")
	ErrLockTimeout  = errors.New("sessionstore: lock acquisition timeout")
	ErrBadAPIVersion = errors.New("sessionstore: unexpected apiVersion or kind")
)
