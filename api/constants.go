package api

import "time"

const (
	// ScanTimeout bounds a whole scan request across all files
	ScanTimeout = 5 * time.Minute

	// RemoveTimeout bounds a whole removal batch
	RemoveTimeout = 10 * time.Minute

	// DefaultFilePermissions for temp directory creation
	DefaultFilePermissions = 0755
)
