package model

import "time"

// Shared defaults used by both the server and CLI binaries.
const (
	DefaultRefreshInterval = 60 * time.Second
	DefaultPageSize        = 15
)
