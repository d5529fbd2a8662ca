// Package timeouts defines shared timeout constants used across the wallet
// service. Centralizing these values prevents drift between service
// boundaries and makes the durations discoverable.
package timeouts

import "time"

// BackendRequest caps the time allowed for a single call to the upstream
// card backend.
const BackendRequest = 10 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 10 * time.Second
