// Package timeouts defines shared timeout constants used across binaries.
// Centralizing these values keeps the HTTP surfaces and the worker loop
// from drifting apart.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// PushDelivery caps one Web Push delivery attempt.
const PushDelivery = 10 * time.Second
