// Package common contains common constants and variables used across services
package common

const (
	// RequestIDHeader carries the caller's correlation id. It is echoed back
	// and attached to every log line of the request.
	RequestIDHeader = "X-Request-Id"

	APIVersion = "v1"

	DefaultPageLimit = 100
	MaxPageLimit     = 500
)
