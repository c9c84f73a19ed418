package domain

import "errors"

var (
	// ErrNotFound is returned when no identity exists for a server id.
	ErrNotFound = errors.New("server not found")

	// ErrStaleHeartbeatIgnored is returned when a heartbeat targets a server
	// without a live cache entry. The server must register again.
	ErrStaleHeartbeatIgnored = errors.New("heartbeat ignored: server is not online")

	// ErrOutOfOrderHeartbeat is returned when a heartbeat is older than the
	// last one accepted for the same server.
	ErrOutOfOrderHeartbeat = errors.New("heartbeat ignored: older than stored state")

	// ErrStoreUnavailable wraps any durable or volatile store I/O failure.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrMalformedState is returned when a cache entry exists but its
	// player list cannot be decoded.
	ErrMalformedState = errors.New("malformed volatile state")

	// ErrInvalidRegistration is returned for registrations failing validation.
	ErrInvalidRegistration = errors.New("invalid registration")
)
