package relay

import "errors"

var (
	// ErrMalformedEvent marks an inbound event that was dropped because it
	// could not be decoded, named an unknown event, lacked a required field,
	// or claimed an identity other than the connection's.
	ErrMalformedEvent = errors.New("malformed event")

	ErrEmptyUsername     = errors.New("username cannot be empty")
	ErrDuplicateUsername = errors.New("username already connected")
	ErrNotRegistered     = errors.New("connection is not registered")
	ErrEmptyRoom         = errors.New("room key cannot be empty")
)
