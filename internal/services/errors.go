package services

import "errors"

var (
	// ErrLimitReached is returned when connecting would exceed the user's
	// plan limit. The authorization code is not exchanged in this case.
	ErrLimitReached = errors.New("connection limit reached")

	// ErrNoRefreshToken is returned when a refresh is requested for a
	// connection whose platform never issued a refresh credential.
	ErrNoRefreshToken = errors.New("connection has no refresh token")

	// ErrReauthRequired is returned when stored credentials are no longer
	// usable and the user must walk the OAuth flow again.
	ErrReauthRequired = errors.New("connection requires reauthorization")

	// ErrForbidden is returned when a connection exists but belongs to a
	// different user. Distinct from ErrNotFound so handlers can answer 403
	// instead of 404.
	ErrForbidden = errors.New("connection belongs to another user")

	// ErrNotFound is returned when no connection matches the given ID.
	ErrNotFound = errors.New("connection not found")
)
