package hnap

import "errors"

var (
	// ErrRequestFailed wraps transport failures: connection errors,
	// timeouts, non-2xx responses and an open circuit breaker.
	ErrRequestFailed = errors.New("hnap: request failed")

	// ErrLoginFailed is returned when the plug rejects the credentials.
	ErrLoginFailed = errors.New("hnap: login failed")

	// ErrBadResponse is returned when a login reply lacks a required element
	// or carries an unexpected result.
	ErrBadResponse = errors.New("hnap: bad response")

	// ErrSessionClosed is returned by Session methods after Close.
	ErrSessionClosed = errors.New("hnap: session closed")

	// ErrNotLoggedIn is returned when a Session has no derived key.
	ErrNotLoggedIn = errors.New("hnap: not logged in")
)
