package client

import "errors"

var (
	// ErrNotRunning is returned when no sweep is serving progress on the socket
	ErrNotRunning = errors.New("no sweep is running")

	// ErrPermissionDenied is returned when the user does not have permission to access the socket
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when 404 is returned from the sweep
	ErrNotFound = errors.New("404 not found")
)
