package model

import "errors"

// Common errors used across the application
var (
	// Entity errors
	ErrDuplicateEntity = errors.New("entity already exists")
	ErrUnknownParent   = errors.New("parent entity does not exist")
	ErrNotFound        = errors.New("entity not found")

	// Naming errors
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// Session errors
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidHandshake  = errors.New("invalid handshake")
	ErrNotAuthenticated  = errors.New("connection is not authenticated")
	ErrInvalidCapability = errors.New("invalid capability")
	ErrConnectionClosed  = errors.New("connection closed")

	// ErrAuth is deliberately the only value returned for any credential
	// failure, whichever check failed.
	ErrAuth      = errors.New("invalid credentials")
	ErrThrottled = errors.New("too many failed attempts")

	// Backing store errors
	ErrTransientConnection = errors.New("transient connection error")
)
