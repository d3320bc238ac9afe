package service

import "errors"

// Common service errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("player mismatch")
	ErrNotFound     = errors.New("resource not found")
)

// Match service specific errors
var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrReviewNotFound = errors.New("review item not found")
)
