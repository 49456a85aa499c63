package domain

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorage            = errors.New("storage failure")
	ErrMessageNotFound    = errors.New("message not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrBlocked            = errors.New("origin temporarily blocked")
	ErrNotJoined          = errors.New("connection is not joined")
)
