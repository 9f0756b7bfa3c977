package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: resource conflict")
	ErrInvalidInput = errors.New("auth: invalid input")

	ErrEmailNotFound     = errors.New("auth: email not found")
	ErrIncorrectPassword = errors.New("auth: incorrect password")
	ErrAccountInactive   = errors.New("auth: account inactive")
)
