package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrAlreadyExists   = errors.New("already exists")
	ErrNotDocument     = errors.New("not a document")
	ErrInvalidLinkName = errors.New("invalid link name")
	ErrInvalidInput    = errors.New("invalid input")
)
