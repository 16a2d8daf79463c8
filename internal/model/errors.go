package model

import "errors"

// Sentinel errors returned by stores so services can translate them.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
