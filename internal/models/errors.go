package models

import "errors"

// Custom errors
var (
	ErrNotFound        = errors.New("record not found")
	ErrMissingPropID   = errors.New("payload missing prop_id")
	ErrMissingProvider = errors.New("payload missing provider")
)
