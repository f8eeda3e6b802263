package protocol

import "errors"

var (
	ErrNotFound      = errors.New("protocol: not found")
	ErrTypeMismatch  = errors.New("protocol: type mismatch")
	ErrDuplicateName = errors.New("protocol: duplicate name")
	ErrExhausted     = errors.New("protocol: iteration exhausted")
	ErrUnknownTag    = errors.New("protocol: unknown type tag")
	ErrNotWireable   = errors.New("protocol: value is process-local")
	ErrInvalidLength = errors.New("protocol: invalid length")
	ErrInvalidName   = errors.New("protocol: invalid value name")
	ErrInvalidBool   = errors.New("protocol: invalid bool value")
)
