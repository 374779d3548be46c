package control

import "errors"

var (
	// ErrAlreadyRunning is returned when Run is called on an engine whose
	// loop is active or has already finished.
	ErrAlreadyRunning = errors.New("control: engine already started")

	// ErrInvalidQuantity is returned by Validate for a malformed quantity.
	ErrInvalidQuantity = errors.New("control: invalid quantity")
)
