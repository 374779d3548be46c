package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrParse is returned when a payload on a known topic is malformed.
	ErrParse = errors.New("ingest: malformed payload")

	// ErrUnknownTopic is returned for topics outside sensors/<channel>/{data,status}
	// or for channels with no registered sensor.
	ErrUnknownTopic = errors.New("ingest: unknown topic")
)

// ParseError describes a payload that could not be decoded.
// errors.Is(err, ErrParse) reports true for it.
type ParseError struct {
	Topic   string
	Payload string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ingest: malformed payload %q on %s: %v", e.Payload, e.Topic, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is matches ErrParse.
func (e *ParseError) Is(target error) bool { return target == ErrParse }
