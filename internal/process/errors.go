package process

import "errors"

var (
	// ErrUnexpectedExit is reported when a child exits with status 0
	// while it was supposed to keep running.
	ErrUnexpectedExit = errors.New("process exited unexpectedly")

	// ErrUnhealthy is reported when a child was killed after failing its
	// health check too many times in a row.
	ErrUnhealthy = errors.New("process unhealthy")

	// ErrGaveUp is returned by Run once MaxRestarts is exhausted.
	ErrGaveUp = errors.New("restart limit reached")
)
