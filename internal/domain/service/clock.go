package service

import "time"

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// RandomSource produces cryptographically secure random identifiers.
type RandomSource interface {
	Identifier() (string, error)
}
