package session

import "time"

// Config bounds decode work and reply waits for one driver session.
type Config struct {
	MaxFields int
	// ReplyTimeout caps each collective wait. Zero waits until the caller's
	// context ends.
	ReplyTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxFields: 64,
	}
}
