package guesswho

import "errors"

// Game errors surfaced across the selector, session and director layers.
var (
	// ErrInsufficientPool is returned when fewer qualified avatars are
	// available than a round needs.
	ErrInsufficientPool = errors.New("not enough qualified avatars for a round")

	// ErrNoActiveRound is returned for a guess submitted while no round
	// is awaiting one.
	ErrNoActiveRound = errors.New("no active round")

	// ErrRoundActive is returned when a round is started while the
	// previous one is still awaiting a guess.
	ErrRoundActive = errors.New("a round is already in progress")

	// ErrSessionEnded is returned for any operation on an ended session.
	ErrSessionEnded = errors.New("session has ended")
)
