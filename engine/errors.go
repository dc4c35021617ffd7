package engine

import "errors"

// Recoverable errors returned synchronously from registry and match entry
// points. None of these crash the process; invariant violations inside the
// engine itself are surfaced with a panic instead (see baseMatch.finish).
var (
	ErrGameTypeRegistered  = errors.New("game type already registered")
	ErrUnknownGameType     = errors.New("unknown game type")
	ErrTooFewParticipants  = errors.New("too few participants for game type")
	ErrTooManyParticipants = errors.New("too many participants for game type")

	ErrMatchAlreadyStarted = errors.New("match already started")
	ErrWrongPhase          = errors.New("action not valid in current phase")
	ErrPlayerNotFound      = errors.New("participant is not part of this match")
	ErrPlayerInactive      = errors.New("participant has been eliminated")
	ErrInvalidAction       = errors.New("action payload is invalid")
)
