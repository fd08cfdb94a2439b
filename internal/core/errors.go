package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDirectoryUnavailable means a directory request failed outright.
	// The match attempt is aborted; rematching is user-triggered, so there
	// is no automatic retry.
	ErrDirectoryUnavailable = errors.New("room directory unavailable")

	// ErrNotPaired is returned by operations that require a live pairing.
	ErrNotPaired = errors.New("not paired")

	// ErrSuperseded reports that a pairing attempt was overtaken by a newer
	// one and its result was discarded. Informational: the client is left
	// in whatever state the newer attempt produced.
	ErrSuperseded = errors.New("pairing attempt superseded")
)

// Join stages for JoinError.
const (
	StageChannel = "channel"
	StageMedia   = "media"
)

// JoinError is a channel or media join failure after a successful directory
// match. It aborts the in-progress transition.
type JoinError struct {
	Stage string
	Err   error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join %s: %v", e.Stage, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }
