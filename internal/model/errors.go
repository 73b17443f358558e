package model

import "errors"

var (
	// ErrSessionNotFound is returned when no live session exists for an id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionDead is returned when an operation targets a session in a
	// terminal state.
	ErrSessionDead = errors.New("session is dead and must be recreated")

	// ErrPlanNotFound is returned when no execution plan exists for a planId.
	ErrPlanNotFound = errors.New("plan not found")
)
