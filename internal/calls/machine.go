package calls

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlreadyTerminal   = errors.New("calls: call already terminal")
	ErrInvalidTransition = errors.New("calls: invalid transition")
)

// transitions lists the allowed edges. Terminal states have no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConnecting, StatusMissed, StatusCancelled, StatusRejected},
	StatusConnecting: {StatusOngoing, StatusMissed, StatusRejected, StatusCancelled},
	StatusOngoing:    {StatusEnded},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Apply moves rec to status to at time at, stamping the timestamps that transition owns.
// It does not persist anything.
func Apply(rec *CallRecord, to Status, at time.Time) error {
	if rec.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if !CanTransition(rec.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, to)
	}
	at = at.UTC()

	switch to {
	case StatusConnecting:
		rec.StartedAt = &at
	case StatusOngoing:
		joined := at
		if joined.Before(rec.CreatedAt) {
			joined = rec.CreatedAt
		}
		rec.ReceiverJoinedAt = &joined
	default:
		if to.IsTerminal() {
			ended := at
			if rec.ReceiverJoinedAt != nil && ended.Before(*rec.ReceiverJoinedAt) {
				ended = *rec.ReceiverJoinedAt
			}
			rec.EndedAt = &ended
		}
	}
	rec.Status = to
	rec.UpdatedAt = at
	return nil
}
