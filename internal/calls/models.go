package calls

import (
	"context"
	"time"
)

// CallRecord represents one call attempt end to end.
//
// Invariants:
// - ReceiverJoinedAt, when set, is never before CreatedAt.
// - Billable time runs from ReceiverJoinedAt to EndedAt; ringing is never billed.
// - Rows are never deleted; a call only ever reaches a terminal status.
//
// Money is not moved here: CoinsSpentByCaller/CoinsEarnedByReceiver mirror the ledger
// entries written by the billing ledger once SettledAt is set.
type CallRecord struct {
	ID         string `json:"id" db:"id"`
	CallerID   string `json:"caller_id" db:"caller_id"`
	ReceiverID string `json:"receiver_id" db:"receiver_id"`
	Medium     Medium `json:"medium" db:"medium"`

	// RatePerMinute is frozen at creation so a rate change never reprices a live call.
	RatePerMinute int64 `json:"rate_per_minute" db:"rate_per_minute"`

	Status Status `json:"status" db:"status"`

	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty" db:"started_at"`
	ReceiverJoinedAt *time.Time `json:"receiver_joined_at,omitempty" db:"receiver_joined_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	CoinsSpentByCaller    int64 `json:"coins_spent_by_caller" db:"coins_spent_by_caller"`
	CoinsEarnedByReceiver int64 `json:"coins_earned_by_receiver" db:"coins_earned_by_receiver"`

	UpgradedFrom string    `json:"upgraded_from,omitempty" db:"upgraded_from"`
	EndReason    EndReason `json:"end_reason,omitempty" db:"end_reason"`

	SettledAt *time.Time `json:"settled_at,omitempty" db:"settled_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ChannelRef is the media session name for this call.
func (c CallRecord) ChannelRef() string { return c.ID }

// IsParticipant reports whether userID is the caller or the receiver.
func (c CallRecord) IsParticipant(userID string) bool {
	return userID != "" && (userID == c.CallerID || userID == c.ReceiverID)
}

// BillableSeconds is the whole seconds between receiver join and call end, clamped to >= 0.
// A call the receiver never joined is never billed.
func (c CallRecord) BillableSeconds() int64 {
	if c.ReceiverJoinedAt == nil || c.EndedAt == nil {
		return 0
	}
	d := c.EndedAt.Sub(*c.ReceiverJoinedAt)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

type Medium string

const (
	MediumAudio Medium = "AUDIO"
	MediumVideo Medium = "VIDEO"
)

func (m Medium) Valid() bool { return m == MediumAudio || m == MediumVideo }

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConnecting Status = "CONNECTING"
	StatusOngoing    Status = "ONGOING"
	StatusEnded      Status = "ENDED"
	StatusMissed     Status = "MISSED"
	StatusRejected   Status = "REJECTED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusEnded, StatusMissed, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsRinging reports whether the receiver may still pick the call up.
func (s Status) IsRinging() bool { return s == StatusPending || s == StatusConnecting }

type EndReason string

const (
	EndReasonCallerHangup   EndReason = "caller_hangup"
	EndReasonReceiverHangup EndReason = "receiver_hangup"
	EndReasonPeerLeft       EndReason = "peer_left"
	EndReasonRingTimeout    EndReason = "ring_timeout"
	EndReasonDeclined       EndReason = "declined"
	EndReasonWithdrawn      EndReason = "withdrawn"
)

// SignalType is the kind of device-facing signal emitted on a lifecycle change.
type SignalType string

const (
	SignalIncoming  SignalType = "INCOMING"
	SignalCancelled SignalType = "CANCELLED"
	SignalRejected  SignalType = "REJECTED"
)

// Signal is what the push transport carries to a device.
type Signal struct {
	Type         SignalType
	CallID       string
	CallerID     string
	CallerName   string
	Medium       Medium
	ChannelRef   string
	SessionToken string
	Timestamp    time.Time
}

// Notifier delivers signals to a user's devices. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, userID string, sig Signal) error
}

// Settlement is the billing outcome for one call.
type Settlement struct {
	BillableSeconds int64
	CoinsSpent      int64
	CoinsEarned     int64
}

// Settler converts a terminal call into ledger entries. It must be idempotent per call.
type Settler interface {
	Settle(ctx context.Context, rec CallRecord) (Settlement, error)
}

// SessionIssuer issues media session join tokens.
type SessionIssuer interface {
	Issue(channelRef, userID string, now time.Time) (string, error)
}

// Engagement caps receivers at one live call at a time.
type Engagement interface {
	Acquire(ctx context.Context, receiverID string) (bool, error)
	Release(ctx context.Context, receiverID string) error
}

// Profiles is the subset of the account store the lifecycle needs.
type Profiles interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	GetCallRate(ctx context.Context, userID string) (int64, error)
}

// Auditor records rejected lifecycle transitions. Best effort.
type Auditor interface {
	LogRejectedTransition(ctx context.Context, callID, actorUserID string, from, to Status, reason string) error
}
