package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coincall/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrInsufficientCoins = errors.New("calls: caller cannot afford one minute")
	ErrReceiverBusy      = errors.New("calls: receiver is engaged in another call")
	ErrNotParticipant    = errors.New("calls: user is not a participant")
	// ErrWrongParty is returned when a participant attempts the other side's action.
	ErrWrongParty = errors.New("calls: action not allowed for this participant")
)

// maxCASAttempts bounds re-reads after a concurrent status change.
const maxCASAttempts = 3

// Service is the server-authoritative call lifecycle.
//
// Every status change goes through the transition table (Apply) and a compare-and-set
// write, so exactly one of several concurrent writers wins. Only the winner of a terminal
// transition releases the receiver and triggers settlement.
type Service struct {
	repo       Repository
	profiles   Profiles
	settler    Settler
	notifier   Notifier
	sessions   SessionIssuer
	engagement Engagement
	auditor    Auditor

	ringTimeout time.Duration

	// clock is injectable for deterministic tests.
	clock func() time.Time
	newID func() string
}

type Deps struct {
	Repo       Repository
	Profiles   Profiles
	Settler    Settler
	Notifier   Notifier
	Sessions   SessionIssuer
	Engagement Engagement
	Auditor    Auditor

	RingTimeout time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:        d.Repo,
		profiles:    d.Profiles,
		settler:     d.Settler,
		notifier:    d.Notifier,
		sessions:    d.Sessions,
		engagement:  d.Engagement,
		auditor:     d.Auditor,
		ringTimeout: d.RingTimeout,
		clock:       time.Now,
		newID:       uuid.NewString,
	}
	if s.engagement == nil {
		s.engagement = NewMemoryEngagement()
	}
	if s.ringTimeout <= 0 {
		s.ringTimeout = 45 * time.Second
	}
	if d.Clock != nil {
		s.clock = d.Clock
	}
	return s
}

// RingTimeout is how long a call may ring before it is forced to MISSED.
func (s *Service) RingTimeout() time.Duration { return s.ringTimeout }

type InitiateRequest struct {
	CallerID     string `json:"-"`
	CallerName   string `json:"caller_name,omitempty"`
	ReceiverID   string `json:"receiver_id"`
	Medium       Medium `json:"medium"`
	UpgradedFrom string `json:"upgraded_from,omitempty"`
}

// JoinTicket is what a participant needs to enter the media session.
type JoinTicket struct {
	Call         CallRecord `json:"call"`
	ChannelRef   string     `json:"channel_ref"`
	SessionToken string     `json:"session_token"`
}

// Initiate creates a PENDING call and rings the receiver's devices.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (CallRecord, error) {
	if req.CallerID == "" || req.ReceiverID == "" || req.CallerID == req.ReceiverID {
		return CallRecord{}, ErrInvalidArgument
	}
	if !req.Medium.Valid() {
		return CallRecord{}, ErrInvalidArgument
	}
	if req.UpgradedFrom != "" {
		prev, err := s.repo.Get(ctx, req.UpgradedFrom)
		if err != nil {
			return CallRecord{}, fmt.Errorf("upgraded_from: %w", err)
		}
		if !prev.IsParticipant(req.CallerID) || !prev.IsParticipant(req.ReceiverID) {
			return CallRecord{}, ErrInvalidArgument
		}
	}

	rate, err := s.profiles.GetCallRate(ctx, req.ReceiverID)
	if err != nil {
		return CallRecord{}, fmt.Errorf("receiver rate: %w", err)
	}
	if rate < 0 {
		return CallRecord{}, ErrInvalidArgument
	}
	balance, err := s.profiles.GetBalance(ctx, req.CallerID)
	if err != nil {
		return CallRecord{}, fmt.Errorf("caller balance: %w", err)
	}
	if balance < rate {
		return CallRecord{}, ErrInsufficientCoins
	}

	ok, err := s.engagement.Acquire(ctx, req.ReceiverID)
	if err != nil {
		return CallRecord{}, fmt.Errorf("receiver engagement: %w", err)
	}
	if !ok {
		return CallRecord{}, ErrReceiverBusy
	}

	now := s.clock().UTC()
	rec := CallRecord{
		ID:            s.newID(),
		CallerID:      req.CallerID,
		ReceiverID:    req.ReceiverID,
		Medium:        req.Medium,
		RatePerMinute: rate,
		Status:        StatusPending,
		CreatedAt:     now,
		UpgradedFrom:  req.UpgradedFrom,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		s.release(ctx, rec)
		return CallRecord{}, err
	}

	log := logger.ForCall(ctx, rec.ID)
	log.Info("call initiated",
		"caller_id", rec.CallerID,
		"receiver_id", rec.ReceiverID,
		"medium", string(rec.Medium),
		"rate_per_minute", rec.RatePerMinute,
	)

	sig := s.signalFor(rec, SignalIncoming)
	sig.CallerName = req.CallerName
	// A missing token is not fatal; the device fetches one lazily on answer.
	if s.sessions != nil {
		if tok, err := s.sessions.Issue(rec.ChannelRef(), rec.ReceiverID, now); err == nil {
			sig.SessionToken = tok
		} else {
			log.Warn("session token for push failed", "err", err)
		}
	}
	s.notify(ctx, rec.ReceiverID, sig)
	return rec, nil
}

// Join hands a participant the session token for the call's channel.
// The first join of a PENDING call moves it to CONNECTING.
func (s *Service) Join(ctx context.Context, callID, userID string) (JoinTicket, error) {
	if s.sessions == nil {
		return JoinTicket{}, errors.New("calls: session issuer not configured")
	}
	rec, err := s.transition(ctx, callID, userID, func(cur CallRecord) (step, error) {
		if !cur.IsParticipant(userID) {
			return step{}, ErrNotParticipant
		}
		if cur.Status == StatusPending {
			return step{to: StatusConnecting}, nil
		}
		return step{to: cur.Status}, nil
	})
	if err != nil {
		return JoinTicket{}, err
	}

	tok, err := s.sessions.Issue(rec.ChannelRef(), userID, s.clock().UTC())
	if err != nil {
		return JoinTicket{}, fmt.Errorf("session token: %w", err)
	}
	return JoinTicket{Call: rec, ChannelRef: rec.ChannelRef(), SessionToken: tok}, nil
}

// ReceiverJoined records that the receiver actually connected to the media session.
// This is the only way a call becomes ONGOING.
func (s *Service) ReceiverJoined(ctx context.Context, callID, userID string, at time.Time) (CallRecord, error) {
	return s.transition(ctx, callID, userID, func(cur CallRecord) (step, error) {
		if !cur.IsParticipant(userID) {
			return step{}, ErrNotParticipant
		}
		if userID != cur.ReceiverID {
			return step{}, ErrWrongParty
		}
		if cur.Status == StatusOngoing {
			return step{to: cur.Status}, nil
		}
		return step{to: StatusOngoing, at: at}, nil
	})
}

// Reject declines a ringing call on behalf of the receiver.
func (s *Service) Reject(ctx context.Context, callID, userID string) (CallRecord, error) {
	return s.transition(ctx, callID, userID, func(cur CallRecord) (step, error) {
		if !cur.IsParticipant(userID) {
			return step{}, ErrNotParticipant
		}
		if userID != cur.ReceiverID {
			return step{}, ErrWrongParty
		}
		return step{to: StatusRejected, reason: EndReasonDeclined}, nil
	})
}

// Cancel withdraws a ringing call on behalf of the caller.
func (s *Service) Cancel(ctx context.Context, callID, userID string) (CallRecord, error) {
	return s.transition(ctx, callID, userID, func(cur CallRecord) (step, error) {
		if !cur.IsParticipant(userID) {
			return step{}, ErrNotParticipant
		}
		if userID != cur.CallerID {
			return step{}, ErrWrongParty
		}
		return step{to: StatusCancelled, reason: EndReasonWithdrawn}, nil
	})
}

// Miss records that the receiver's device rang out without an answer.
func (s *Service) Miss(ctx context.Context, callID, userID string) (CallRecord, error) {
	return s.transition(ctx, callID, userID, func(cur CallRecord) (step, error) {
		if !cur.IsParticipant(userID) {
			return step{}, ErrNotParticipant
		}
		if userID != cur.ReceiverID {
			return step{}, ErrWrongParty
		}
		return step{to: StatusMissed, reason: EndReasonRingTimeout}, nil
	})
}

// End hangs up. On a call the receiver never joined this is a cancel (caller) or a
// reject (receiver), so nothing is billed.
func (s *Service) End(ctx context.Context, callID, userID string) (CallRecord, error) {
	return s.transition(ctx, callID, userID, func(cur CallRecord) (step, error) {
		if !cur.IsParticipant(userID) {
			return step{}, ErrNotParticipant
		}
		caller := userID == cur.CallerID
		switch {
		case cur.Status == StatusOngoing && caller:
			return step{to: StatusEnded, reason: EndReasonCallerHangup}, nil
		case cur.Status == StatusOngoing:
			return step{to: StatusEnded, reason: EndReasonReceiverHangup}, nil
		case caller:
			return step{to: StatusCancelled, reason: EndReasonWithdrawn}, nil
		default:
			return step{to: StatusRejected, reason: EndReasonDeclined}, nil
		}
	})
}

// PeerLeft handles a participant dropping out of the media session.
func (s *Service) PeerLeft(ctx context.Context, callID, userID string, at time.Time) (CallRecord, error) {
	return s.transition(ctx, callID, userID, func(cur CallRecord) (step, error) {
		if !cur.IsParticipant(userID) {
			return step{}, ErrNotParticipant
		}
		switch {
		case cur.Status == StatusOngoing:
			return step{to: StatusEnded, reason: EndReasonPeerLeft, at: at}, nil
		case userID == cur.CallerID:
			return step{to: StatusCancelled, reason: EndReasonWithdrawn, at: at}, nil
		default:
			// The receiver may still rejoin before the ring timeout.
			return step{to: cur.Status}, nil
		}
	})
}

// ExpireRinging forces every call that rang longer than the ring timeout to MISSED.
func (s *Service) ExpireRinging(ctx context.Context, limit int) (int, error) {
	cutoff := s.clock().UTC().Add(-s.ringTimeout)
	stale, err := s.repo.ListRingingBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, c := range stale {
		_, err := s.transition(ctx, c.ID, "", func(cur CallRecord) (step, error) {
			if !cur.Status.IsRinging() {
				return step{to: cur.Status}, nil
			}
			return step{to: StatusMissed, reason: EndReasonRingTimeout}, nil
		})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrAlreadyTerminal):
			// Someone else finished it first.
		default:
			logger.ForCall(ctx, c.ID).Error("ring timeout failed", "err", err)
		}
	}
	return expired, nil
}

// RingingFor returns the receiver's calls that are still ringing, newest first.
func (s *Service) RingingFor(ctx context.Context, receiverID string) ([]CallRecord, error) {
	if receiverID == "" {
		return nil, ErrInvalidArgument
	}
	since := s.clock().UTC().Add(-s.ringTimeout)
	return s.repo.ListRinging(ctx, receiverID, since)
}

// RetrySettlement settles terminal calls whose settlement did not complete.
func (s *Service) RetrySettlement(ctx context.Context, limit int) (int, error) {
	pending, err := s.repo.ListUnsettled(ctx, limit)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, c := range pending {
		if _, err := s.settle(ctx, c); err == nil {
			settled++
		}
	}
	return settled, nil
}

// Get returns a call visible to userID.
func (s *Service) Get(ctx context.Context, callID, userID string) (CallRecord, error) {
	rec, err := s.repo.Get(ctx, callID)
	if err != nil {
		return CallRecord{}, err
	}
	if !rec.IsParticipant(userID) {
		return CallRecord{}, ErrNotParticipant
	}
	return rec, nil
}

// Lookup returns any call without a participant check. Admin use only.
func (s *Service) Lookup(ctx context.Context, callID string) (CallRecord, error) {
	return s.repo.Get(ctx, callID)
}

type step struct {
	to     Status
	reason EndReason
	at     time.Time
}

// transition reads the call, lets decide pick the target and writes it with compare-and-set.
// decide returning the current status is a no-op. A concurrent writer causes a re-read.
func (s *Service) transition(ctx context.Context, callID, actorID string, decide func(CallRecord) (step, error)) (CallRecord, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		cur, err := s.repo.Get(ctx, callID)
		if err != nil {
			return CallRecord{}, err
		}
		st, err := decide(cur)
		if err != nil {
			return cur, err
		}
		if cur.Status.IsTerminal() {
			s.rejected(ctx, cur, st.to, actorID, ErrAlreadyTerminal)
			return cur, ErrAlreadyTerminal
		}
		if st.to == cur.Status {
			return cur, nil
		}

		at := st.at
		if at.IsZero() {
			at = s.clock()
		}
		next := cur
		if cur.Status == StatusPending && st.to == StatusOngoing {
			if err := Apply(&next, StatusConnecting, at); err != nil {
				return cur, err
			}
		}
		if err := Apply(&next, st.to, at); err != nil {
			s.rejected(ctx, cur, st.to, actorID, err)
			return cur, err
		}
		if st.to.IsTerminal() {
			next.EndReason = st.reason
		}

		err = s.repo.CompareAndSwap(ctx, cur.Status, next)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return cur, err
		}

		logger.ForCall(ctx, next.ID).Info("call transition",
			"from", string(cur.Status),
			"to", string(next.Status),
			"actor_id", actorID,
		)
		if next.Status.IsTerminal() {
			next = s.finish(ctx, next)
		}
		return next, nil
	}
	return CallRecord{}, ErrConflict
}

// finish runs once per call, for the winner of the terminal transition.
func (s *Service) finish(ctx context.Context, rec CallRecord) CallRecord {
	s.release(ctx, rec)

	switch rec.Status {
	case StatusCancelled, StatusMissed:
		s.notify(ctx, rec.ReceiverID, s.signalFor(rec, SignalCancelled))
	case StatusRejected:
		s.notify(ctx, rec.CallerID, s.signalFor(rec, SignalRejected))
	}

	if st, err := s.settle(ctx, rec); err == nil {
		rec.CoinsSpentByCaller = st.CoinsSpent
		rec.CoinsEarnedByReceiver = st.CoinsEarned
	}
	return rec
}

func (s *Service) settle(ctx context.Context, rec CallRecord) (Settlement, error) {
	if s.settler == nil {
		return Settlement{}, errors.New("calls: settler not configured")
	}
	log := logger.ForCall(ctx, rec.ID)
	st, err := s.settler.Settle(ctx, rec)
	if err != nil {
		log.Error("settlement failed; will retry", "err", err)
		return Settlement{}, err
	}
	if err := s.repo.MarkSettled(ctx, rec.ID, st, s.clock()); err != nil {
		log.Error("mark settled failed", "err", err)
		return st, err
	}
	return st, nil
}

func (s *Service) release(ctx context.Context, rec CallRecord) {
	if err := s.engagement.Release(ctx, rec.ReceiverID); err != nil {
		logger.ForCall(ctx, rec.ID).Warn("release receiver failed", "err", err)
	}
}

func (s *Service) rejected(ctx context.Context, cur CallRecord, to Status, actorID string, cause error) {
	logger.ForCall(ctx, cur.ID).Warn("transition rejected",
		"status", string(cur.Status),
		"requested", string(to),
		"actor_id", actorID,
		"err", cause,
	)
	if s.auditor == nil {
		return
	}
	if err := s.auditor.LogRejectedTransition(ctx, cur.ID, actorID, cur.Status, to, cause.Error()); err != nil {
		logger.ForCall(ctx, cur.ID).Warn("audit failed", "err", err)
	}
}

func (s *Service) signalFor(rec CallRecord, typ SignalType) Signal {
	return Signal{
		Type:       typ,
		CallID:     rec.ID,
		CallerID:   rec.CallerID,
		Medium:     rec.Medium,
		ChannelRef: rec.ChannelRef(),
		Timestamp:  s.clock().UTC(),
	}
}

func (s *Service) notify(ctx context.Context, userID string, sig Signal) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, sig); err != nil {
		logger.ForCall(ctx, sig.CallID).Warn("signal delivery failed",
			"signal", string(sig.Type),
			"user_id", userID,
			"err", err,
		)
	}
}
