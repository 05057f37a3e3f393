package payments

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	uuid "github.com/satori/go.uuid"
)

// Transitions is the lifecycle edge table. The edges listed here are the
// only transitions that can ever be persisted; any other attempt fails.
var Transitions = map[Status][]Status{
	StatusInit:                 {StatusNew},
	StatusNew:                  {StatusFormShowed, StatusCancelled, StatusDeadlineExpired},
	StatusFormShowed:           {StatusOneChooseVision, StatusCancelled, StatusDeadlineExpired},
	StatusOneChooseVision:      {StatusFinishAuthorize, StatusDeadlineExpired},
	StatusFinishAuthorize:      {StatusAuthorizing, StatusDeadlineExpired},
	StatusAuthorizing:          {StatusThreeDSChecking, StatusAuthorized, StatusAuthFail, StatusRejected},
	StatusThreeDSChecking:      {StatusSubmitPassivization, StatusSubmitPassivization2, StatusThreeDSChecked, StatusDeadlineExpired},
	StatusSubmitPassivization:  {StatusThreeDSChecked, StatusDeadlineExpired},
	StatusSubmitPassivization2: {StatusThreeDSChecked, StatusDeadlineExpired},
	StatusThreeDSChecked:       {StatusAuthorized, StatusAuthFail, StatusAuthorizing},
	StatusAuthorized:           {StatusConfirming, StatusReversing},
	StatusAuthFail:             {StatusAuthorizing, StatusRejected},
	StatusConfirming:           {StatusConfirmed, StatusAuthFail},
	StatusConfirmed:            {StatusRefunding},
	StatusReversing:            {StatusReversed, StatusPartialReversed},
	StatusRefunding:            {StatusRefunded, StatusPartialRefunded},
	StatusCancelled:            {},
	StatusDeadlineExpired:      {},
	StatusRejected:             {},
	StatusReversed:             {},
	StatusPartialReversed:      {},
	StatusRefunded:             {},
	StatusPartialRefunded:      {},
}

// ValidNext returns the allowed next states for the status.
func (s Status) ValidNext() []Status {
	return Transitions[s]
}

// IsTerminal reports whether the status has no outgoing edges.
func (s Status) IsTerminal() bool {
	next, ok := Transitions[s]
	return ok && len(next) == 0
}

// CanTransition reports whether the edge between the two statuses is in the
// lifecycle table.
func CanTransition(from, to Status) bool {
	for _, s := range Transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Change describes one requested transition together with the side data
// persisted with it.
type Change struct {
	To              Status
	Actor           Actor
	ErrorCode       *string
	Message         *string
	BankRef         *string
	CardFingerprint *string
	RefundedAmount  *int64
	IsRollback      bool
	RollbackFrom    *uuid.UUID
}

// transitionAttempts bounds optimistic retries before the conflict surfaces.
const transitionAttempts = 3

// StateMachine drives persisted payments along the lifecycle table. Every
// applied change is one conditional payment write plus one history row in
// a single atomic unit; concurrent writers lose on the version check.
type StateMachine struct {
	datastore Datastore
	clock     Clock
}

// NewStateMachine builds a state machine over the given store and clock.
func NewStateMachine(datastore Datastore, clock Clock) *StateMachine {
	return &StateMachine{datastore: datastore, clock: clock}
}

// Transition applies the change to the payment and returns the updated
// payment with the history row it appended. A lost optimistic race is
// retried by re-reading; if the edge no longer holds after a re-read, or the
// race is still lost after the attempt budget, the conflict is reported.
func (sm *StateMachine) Transition(ctx context.Context, paymentID string, change Change) (*Payment, *StatusChange, error) {
	payment, err := sm.datastore.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if payment == nil {
		return nil, nil, ErrNotFound
	}

	for attempt := 0; ; attempt++ {
		if !CanTransition(payment.Status, change.To) {
			if attempt == 0 {
				return nil, nil, NewError(ErrCodeInvalidTransition,
					fmt.Sprintf("no transition from %s to %s", payment.Status, change.To))
			}
			// The edge held when we first read the payment, so a
			// competing writer got here first.
			return nil, nil, NewError(ErrCodeConcurrentModification, "payment was modified concurrently")
		}

		updated, entry, err := sm.applyOnce(ctx, payment, change)
		if err == nil {
			return updated, entry, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, nil, err
		}
		if attempt+1 >= transitionAttempts {
			return nil, nil, WrapError(err, ErrCodeConcurrentModification, "payment was modified concurrently")
		}

		transitionJitter()
		payment, err = sm.datastore.GetPayment(ctx, paymentID)
		if err != nil {
			return nil, nil, err
		}
		if payment == nil {
			return nil, nil, ErrNotFound
		}
	}
}

// applyOnce computes the side effects of the change and attempts a single
// conditional commit against the version the payment was read at.
func (sm *StateMachine) applyOnce(ctx context.Context, payment *Payment, change Change) (*Payment, *StatusChange, error) {
	now := sm.clock.Now()
	updated := *payment
	expected := updated.Version

	updated.Status = change.To
	updated.UpdatedAt = now
	updated.Version = expected + 1
	if change.To == StatusAuthorizing {
		updated.AttemptCount++
	}
	if change.To == StatusNew || change.To == StatusFormShowed {
		// Extends the cardholder interaction window, never shortens
		// the deadline the intent asked for.
		if extended := now.Add(FormInteractionExtension); extended.After(updated.ExpiresAt) {
			updated.ExpiresAt = extended
		}
	}
	if change.BankRef != nil {
		updated.BankRef = change.BankRef
	}
	if change.CardFingerprint != nil {
		updated.CardFingerprint = change.CardFingerprint
	}
	if change.RefundedAmount != nil {
		updated.RefundedAmount = *change.RefundedAmount
	}
	if change.ErrorCode != nil || change.Message != nil {
		updated.LastErrorCode = change.ErrorCode
		updated.LastErrorMessage = change.Message
	}

	entry := &StatusChange{
		ID:           uuid.NewV4(),
		PaymentID:    payment.PaymentID,
		FromStatus:   payment.Status,
		ToStatus:     change.To,
		At:           now,
		Actor:        change.Actor,
		ErrorCode:    change.ErrorCode,
		Message:      change.Message,
		IsRollback:   change.IsRollback,
		RollbackFrom: change.RollbackFrom,
	}

	if err := sm.datastore.CommitTransition(ctx, &updated, expected, entry); err != nil {
		return nil, nil, err
	}
	return &updated, entry, nil
}

// transitionJitter spaces optimistic retries a few milliseconds apart so
// competing writers do not stampede the same row.
func transitionJitter() {
	time.Sleep(time.Duration(1+rand.Intn(5)) * time.Millisecond)
}
