// Package dispatch sends one message to many clients and tracks the
// delivery state of every recipient.
package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/clientdesk/internal/models"
)

// ErrInvalidTransition is returned for a state change the run does not allow
var ErrInvalidTransition = errors.New("invalid status transition")

// State is the delivery state of one recipient
type State string

const (
	StatePending State = "pending"
	StateSending State = "sending"
	StateSent    State = "sent"
	StateFailed  State = "failed"
)

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateSent || s == StateFailed
}

var transitions = map[State][]State{
	StatePending: {StateSending},
	StateSending: {StateSent, StateFailed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EmailStatus tracks one recipient within a run
type EmailStatus struct {
	RecipientID string    `json:"recipient_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	State       State     `json:"state"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Run is one bulk send across a list of recipients
type Run struct {
	ID         string        `json:"id"`
	OwnerID    string        `json:"owner_id"`
	Subject    string        `json:"subject,omitempty"`
	Statuses   []EmailStatus `json:"statuses"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Cancelled  bool          `json:"cancelled,omitempty"`
}

// NewRun creates a run with every recipient pending
func NewRun(ownerID string, recipients []models.Client) *Run {
	now := time.Now().UTC()
	run := &Run{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Statuses:  make([]EmailStatus, len(recipients)),
		StartedAt: now,
	}
	for i, c := range recipients {
		run.Statuses[i] = EmailStatus{
			RecipientID: c.ID,
			Email:       c.Email,
			Name:        c.Name,
			State:       StatePending,
			UpdatedAt:   now,
		}
	}
	return run
}

// Finished reports whether the run has completed or was cancelled
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Clone returns a copy that shares no state with r
func (r Run) Clone() Run {
	r.Statuses = append([]EmailStatus(nil), r.Statuses...)
	return r
}

// Advance moves recipient index to state to and returns the new run.
// The input run is not modified. For StateFailed, outcome supplies the
// error message.
func Advance(run Run, index int, to State, outcome error) (Run, error) {
	if index < 0 || index >= len(run.Statuses) {
		return run, fmt.Errorf("%w: recipient index %d out of range", ErrInvalidTransition, index)
	}

	from := run.Statuses[index].State
	if !canTransition(from, to) {
		return run, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	next := run.Clone()
	status := &next.Statuses[index]
	status.State = to
	if to == StateFailed {
		status.Error = "unknown error"
		if outcome != nil {
			status.Error = outcome.Error()
		}
	}
	return next, nil
}

// Outcomes of a run
const (
	OutcomeAllSent        = "all_sent"
	OutcomePartialFailure = "partial_failure"
	OutcomeAllFailed      = "all_failed"
	OutcomeCancelled      = "cancelled"
	OutcomeEmpty          = "empty"
)

// Summary counts recipients by state
type Summary struct {
	Total   int    `json:"total"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Pending int    `json:"pending"`
	Outcome string `json:"outcome"`
}

// Summarize counts the statuses of run
func Summarize(run Run) Summary {
	s := Summary{Total: len(run.Statuses)}
	for _, st := range run.Statuses {
		switch st.State {
		case StateSent:
			s.Sent++
		case StateFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}

	switch {
	case s.Total == 0:
		s.Outcome = OutcomeEmpty
	case run.Cancelled:
		s.Outcome = OutcomeCancelled
	case s.Sent == s.Total:
		s.Outcome = OutcomeAllSent
	case s.Failed == s.Total:
		s.Outcome = OutcomeAllFailed
	default:
		s.Outcome = OutcomePartialFailure
	}
	return s
}

func (s Summary) String() string {
	out := fmt.Sprintf("%d sent, %d failed", s.Sent, s.Failed)
	if s.Pending > 0 {
		out += fmt.Sprintf(", %d pending", s.Pending)
	}
	return out
}
