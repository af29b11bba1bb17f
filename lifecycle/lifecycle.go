// Package lifecycle decides which event workflow transitions are legal.
//
// Every function here is a pure function of an event snapshot, the acting
// user and the requested transition. Events are taken by value and the
// mutated copy is returned only on success, so a refused transition never
// leaves a partially updated event behind.
package lifecycle

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/campus-events-go/models"
)

// Transition names a state change with preconditions and a required payload.
type Transition string

const (
	TransitionSubmit  Transition = "submit"
	TransitionApprove Transition = "approve"
	TransitionReject  Transition = "reject"
)

func (t Transition) String() string {
	return string(t)
}

// Actor is the user attempting a transition.
type Actor struct {
	ID   primitive.ObjectID
	Role models.Role
}

// Payload carries the side data a transition may need. Justification is
// the optional approval comment or the mandatory rejection reason.
type Payload struct {
	ApprovalDocument string
	Justification    string
}

// Capabilities summarises which actions an actor may take on an event.
type Capabilities struct {
	CanSubmit  bool `json:"can_submit"`
	CanApprove bool `json:"can_approve"`
	CanReject  bool `json:"can_reject"`
	CanEdit    bool `json:"can_edit"`
	CanDelete  bool `json:"can_delete"`
}

type edge struct {
	from []models.EventState
	to   models.EventState
}

// Transitions is the workflow graph. APPROVED has no outgoing edge and no
// edge skips SUBMITTED.
var Transitions = map[Transition]edge{
	TransitionSubmit:  {from: []models.EventState{models.StateDraft, models.StateRejected}, to: models.StateSubmitted},
	TransitionApprove: {from: []models.EventState{models.StateSubmitted}, to: models.StateApproved},
	TransitionReject:  {from: []models.EventState{models.StateSubmitted}, to: models.StateRejected},
}

// Target returns the state t leads to.
func Target(t Transition) (models.EventState, bool) {
	e, ok := Transitions[t]
	return e.to, ok
}

// Allowed reports whether the graph has an edge t leaving from.
func Allowed(t Transition, from models.EventState) bool {
	e, ok := Transitions[t]
	if !ok {
		return false
	}
	for _, s := range e.from {
		if s == from {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s models.EventState) bool {
	for t := range Transitions {
		if Allowed(t, s) {
			return false
		}
	}
	return true
}

var now = func() time.Time { return time.Now().UTC() }

// isCreator also requires a known role, so an actor whose session
// carries a bogus role can do nothing even on its own events.
func isCreator(event models.Event, actor Actor) bool {
	return actor.Role.IsValid() && !actor.ID.IsZero() && actor.ID == event.CreatorID
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Complete reports whether the descriptive fields are ready for review:
// non-blank title and description, a known type, at least one location
// and a start date strictly before the end date.
func Complete(event models.Event) bool {
	if blank(event.Title) || blank(event.Description) || !event.Type.IsValid() {
		return false
	}
	if len(event.Locations) == 0 {
		return false
	}
	if event.StartDate.IsZero() || event.EndDate.IsZero() {
		return false
	}
	return event.StartDate.Before(event.EndDate)
}

func CanSubmit(event models.Event, actor Actor) bool {
	return isCreator(event, actor) && Allowed(TransitionSubmit, event.State) && Complete(event)
}

// Submit moves a DRAFT or REJECTED event to SUBMITTED and clears any
// previous rejection reason.
func Submit(event models.Event, actor Actor) (models.Event, error) {
	if !CanSubmit(event, actor) {
		return event, refuse(ErrInvalidTransition, TransitionSubmit, event.State, submitDetail(event, actor))
	}
	next := event.Clone()
	at := now()
	next.State = models.StateSubmitted
	next.RejectionReason = ""
	next.SubmittedAt = &at
	next.ReviewedBy = nil
	next.ReviewedAt = nil
	next.UpdatedAt = at
	return next, nil
}

func submitDetail(event models.Event, actor Actor) string {
	switch {
	case !actor.Role.IsValid():
		return "unknown role"
	case !isCreator(event, actor):
		return "only the creator may submit"
	case !Allowed(TransitionSubmit, event.State):
		return "event is not editable"
	case len(event.Locations) == 0:
		return "at least one location is required"
	case !event.StartDate.Before(event.EndDate):
		return "start date must be before end date"
	default:
		return "required fields are missing"
	}
}

func CanApprove(event models.Event, actor Actor) bool {
	return actor.Role == models.RoleSecretary && Allowed(TransitionApprove, event.State)
}

// Approve moves a SUBMITTED event to APPROVED. The approval document is
// mandatory, the justification optional.
func Approve(event models.Event, actor Actor, document, justification string) (models.Event, error) {
	if !CanApprove(event, actor) {
		return event, refuse(ErrInvalidTransition, TransitionApprove, event.State, reviewerDetail(actor))
	}
	if blank(document) {
		return event, refuse(ErrMissingRequiredDocument, TransitionApprove, event.State, "")
	}
	next := event.Clone()
	at := now()
	reviewer := actor.ID
	next.State = models.StateApproved
	next.ApprovalDocument = strings.TrimSpace(document)
	next.ApprovalJustification = strings.TrimSpace(justification)
	next.RejectionReason = ""
	next.ReviewedBy = &reviewer
	next.ReviewedAt = &at
	next.UpdatedAt = at
	return next, nil
}

func CanReject(event models.Event, actor Actor) bool {
	return actor.Role == models.RoleSecretary && Allowed(TransitionReject, event.State)
}

// Reject moves a SUBMITTED event to REJECTED and records the reason.
func Reject(event models.Event, actor Actor, reason string) (models.Event, error) {
	if !CanReject(event, actor) {
		return event, refuse(ErrInvalidTransition, TransitionReject, event.State, reviewerDetail(actor))
	}
	if blank(reason) {
		return event, refuse(ErrMissingJustification, TransitionReject, event.State, "")
	}
	next := event.Clone()
	at := now()
	reviewer := actor.ID
	next.State = models.StateRejected
	next.RejectionReason = strings.TrimSpace(reason)
	next.ApprovalDocument = ""
	next.ApprovalJustification = ""
	next.ReviewedBy = &reviewer
	next.ReviewedAt = &at
	next.UpdatedAt = at
	return next, nil
}

func reviewerDetail(actor Actor) string {
	if actor.Role != models.RoleSecretary {
		return "only a secretary may review events"
	}
	return "event is not awaiting review"
}

func CanEdit(event models.Event, actor Actor) bool {
	return isCreator(event, actor) &&
		(event.State == models.StateDraft || event.State == models.StateRejected)
}

func CanDelete(event models.Event, actor Actor) bool {
	return CanEdit(event, actor)
}

// Evaluate returns the capability summary used to decide which actions to
// offer. It is a projection of the Can* predicates, so a capability is set
// exactly when the matching transition would be accepted.
func Evaluate(event models.Event, actor Actor) Capabilities {
	switch actor.Role {
	case models.RoleStudent, models.RoleTeacher, models.RoleSecretary, models.RoleAdmin:
		return Capabilities{
			CanSubmit:  CanSubmit(event, actor),
			CanApprove: CanApprove(event, actor),
			CanReject:  CanReject(event, actor),
			CanEdit:    CanEdit(event, actor),
			CanDelete:  CanDelete(event, actor),
		}
	default:
		// every predicate already refuses an unknown role
		return Capabilities{}
	}
}

// AttemptTransition dispatches a named transition.
func AttemptTransition(event models.Event, actor Actor, t Transition, payload Payload) (models.Event, error) {
	switch t {
	case TransitionSubmit:
		return Submit(event, actor)
	case TransitionApprove:
		return Approve(event, actor, payload.ApprovalDocument, payload.Justification)
	case TransitionReject:
		return Reject(event, actor, payload.Justification)
	default:
		return event, refuse(ErrInvalidTransition, t, event.State, "unknown transition")
	}
}
