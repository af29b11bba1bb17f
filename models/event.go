package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventState is the single source of truth for where an event sits in
// the approval workflow.
type EventState string

const (
	StateDraft     EventState = "DRAFT"
	StateSubmitted EventState = "SUBMITTED"
	StateApproved  EventState = "APPROVED"
	StateRejected  EventState = "REJECTED"
)

// IsValid reports whether s is one of the known states.
func (s EventState) IsValid() bool {
	switch s {
	case StateDraft, StateSubmitted, StateApproved, StateRejected:
		return true
	default:
		return false
	}
}

func (s EventState) String() string {
	return string(s)
}

// ParseEventState accepts the stored names and the Spanish labels used by
// the web client (borrador, enviado, aprobado, rechazado).
func ParseEventState(s string) (EventState, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DRAFT", "BORRADOR":
		return StateDraft, true
	case "SUBMITTED", "ENVIADO", "PENDIENTE":
		return StateSubmitted, true
	case "APPROVED", "APROBADO":
		return StateApproved, true
	case "REJECTED", "RECHAZADO":
		return StateRejected, true
	default:
		return "", false
	}
}

type EventType string

const (
	EventTypeAcademic     EventType = "ACADEMIC"
	EventTypeRecreational EventType = "RECREATIONAL"
)

func (t EventType) IsValid() bool {
	return t == EventTypeAcademic || t == EventTypeRecreational
}

func ParseEventType(s string) (EventType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACADEMIC", "ACADEMICO", "ACADÉMICO":
		return EventTypeAcademic, true
	case "RECREATIONAL", "LUDICO", "LÚDICO":
		return EventTypeRecreational, true
	default:
		return "", false
	}
}

// Location is a place reference where the event happens.
type Location struct {
	Name     string `bson:"name" json:"name"`
	Capacity int    `bson:"capacity,omitempty" json:"capacity,omitempty"`
}

type Event struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	CreatorID     primitive.ObjectID   `bson:"creator_id" json:"creator_id"` // Organizer
	State         EventState           `bson:"state" json:"state"`
	Title         string               `bson:"title" json:"title"`
	Description   string               `bson:"description" json:"description"`
	Type          EventType            `bson:"type" json:"type"`
	StartDate     time.Time            `bson:"start_date" json:"start_date"`
	EndDate       time.Time            `bson:"end_date" json:"end_date"`
	Locations     []Location           `bson:"locations" json:"locations"`
	Organizations []primitive.ObjectID `bson:"organizations,omitempty" json:"organizations"`
	Participants  []primitive.ObjectID `bson:"participants,omitempty" json:"participants"`

	CommitteeMinutesURL string `bson:"committee_minutes_url,omitempty" json:"committee_minutes_url,omitempty"`

	// Projections of State: only set while the event is REJECTED / APPROVED.
	RejectionReason       string `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	ApprovalDocument      string `bson:"approval_document,omitempty" json:"approval_document,omitempty"`
	ApprovalJustification string `bson:"approval_justification,omitempty" json:"approval_justification,omitempty"`

	ReviewedBy  *primitive.ObjectID `bson:"reviewed_by,omitempty" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time          `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`
	SubmittedAt *time.Time          `bson:"submitted_at,omitempty" json:"submitted_at,omitempty"`
	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `bson:"updated_at" json:"updated_at"`
}

// Clone returns a copy whose slices and pointers do not alias e.
func (e Event) Clone() Event {
	out := e
	out.Locations = append([]Location(nil), e.Locations...)
	out.Organizations = append([]primitive.ObjectID(nil), e.Organizations...)
	out.Participants = append([]primitive.ObjectID(nil), e.Participants...)
	if e.ReviewedBy != nil {
		id := *e.ReviewedBy
		out.ReviewedBy = &id
	}
	if e.ReviewedAt != nil {
		t := *e.ReviewedAt
		out.ReviewedAt = &t
	}
	if e.SubmittedAt != nil {
		t := *e.SubmittedAt
		out.SubmittedAt = &t
	}
	return out
}
