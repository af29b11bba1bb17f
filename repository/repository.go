// Package repository persists users, events and organizations.
package repository

import (
	"context"
	"errors"
	"math"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/campus-events-go/models"
)

var (
	// ErrNotFound is returned when no document matches the id.
	ErrNotFound = errors.New("not found")
	// ErrStaleState is returned by PersistTransition when the stored state
	// no longer matches the snapshot the decision was made on.
	ErrStaleState = errors.New("event state changed since it was fetched")
	// ErrDuplicate is returned when a unique field (user email) already exists.
	ErrDuplicate = errors.New("duplicate")
)

// EventFilter narrows List. Zero values are ignored.
type EventFilter struct {
	State     models.EventState
	CreatorID primitive.ObjectID
	Query     string
}

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

const (
	defaultLimit = 10
	maxLimit     = 100
	// maxPage keeps (Page-1)*Limit from overflowing.
	maxPage = math.MaxInt / maxLimit
)

// Normalize clamps page and limit into their accepted ranges.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Page > maxPage {
		p.Page = maxPage
	}
	return p
}

func (p Page) skip() int {
	return (p.Page - 1) * p.Limit
}

// EventRepository is the event store the lifecycle service and the
// controllers talk to.
type EventRepository interface {
	Create(ctx context.Context, event models.Event) (models.Event, error)
	FetchEvent(ctx context.Context, id primitive.ObjectID) (models.Event, error)
	List(ctx context.Context, filter EventFilter, page Page) ([]models.Event, int64, error)
	// Update replaces the descriptive fields of an event whose state is
	// still one of states.
	Update(ctx context.Context, event models.Event, states ...models.EventState) (models.Event, error)
	// PersistTransition stores next only if the stored event is still in
	// from. It returns ErrStaleState otherwise.
	PersistTransition(ctx context.Context, id primitive.ObjectID, from models.EventState, next models.Event) (models.Event, error)
	// Delete removes the event only while its state is one of states.
	Delete(ctx context.Context, id primitive.ObjectID, states ...models.EventState) error
	CountByOrganization(ctx context.Context, orgID primitive.ObjectID, states ...models.EventState) (int64, error)
}

// OrganizationFilter drives Search. Matching is case-insensitive substring.
type OrganizationFilter struct {
	Name string
	NIT  string
	Type models.OrganizationType
}

type OrganizationRepository interface {
	Create(ctx context.Context, org models.Organization) (models.Organization, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Organization, error)
	List(ctx context.Context, page Page) ([]models.Organization, int64, error)
	Search(ctx context.Context, filter OrganizationFilter, page Page) ([]models.Organization, int64, error)
	Update(ctx context.Context, org models.Organization) (models.Organization, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type UserRepository interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByResetToken(ctx context.Context, token string) (models.User, error)
	Update(ctx context.Context, user models.User) (models.User, error)
}

func stateIn(s models.EventState, states []models.EventState) bool {
	if len(states) == 0 {
		return true
	}
	for _, v := range states {
		if v == s {
			return true
		}
	}
	return false
}
