package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/campus-events-go/models"
)

// MemoryEvents is an in-process EventRepository used by tests and by
// STORE=memory for local runs.
type MemoryEvents struct {
	mu     sync.RWMutex
	events map[primitive.ObjectID]models.Event
}

func NewMemoryEvents() *MemoryEvents {
	return &MemoryEvents{events: map[primitive.ObjectID]models.Event{}}
}

func (r *MemoryEvents) Create(_ context.Context, event models.Event) (models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if _, exists := r.events[event.ID]; exists {
		return models.Event{}, ErrDuplicate
	}
	r.events[event.ID] = event.Clone()
	return event, nil
}

func (r *MemoryEvents) FetchEvent(_ context.Context, id primitive.ObjectID) (models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[id]
	if !ok {
		return models.Event{}, ErrNotFound
	}
	return ev.Clone(), nil
}

func (r *MemoryEvents) List(_ context.Context, filter EventFilter, page Page) ([]models.Event, int64, error) {
	page = page.Normalize()
	r.mu.RLock()
	var matched []models.Event
	for _, ev := range r.events {
		if filter.State != "" && ev.State != filter.State {
			continue
		}
		if !filter.CreatorID.IsZero() && ev.CreatorID != filter.CreatorID {
			continue
		}
		if filter.Query != "" && !containsFold(ev.Title, filter.Query) {
			continue
		}
		matched = append(matched, ev.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, page), int64(len(matched)), nil
}

func (r *MemoryEvents) Update(_ context.Context, event models.Event, states ...models.EventState) (models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.events[event.ID]
	if !ok {
		return models.Event{}, ErrNotFound
	}
	if !stateIn(stored.State, states) {
		return models.Event{}, ErrStaleState
	}
	stored.Title = event.Title
	stored.Description = event.Description
	stored.Type = event.Type
	stored.StartDate = event.StartDate
	stored.EndDate = event.EndDate
	stored.Locations = event.Locations
	stored.Organizations = event.Organizations
	stored.Participants = event.Participants
	stored.CommitteeMinutesURL = event.CommitteeMinutesURL
	stored.UpdatedAt = time.Now().UTC()
	r.events[event.ID] = stored.Clone()
	return stored, nil
}

func (r *MemoryEvents) PersistTransition(_ context.Context, id primitive.ObjectID, from models.EventState, next models.Event) (models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.events[id]
	if !ok {
		return models.Event{}, ErrNotFound
	}
	if stored.State != from {
		return models.Event{}, ErrStaleState
	}
	next.ID = id
	next.CreatorID = stored.CreatorID
	next.CreatedAt = stored.CreatedAt
	r.events[id] = next.Clone()
	return next, nil
}

func (r *MemoryEvents) Delete(_ context.Context, id primitive.ObjectID, states ...models.EventState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.events[id]
	if !ok {
		return ErrNotFound
	}
	if !stateIn(stored.State, states) {
		return ErrStaleState
	}
	delete(r.events, id)
	return nil
}

func (r *MemoryEvents) CountByOrganization(_ context.Context, orgID primitive.ObjectID, states ...models.EventState) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, ev := range r.events {
		if !stateIn(ev.State, states) {
			continue
		}
		for _, id := range ev.Organizations {
			if id == orgID {
				n++
				break
			}
		}
	}
	return n, nil
}

// MemoryOrganizations is the in-process OrganizationRepository.
type MemoryOrganizations struct {
	mu   sync.RWMutex
	orgs map[primitive.ObjectID]models.Organization
}

func NewMemoryOrganizations() *MemoryOrganizations {
	return &MemoryOrganizations{orgs: map[primitive.ObjectID]models.Organization{}}
}

func (r *MemoryOrganizations) Create(_ context.Context, org models.Organization) (models.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if org.ID.IsZero() {
		org.ID = primitive.NewObjectID()
	}
	r.orgs[org.ID] = org
	return org, nil
}

func (r *MemoryOrganizations) FindByID(_ context.Context, id primitive.ObjectID) (models.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	org, ok := r.orgs[id]
	if !ok {
		return models.Organization{}, ErrNotFound
	}
	return org, nil
}

func (r *MemoryOrganizations) List(ctx context.Context, page Page) ([]models.Organization, int64, error) {
	return r.Search(ctx, OrganizationFilter{}, page)
}

func (r *MemoryOrganizations) Search(_ context.Context, filter OrganizationFilter, page Page) ([]models.Organization, int64, error) {
	page = page.Normalize()
	r.mu.RLock()
	var matched []models.Organization
	for _, org := range r.orgs {
		if filter.Name != "" && !containsFold(org.Name, filter.Name) {
			continue
		}
		if filter.NIT != "" && !containsFold(org.NIT, filter.NIT) {
			continue
		}
		if filter.Type != "" && org.Type != filter.Type {
			continue
		}
		matched = append(matched, org)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return strings.ToLower(matched[i].Name) < strings.ToLower(matched[j].Name)
	})
	return paginate(matched, page), int64(len(matched)), nil
}

func (r *MemoryOrganizations) Update(_ context.Context, org models.Organization) (models.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orgs[org.ID]
	if !ok {
		return models.Organization{}, ErrNotFound
	}
	org.CreatorID = stored.CreatorID
	org.CreatedAt = stored.CreatedAt
	org.UpdatedAt = time.Now().UTC()
	r.orgs[org.ID] = org
	return org, nil
}

func (r *MemoryOrganizations) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orgs[id]; !ok {
		return ErrNotFound
	}
	delete(r.orgs, id)
	return nil
}

// MemoryUsers is the in-process UserRepository.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]models.User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: map[primitive.ObjectID]models.User{}}
}

func (r *MemoryUsers) Create(_ context.Context, user models.User) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Email = normalizeEmail(user.Email)
	for _, u := range r.users {
		if u.Email == user.Email {
			return models.User{}, ErrDuplicate
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *MemoryUsers) FindByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	email = normalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (r *MemoryUsers) FindByResetToken(_ context.Context, token string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if token == "" {
		return models.User{}, ErrNotFound
	}
	for _, u := range r.users {
		if u.ResetToken == token {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (r *MemoryUsers) Update(_ context.Context, user models.User) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[user.ID]
	if !ok {
		return models.User{}, ErrNotFound
	}
	user.Email = normalizeEmail(user.Email)
	for id, u := range r.users {
		if id != user.ID && u.Email == user.Email {
			return models.User{}, ErrDuplicate
		}
	}
	user.CreatedAt = stored.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	r.users[user.ID] = user
	return user, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func paginate[T any](items []T, page Page) []T {
	start := page.skip()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
