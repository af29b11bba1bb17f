package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/campus-events-go/models"
	"github.com/phillip/campus-events-go/repository"
)

// Store is the part of the event repository the service needs.
type Store interface {
	FetchEvent(ctx context.Context, id primitive.ObjectID) (models.Event, error)
	PersistTransition(ctx context.Context, id primitive.ObjectID, from models.EventState, next models.Event) (models.Event, error)
}

// Change is published after a transition has been persisted.
type Change struct {
	EventID    primitive.ObjectID `json:"event_id"`
	Title      string             `json:"title"`
	Transition Transition         `json:"transition"`
	From       models.EventState  `json:"from"`
	To         models.EventState  `json:"to"`
	ActorID    primitive.ObjectID `json:"actor_id"`
	CreatorID  primitive.ObjectID `json:"creator_id"`
	Reason     string             `json:"reason,omitempty"`
	At         time.Time          `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, change Change) error
}

// Recorder counts transition outcomes.
type Recorder interface {
	ObserveTransition(t Transition, outcome string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Change) error { return nil }

type nopRecorder struct{}

func (nopRecorder) ObserveTransition(Transition, string) {}

// Service runs a transition end to end: fetch snapshot, decide, persist,
// publish.
type Service struct {
	store    Store
	notifier Notifier
	recorder Recorder
	logger   zerolog.Logger
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: nopNotifier{},
		recorder: nopRecorder{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transition applies t to the event identified by id on behalf of actor.
// A conflicting concurrent write surfaces as ErrStaleState; the caller is
// expected to re-fetch and re-evaluate.
func (s *Service) Transition(ctx context.Context, id primitive.ObjectID, actor Actor, t Transition, payload Payload) (models.Event, error) {
	snapshot, err := s.store.FetchEvent(ctx, id)
	if err != nil {
		return models.Event{}, fmt.Errorf("fetch event %s: %w", id.Hex(), err)
	}

	next, err := AttemptTransition(snapshot, actor, t, payload)
	if err != nil {
		s.recorder.ObserveTransition(t, outcome(err))
		s.logger.Debug().Err(err).
			Str("event_id", id.Hex()).
			Str("transition", t.String()).
			Str("actor_id", actor.ID.Hex()).
			Msg("transition refused")
		return snapshot, err
	}

	stored, err := s.store.PersistTransition(ctx, id, snapshot.State, next)
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) || errors.Is(err, repository.ErrNotFound) {
			s.recorder.ObserveTransition(t, "stale")
			return snapshot, refuse(ErrStaleState, t, snapshot.State, err.Error())
		}
		s.recorder.ObserveTransition(t, "error")
		return snapshot, fmt.Errorf("persist %s: %w", t, err)
	}
	s.recorder.ObserveTransition(t, "ok")

	s.logger.Info().
		Str("event_id", id.Hex()).
		Str("transition", t.String()).
		Str("from", snapshot.State.String()).
		Str("to", stored.State.String()).
		Str("actor_id", actor.ID.Hex()).
		Msg("event transitioned")

	change := Change{
		EventID:    id,
		Title:      stored.Title,
		Transition: t,
		From:       snapshot.State,
		To:         stored.State,
		ActorID:    actor.ID,
		CreatorID:  stored.CreatorID,
		Reason:     stored.RejectionReason,
		At:         stored.UpdatedAt,
	}
	if err := s.notifier.Notify(ctx, change); err != nil {
		s.logger.Warn().Err(err).Str("event_id", id.Hex()).Msg("lifecycle notification failed")
	}
	return stored, nil
}

// Evaluate fetches the event and returns it with the actor's capabilities.
func (s *Service) Evaluate(ctx context.Context, id primitive.ObjectID, actor Actor) (models.Event, Capabilities, error) {
	ev, err := s.store.FetchEvent(ctx, id)
	if err != nil {
		return models.Event{}, Capabilities{}, fmt.Errorf("fetch event %s: %w", id.Hex(), err)
	}
	return ev, Evaluate(ev, actor), nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrMissingJustification):
		return "missing_justification"
	case errors.Is(err, ErrMissingRequiredDocument):
		return "missing_document"
	case errors.Is(err, ErrStaleState):
		return "stale"
	default:
		return "invalid"
	}
}
