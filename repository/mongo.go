package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/phillip/campus-events-go/models"
)

const (
	eventsCollection        = "events"
	organizationsCollection = "organizations"
	usersCollection         = "users"
)

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "reset_token", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}
	_, err = db.Collection(eventsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "creator_id", Value: 1}}},
		{Keys: bson.D{{Key: "organizations", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("events indexes: %w", err)
	}
	return nil
}

func titleRegex(q string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(q), "$options": "i"}
}

func findOptions(page Page, sort bson.D) *options.FindOptions {
	return options.Find().
		SetSort(sort).
		SetSkip(int64(page.skip())).
		SetLimit(int64(page.Limit))
}

// MongoEvents is the MongoDB EventRepository.
type MongoEvents struct {
	col *mongo.Collection
}

func NewMongoEvents(db *mongo.Database) *MongoEvents {
	return &MongoEvents{col: db.Collection(eventsCollection)}
}

// EventListFilter builds the bson filter for List.
func EventListFilter(filter EventFilter) bson.M {
	f := bson.M{}
	if filter.State != "" {
		f["state"] = filter.State
	}
	if !filter.CreatorID.IsZero() {
		f["creator_id"] = filter.CreatorID
	}
	if filter.Query != "" {
		f["title"] = titleRegex(filter.Query)
	}
	return f
}

func statesFilter(states []models.EventState) bson.M {
	return bson.M{"$in": states}
}

func (r *MongoEvents) Create(ctx context.Context, event models.Event) (models.Event, error) {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if _, err := r.col.InsertOne(ctx, event); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Event{}, ErrDuplicate
		}
		return models.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

func (r *MongoEvents) FetchEvent(ctx context.Context, id primitive.ObjectID) (models.Event, error) {
	var ev models.Event
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&ev); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Event{}, ErrNotFound
		}
		return models.Event{}, fmt.Errorf("find event: %w", err)
	}
	return ev, nil
}

func (r *MongoEvents) List(ctx context.Context, filter EventFilter, page Page) ([]models.Event, int64, error) {
	page = page.Normalize()
	f := EventListFilter(filter)

	total, err := r.col.CountDocuments(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	cursor, err := r.col.Find(ctx, f, findOptions(page, bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, 0, fmt.Errorf("find events: %w", err)
	}
	events := []models.Event{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, 0, fmt.Errorf("decode events: %w", err)
	}
	return events, total, nil
}

func (r *MongoEvents) Update(ctx context.Context, event models.Event, states ...models.EventState) (models.Event, error) {
	filter := bson.M{"_id": event.ID}
	if len(states) > 0 {
		filter["state"] = statesFilter(states)
	}
	update := bson.M{"$set": bson.M{
		"title":                 event.Title,
		"description":           event.Description,
		"type":                  event.Type,
		"start_date":            event.StartDate,
		"end_date":              event.EndDate,
		"locations":             event.Locations,
		"organizations":         event.Organizations,
		"participants":          event.Participants,
		"committee_minutes_url": event.CommitteeMinutesURL,
		"updated_at":            time.Now().UTC(),
	}}

	var updated models.Event
	err := r.col.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Event{}, r.missOrStale(ctx, event.ID)
		}
		return models.Event{}, fmt.Errorf("update event: %w", err)
	}
	return updated, nil
}

func (r *MongoEvents) PersistTransition(ctx context.Context, id primitive.ObjectID, from models.EventState, next models.Event) (models.Event, error) {
	next.ID = id
	var stored models.Event
	err := r.col.FindOneAndReplace(ctx, bson.M{"_id": id, "state": from}, next,
		options.FindOneAndReplace().SetReturnDocument(options.After)).Decode(&stored)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Event{}, r.missOrStale(ctx, id)
		}
		return models.Event{}, fmt.Errorf("persist transition: %w", err)
	}
	return stored, nil
}

func (r *MongoEvents) Delete(ctx context.Context, id primitive.ObjectID, states ...models.EventState) error {
	filter := bson.M{"_id": id}
	if len(states) > 0 {
		filter["state"] = statesFilter(states)
	}
	res, err := r.col.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if res.DeletedCount == 0 {
		return r.missOrStale(ctx, id)
	}
	return nil
}

func (r *MongoEvents) CountByOrganization(ctx context.Context, orgID primitive.ObjectID, states ...models.EventState) (int64, error) {
	filter := bson.M{"organizations": orgID}
	if len(states) > 0 {
		filter["state"] = statesFilter(states)
	}
	n, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count organization events: %w", err)
	}
	return n, nil
}

// missOrStale tells a missing document apart from a state mismatch after a
// conditional write matched nothing.
func (r *MongoEvents) missOrStale(ctx context.Context, id primitive.ObjectID) error {
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("check event: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStaleState
}

// MongoOrganizations is the MongoDB OrganizationRepository.
type MongoOrganizations struct {
	col *mongo.Collection
}

func NewMongoOrganizations(db *mongo.Database) *MongoOrganizations {
	return &MongoOrganizations{col: db.Collection(organizationsCollection)}
}

// OrganizationSearchFilter builds the bson filter for Search.
func OrganizationSearchFilter(filter OrganizationFilter) bson.M {
	f := bson.M{}
	if filter.Name != "" {
		f["name"] = titleRegex(filter.Name)
	}
	if filter.NIT != "" {
		f["nit"] = titleRegex(filter.NIT)
	}
	if filter.Type != "" {
		f["type"] = filter.Type
	}
	return f
}

func (r *MongoOrganizations) Create(ctx context.Context, org models.Organization) (models.Organization, error) {
	if org.ID.IsZero() {
		org.ID = primitive.NewObjectID()
	}
	if _, err := r.col.InsertOne(ctx, org); err != nil {
		return models.Organization{}, fmt.Errorf("insert organization: %w", err)
	}
	return org, nil
}

func (r *MongoOrganizations) FindByID(ctx context.Context, id primitive.ObjectID) (models.Organization, error) {
	var org models.Organization
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&org); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Organization{}, ErrNotFound
		}
		return models.Organization{}, fmt.Errorf("find organization: %w", err)
	}
	return org, nil
}

func (r *MongoOrganizations) List(ctx context.Context, page Page) ([]models.Organization, int64, error) {
	return r.Search(ctx, OrganizationFilter{}, page)
}

func (r *MongoOrganizations) Search(ctx context.Context, filter OrganizationFilter, page Page) ([]models.Organization, int64, error) {
	page = page.Normalize()
	f := OrganizationSearchFilter(filter)
	total, err := r.col.CountDocuments(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("count organizations: %w", err)
	}
	cursor, err := r.col.Find(ctx, f, findOptions(page, bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, 0, fmt.Errorf("find organizations: %w", err)
	}
	orgs := []models.Organization{}
	if err := cursor.All(ctx, &orgs); err != nil {
		return nil, 0, fmt.Errorf("decode organizations: %w", err)
	}
	return orgs, total, nil
}

func (r *MongoOrganizations) Update(ctx context.Context, org models.Organization) (models.Organization, error) {
	update := bson.M{"$set": bson.M{
		"name":                 org.Name,
		"nit":                  org.NIT,
		"legal_representative": org.LegalRepresentative,
		"contact_person":       org.ContactPerson,
		"email":                org.Email,
		"phone":                org.Phone,
		"location":             org.Location,
		"main_activity":        org.MainActivity,
		"type":                 org.Type,
		"certificate_url":      org.CertificateURL,
		"updated_at":           time.Now().UTC(),
	}}
	var updated models.Organization
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": org.ID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Organization{}, ErrNotFound
		}
		return models.Organization{}, fmt.Errorf("update organization: %w", err)
	}
	return updated, nil
}

func (r *MongoOrganizations) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MongoUsers is the MongoDB UserRepository.
type MongoUsers struct {
	col *mongo.Collection
}

func NewMongoUsers(db *mongo.Database) *MongoUsers {
	return &MongoUsers{col: db.Collection(usersCollection)}
}

func (r *MongoUsers) Create(ctx context.Context, user models.User) (models.User, error) {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.Email = normalizeEmail(user.Email)
	if _, err := r.col.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, ErrDuplicate
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *MongoUsers) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (r *MongoUsers) FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUsers) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, bson.M{"email": normalizeEmail(email)})
}

func (r *MongoUsers) FindByResetToken(ctx context.Context, token string) (models.User, error) {
	if token == "" {
		return models.User{}, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"reset_token": token})
}

func (r *MongoUsers) Update(ctx context.Context, user models.User) (models.User, error) {
	user.Email = normalizeEmail(user.Email)
	user.UpdatedAt = time.Now().UTC()
	var stored models.User
	err := r.col.FindOneAndReplace(ctx, bson.M{"_id": user.ID}, user,
		options.FindOneAndReplace().SetReturnDocument(options.After)).Decode(&stored)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, ErrDuplicate
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	return stored, nil
}
