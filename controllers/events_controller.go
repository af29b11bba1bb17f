package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/campus-events-go/config"
	"github.com/phillip/campus-events-go/lifecycle"
	models "github.com/phillip/campus-events-go/models"
	"github.com/phillip/campus-events-go/repository"
	utils "github.com/phillip/campus-events-go/utils"
)

// eventInput is shared by create and update. Empty fields are left as
// they are on update. A location is "name" or "name:capacity".
type eventInput struct {
	Title         string   `form:"titulo" json:"titulo"`
	Description   string   `form:"descripcion" json:"descripcion"`
	Type          string   `form:"tipo" json:"tipo"`
	StartDate     string   `form:"fecha_inicio" json:"fecha_inicio"`
	EndDate       string   `form:"fecha_fin" json:"fecha_fin"`
	Locations     []string `form:"lugares" json:"lugares"`
	Organizations []string `form:"organizaciones" json:"organizaciones"`
	Participants  []string `form:"participantes" json:"participantes"`
}

func (in eventInput) apply(ev *models.Event) error {
	setIfPresent(&ev.Title, in.Title)
	setIfPresent(&ev.Description, in.Description)

	if in.Type != "" {
		t, known := models.ParseEventType(in.Type)
		if !known {
			return fmt.Errorf("unknown event type %q", in.Type)
		}
		ev.Type = t
	}
	if in.StartDate != "" {
		start, err := utils.ParseDate(in.StartDate)
		if err != nil {
			return err
		}
		ev.StartDate = start
	}
	if in.EndDate != "" {
		end, err := utils.ParseDate(in.EndDate)
		if err != nil {
			return err
		}
		ev.EndDate = end
	}
	if !ev.StartDate.IsZero() && !ev.EndDate.IsZero() && !ev.StartDate.Before(ev.EndDate) {
		return errors.New("start date must be before end date")
	}

	if in.Locations != nil {
		locations, err := parseLocations(in.Locations)
		if err != nil {
			return err
		}
		ev.Locations = locations
	}
	if in.Organizations != nil {
		ids, err := parseIDs(in.Organizations)
		if err != nil {
			return fmt.Errorf("organizations: %w", err)
		}
		ev.Organizations = ids
	}
	if in.Participants != nil {
		ids, err := parseIDs(in.Participants)
		if err != nil {
			return fmt.Errorf("participants: %w", err)
		}
		ev.Participants = ids
	}
	return nil
}

func parseLocations(raw []string) ([]models.Location, error) {
	locations := make([]models.Location, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		loc := models.Location{Name: entry}
		if i := strings.LastIndex(entry, ":"); i > 0 {
			if capacity, err := strconv.Atoi(strings.TrimSpace(entry[i+1:])); err == nil {
				if capacity < 0 {
					return nil, fmt.Errorf("invalid capacity for %q", entry)
				}
				loc = models.Location{Name: strings.TrimSpace(entry[:i]), Capacity: capacity}
			}
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

func parseIDs(raw []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(raw))
	seen := map[primitive.ObjectID]bool{}
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", s)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// checkOrganizations verifies every referenced organization exists.
func checkOrganizations(ctx context.Context, cfg *config.Config, ids []primitive.ObjectID) error {
	for _, id := range ids {
		if _, err := cfg.Organizations.FindByID(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("organization %s does not exist", id.Hex())
			}
			return err
		}
	}
	return nil
}

func isReviewer(actor lifecycle.Actor) bool {
	return actor.Role == models.RoleSecretary || actor.Role == models.RoleAdmin
}

// canView hides other people's unapproved events from non-reviewers.
func canView(ev models.Event, actor lifecycle.Actor) bool {
	return ev.CreatorID == actor.ID || isReviewer(actor) || ev.State == models.StateApproved
}

func eventView(ev models.Event, actor lifecycle.Actor) gin.H {
	return gin.H{"event": ev, "capabilities": lifecycle.Evaluate(ev, actor)}
}

// ---------------- CREATE ----------------
func CreateEvent(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := currentActor(c)
		if !found {
			return
		}

		var input eventInput
		if err := c.ShouldBind(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(input.Title) == "" {
			fail(c, http.StatusBadRequest, "titulo is required")
			return
		}

		now := time.Now().UTC()
		event := models.Event{
			ID:        primitive.NewObjectID(),
			CreatorID: actor.ID,
			State:     models.StateDraft,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := input.apply(&event); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		if err := checkOrganizations(ctx, cfg, event.Organizations); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		minutes, uploaded := uploadDocument(c.Request.Context(), c, cfg, "acta_comite_pdf", utils.FolderCommitteeMinutes)
		if !uploaded {
			return
		}
		event.CommitteeMinutesURL = minutes

		created, err := cfg.Events.Create(ctx, event)
		if err != nil {
			discardDocument(c.Request.Context(), cfg, minutes)
			failLifecycle(c, err, "could not create event")
			return
		}
		ok(c, http.StatusCreated, eventView(created, actor))
	}
}

// ---------------- LIST ----------------
// Reviewers see every event. Everybody else sees their own events, or the
// approved ones when filtering by estado=APPROVED.
func ListEvents(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := currentActor(c)
		if !found {
			return
		}

		filter := repository.EventFilter{Query: strings.TrimSpace(c.Query("q"))}
		if raw := c.Query("estado"); raw != "" {
			state, known := models.ParseEventState(raw)
			if !known {
				fail(c, http.StatusBadRequest, "unknown estado "+raw)
				return
			}
			filter.State = state
		}
		mine := c.Query("mine") == "true"
		if mine || (!isReviewer(actor) && filter.State != models.StateApproved) {
			filter.CreatorID = actor.ID
		}
		page := pageFromQuery(c)

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		events, total, err := cfg.Events.List(ctx, filter, page)
		if err != nil {
			failLifecycle(c, err, "could not fetch events")
			return
		}
		ok(c, http.StatusOK, paged(events, total, page))
	}
}

// ---------------- PENDING ----------------
func ListPendingEvents(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := pageFromQuery(c)

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		events, total, err := cfg.Events.List(ctx, repository.EventFilter{State: models.StateSubmitted}, page)
		if err != nil {
			failLifecycle(c, err, "could not fetch events")
			return
		}
		ok(c, http.StatusOK, paged(events, total, page))
	}
}

// ---------------- GET ----------------
func GetEvent(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := currentActor(c)
		if !found {
			return
		}
		eventID, valid := paramID(c, "event")
		if !valid {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		event, caps, err := cfg.Lifecycle.Evaluate(ctx, eventID, actor)
		if err != nil {
			failLifecycle(c, err, "could not fetch event")
			return
		}
		if !canView(event, actor) {
			fail(c, http.StatusNotFound, "event not found")
			return
		}

		// the body depends on who asks
		c.Header("Vary", "Authorization")
		if notModified(c, utils.GenerateETag(event.ID, event.UpdatedAt, capabilityKey(caps))) {
			return
		}
		ok(c, http.StatusOK, gin.H{"event": event, "capabilities": caps})
	}
}

func capabilityKey(caps lifecycle.Capabilities) string {
	bits := []byte("00000")
	for i, set := range []bool{caps.CanSubmit, caps.CanApprove, caps.CanReject, caps.CanEdit, caps.CanDelete} {
		if set {
			bits[i] = '1'
		}
	}
	return string(bits)
}

// ---------------- UPDATE ----------------
func UpdateEvent(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := currentActor(c)
		if !found {
			return
		}
		eventID, valid := paramID(c, "event")
		if !valid {
			return
		}

		var input eventInput
		if err := c.ShouldBind(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		existing, err := cfg.Events.FetchEvent(ctx, eventID)
		if err != nil {
			failLifecycle(c, err, "could not fetch event")
			return
		}
		if !editableBy(c, existing, actor, "edit") {
			return
		}

		event := existing.Clone()
		if err := input.apply(&event); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		if err := checkOrganizations(ctx, cfg, event.Organizations); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		minutes, uploaded := uploadDocument(c.Request.Context(), c, cfg, "acta_comite_pdf", utils.FolderCommitteeMinutes)
		if !uploaded {
			return
		}
		if minutes != "" {
			event.CommitteeMinutesURL = minutes
		}

		// the stored state must still be editable when the write lands
		updated, err := cfg.Events.Update(ctx, event, models.StateDraft, models.StateRejected)
		if err != nil {
			discardDocument(c.Request.Context(), cfg, minutes)
			failLifecycle(c, err, "could not update event")
			return
		}
		if minutes != "" {
			discardDocument(c.Request.Context(), cfg, existing.CommitteeMinutesURL)
		}
		ok(c, http.StatusOK, eventView(updated, actor))
	}
}

// ---------------- DELETE ----------------
func DeleteEvent(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := currentActor(c)
		if !found {
			return
		}
		eventID, valid := paramID(c, "event")
		if !valid {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		existing, err := cfg.Events.FetchEvent(ctx, eventID)
		if err != nil {
			failLifecycle(c, err, "could not fetch event")
			return
		}
		if !editableBy(c, existing, actor, "delete") {
			return
		}

		if err := cfg.Events.Delete(ctx, eventID, models.StateDraft, models.StateRejected); err != nil {
			failLifecycle(c, err, "failed to delete event")
			return
		}
		discardDocument(c.Request.Context(), cfg, existing.CommitteeMinutesURL)

		ok(c, http.StatusOK, gin.H{
			"message": "event deleted successfully",
			"id":      eventID.Hex(),
		})
	}
}

// editableBy writes 403 for non-creators and 409 for events past review.
func editableBy(c *gin.Context, ev models.Event, actor lifecycle.Actor, action string) bool {
	if lifecycle.CanEdit(ev, actor) {
		return true
	}
	if ev.CreatorID != actor.ID {
		if canView(ev, actor) {
			fail(c, http.StatusForbidden, "only the creator may "+action+" this event")
		} else {
			fail(c, http.StatusNotFound, "event not found")
		}
		return false
	}
	fail(c, http.StatusConflict, fmt.Sprintf("cannot %s an event in state %s", action, ev.State))
	return false
}

// ---------------- SUBMIT ----------------
func SubmitEvent(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := currentActor(c)
		if !found {
			return
		}
		eventID, valid := paramID(c, "event")
		if !valid {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		event, err := cfg.Lifecycle.Transition(ctx, eventID, actor, lifecycle.TransitionSubmit, lifecycle.Payload{})
		if err != nil {
			failLifecycle(c, err, "could not submit event")
			return
		}
		ok(c, http.StatusOK, eventView(event, actor))
	}
}

// ---------------- APPROVE ----------------
// The approval document is either uploaded as pdf_aprobacion or given as
// an already stored URL in approval_document.
func ApproveEvent(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := currentActor(c)
		if !found {
			return
		}
		eventID, valid := paramID(c, "event")
		if !valid {
			return
		}

		var input struct {
			Justification string `form:"justificacion" json:"justificacion"`
			Document      string `form:"approval_document" json:"approval_document"`
		}
		if err := c.ShouldBind(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		// refuse before uploading anything
		snapshot, err := cfg.Events.FetchEvent(ctx, eventID)
		if err != nil {
			failLifecycle(c, err, "could not fetch event")
			return
		}
		if !lifecycle.CanApprove(snapshot, actor) {
			_, err := lifecycle.Approve(snapshot, actor, input.Document, input.Justification)
			failLifecycle(c, err, "could not approve event")
			return
		}

		uploaded, stored := uploadDocument(c.Request.Context(), c, cfg, "pdf_aprobacion", utils.FolderApprovals)
		if !stored {
			return
		}
		document := input.Document
		if uploaded != "" {
			document = uploaded
		}

		event, err := cfg.Lifecycle.Transition(ctx, eventID, actor, lifecycle.TransitionApprove, lifecycle.Payload{
			ApprovalDocument: document,
			Justification:    input.Justification,
		})
		if err != nil {
			discardDocument(c.Request.Context(), cfg, uploaded)
			failLifecycle(c, err, "could not approve event")
			return
		}
		ok(c, http.StatusOK, eventView(event, actor))
	}
}

// ---------------- REJECT ----------------
func RejectEvent(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := currentActor(c)
		if !found {
			return
		}
		eventID, valid := paramID(c, "event")
		if !valid {
			return
		}

		var input struct {
			Justification string `form:"justificacion" json:"justificacion"`
		}
		if err := c.ShouldBind(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		event, err := cfg.Lifecycle.Transition(ctx, eventID, actor, lifecycle.TransitionReject, lifecycle.Payload{
			Justification: input.Justification,
		})
		if err != nil {
			failLifecycle(c, err, "could not reject event")
			return
		}
		ok(c, http.StatusOK, eventView(event, actor))
	}
}
