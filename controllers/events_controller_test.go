package controllers_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phillip/campus-events-go/lifecycle"
	"github.com/phillip/campus-events-go/models"
)

func TestCreateEvent(t *testing.T) {
	e := newEnv(t)
	creator, tok := e.user(t, models.RoleStudent)

	w := e.json(t, http.MethodPost, "/api/events", tok, completeEvent())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	view := data[eventView](t, w)
	assert.Equal(t, models.StateDraft, view.Event.State)
	assert.Equal(t, creator.ID, view.Event.CreatorID)
	assert.Equal(t, models.EventTypeAcademic, view.Event.Type)
	require.Len(t, view.Event.Locations, 1)
	assert.Equal(t, models.Location{Name: "Auditorio principal", Capacity: 200}, view.Event.Locations[0])
	assert.Equal(t, lifecycle.Capabilities{CanSubmit: true, CanEdit: true, CanDelete: true}, view.Capabilities)
}

func TestCreateEvent_Validation(t *testing.T) {
	e := newEnv(t)
	_, tok := e.user(t, models.RoleStudent)

	cases := map[string]map[string]any{
		"missing title":    {"descripcion": "x"},
		"bad type":         {"titulo": "x", "tipo": "deportivo"},
		"bad date":         {"titulo": "x", "fecha_inicio": "mañana"},
		"end before start": {"titulo": "x", "fecha_inicio": "2026-11-02", "fecha_fin": "2026-11-01"},
		"unknown org":      {"titulo": "x", "organizaciones": []string{"65f000000000000000000001"}},
		"bad org id":       {"titulo": "x", "organizaciones": []string{"nope"}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := e.json(t, http.MethodPost, "/api/events", tok, body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.False(t, decode(t, w).Success)
		})
	}
}

func TestCreateEvent_IncompleteDraftCannotBeSubmitted(t *testing.T) {
	e := newEnv(t)
	_, tok := e.user(t, models.RoleTeacher)

	w := e.json(t, http.MethodPost, "/api/events", tok, map[string]any{"titulo": "Borrador"})
	require.Equal(t, http.StatusCreated, w.Code)
	view := data[eventView](t, w)
	assert.False(t, view.Capabilities.CanSubmit)

	w = e.json(t, http.MethodPost, "/api/events/"+view.Event.ID.Hex()+"/submit-validation", tok, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode(t, w).Error, "invalid transition")
}

func TestCreateEvent_WithCommitteeMinutes(t *testing.T) {
	e := newEnv(t)
	_, tok := e.user(t, models.RoleStudent)

	w := e.multipart(t, http.MethodPost, "/api/events", tok,
		map[string][]string{"titulo": {"Feria"}, "lugares": {"Plaza", "Coliseo:500"}},
		map[string][]byte{"acta_comite_pdf": pdfBytes})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	ev := data[eventView](t, w).Event
	assert.Equal(t, "https://files.test/committee-minutes/acta_comite_pdf.pdf", ev.CommitteeMinutesURL)
	assert.Len(t, ev.Locations, 2)
}

func TestApproveFlow(t *testing.T) {
	e := newEnv(t)
	_, student := e.user(t, models.RoleStudent)
	secretary, reviewer := e.user(t, models.RoleSecretary)
	ev := e.submittedEvent(t, student)
	assert.Equal(t, models.StateSubmitted, ev.State)
	path := "/api/events/" + ev.ID.Hex()

	// pending queue
	w := e.json(t, http.MethodGet, "/api/events/pending", reviewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending := data[pageOf[models.Event]](t, w)
	require.Len(t, pending.Items, 1)
	assert.Equal(t, ev.ID, pending.Items[0].ID)

	// reviewer capabilities
	w = e.json(t, http.MethodGet, path, reviewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, lifecycle.Capabilities{CanApprove: true, CanReject: true}, data[eventView](t, w).Capabilities)

	// approval needs a document
	w = e.json(t, http.MethodPost, path+"/approve", reviewer, map[string]string{"justificacion": "ok"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode(t, w).Error, "missing required document")

	w = e.multipart(t, http.MethodPost, path+"/approve", reviewer,
		map[string][]string{"justificacion": {"Cumple requisitos"}},
		map[string][]byte{"pdf_aprobacion": pdfBytes})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	approved := data[eventView](t, w).Event
	assert.Equal(t, models.StateApproved, approved.State)
	assert.Equal(t, "https://files.test/event-approvals/pdf_aprobacion.pdf", approved.ApprovalDocument)
	assert.Equal(t, "Cumple requisitos", approved.ApprovalJustification)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, secretary.ID, *approved.ReviewedBy)

	// APPROVED is terminal
	w = e.json(t, http.MethodPut, path, student, map[string]string{"titulo": "Otro"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = e.json(t, http.MethodDelete, path, student, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = e.json(t, http.MethodPost, path+"/reject", reviewer, map[string]string{"justificacion": "tarde"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = e.json(t, http.MethodPost, path+"/submit-validation", student, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestApprove_DocumentURL(t *testing.T) {
	e := newEnv(t)
	_, student := e.user(t, models.RoleStudent)
	_, reviewer := e.user(t, models.RoleSecretary)
	ev := e.submittedEvent(t, student)

	w := e.json(t, http.MethodPost, "/api/events/"+ev.ID.Hex()+"/approve", reviewer,
		map[string]string{"approval_document": "https://files.test/acta-123.pdf"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "https://files.test/acta-123.pdf", data[eventView](t, w).Event.ApprovalDocument)
	assert.Empty(t, e.uploader.uploads)
}

func TestApprove_RefusedBeforeUpload(t *testing.T) {
	e := newEnv(t)
	_, student := e.user(t, models.RoleStudent)
	ev := e.submittedEvent(t, student)

	w := e.multipart(t, http.MethodPost, "/api/events/"+ev.ID.Hex()+"/approve", student, nil,
		map[string][]byte{"pdf_aprobacion": pdfBytes})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, e.uploader.uploads)
}

func TestApprove_RejectsNonPDF(t *testing.T) {
	e := newEnv(t)
	_, student := e.user(t, models.RoleStudent)
	_, reviewer := e.user(t, models.RoleSecretary)
	ev := e.submittedEvent(t, student)

	w := e.multipart(t, http.MethodPost, "/api/events/"+ev.ID.Hex()+"/approve", reviewer, nil,
		map[string][]byte{"pdf_aprobacion": []byte("just some plain text")})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Error, "PDF")
}

func TestRejectAndResubmit(t *testing.T) {
	e := newEnv(t)
	_, student := e.user(t, models.RoleStudent)
	_, reviewer := e.user(t, models.RoleSecretary)
	ev := e.submittedEvent(t, student)
	path := "/api/events/" + ev.ID.Hex()

	w := e.json(t, http.MethodPost, path+"/reject", reviewer, map[string]string{"justificacion": "   "})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode(t, w).Error, "missing justification")

	w = e.json(t, http.MethodPost, path+"/reject", reviewer, map[string]string{"justificacion": "Falta el aforo"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rejected := data[eventView](t, w).Event
	assert.Equal(t, models.StateRejected, rejected.State)
	assert.Equal(t, "Falta el aforo", rejected.RejectionReason)

	w = e.json(t, http.MethodPut, path, student, map[string]any{"lugares": []string{"Auditorio:150"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 150, data[eventView](t, w).Event.Locations[0].Capacity)

	w = e.json(t, http.MethodPost, path+"/submit-validation", student, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resubmitted := data[eventView](t, w).Event
	assert.Equal(t, models.StateSubmitted, resubmitted.State)
	assert.Empty(t, resubmitted.RejectionReason)
}

func TestReviewRequiresSecretary(t *testing.T) {
	e := newEnv(t)
	_, student := e.user(t, models.RoleStudent)
	_, teacher := e.user(t, models.RoleTeacher)
	ev := e.submittedEvent(t, student)

	w := e.json(t, http.MethodPost, "/api/events/"+ev.ID.Hex()+"/reject", teacher, map[string]string{"justificacion": "no"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.json(t, http.MethodGet, "/api/events/pending", teacher, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubmitOnlyByCreator(t *testing.T) {
	e := newEnv(t)
	_, owner := e.user(t, models.RoleStudent)
	_, other := e.user(t, models.RoleStudent)
	ev := e.createEvent(t, owner)

	w := e.json(t, http.MethodPost, "/api/events/"+ev.ID.Hex()+"/submit-validation", other, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEventVisibility(t *testing.T) {
	e := newEnv(t)
	_, owner := e.user(t, models.RoleStudent)
	_, other := e.user(t, models.RoleStudent)
	_, reviewer := e.user(t, models.RoleSecretary)
	ev := e.submittedEvent(t, owner)
	path := "/api/events/" + ev.ID.Hex()

	assert.Equal(t, http.StatusNotFound, e.json(t, http.MethodGet, path, other, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.json(t, http.MethodDelete, path, other, nil).Code)

	w := e.json(t, http.MethodPost, path+"/approve", reviewer, map[string]string{"approval_document": "https://files.test/a.pdf"})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.json(t, http.MethodGet, path, other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, lifecycle.Capabilities{}, data[eventView](t, w).Capabilities)

	// another student may see it but not touch it
	assert.Equal(t, http.StatusForbidden, e.json(t, http.MethodPut, path, other, map[string]string{"titulo": "x"}).Code)
}

func TestGetEvent_ETag(t *testing.T) {
	e := newEnv(t)
	_, tok := e.user(t, models.RoleStudent)
	ev := e.createEvent(t, tok)
	path := "/api/events/" + ev.ID.Hex()

	w := e.json(t, http.MethodGet, path, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = e.do(t, http.MethodGet, path, tok, nil, "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)

	// a reviewer sees the same event with other capabilities
	_, secretary := e.user(t, models.RoleSecretary)
	w = e.do(t, http.MethodGet, path, secretary, nil, "", "If-None-Match", etag)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, etag, w.Header().Get("ETag"))
	assert.Equal(t, "Authorization", w.Header().Get("Vary"))

	assert.Equal(t, http.StatusBadRequest, e.json(t, http.MethodGet, "/api/events/nope", tok, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.json(t, http.MethodGet, "/api/events/65f000000000000000000001", tok, nil).Code)
}

func TestListEvents(t *testing.T) {
	e := newEnv(t)
	_, alice := e.user(t, models.RoleStudent)
	_, bob := e.user(t, models.RoleStudent)
	_, reviewer := e.user(t, models.RoleSecretary)

	e.createEvent(t, alice)
	approved := e.submittedEvent(t, alice)
	e.createEvent(t, bob)

	w := e.json(t, http.MethodPost, "/api/events/"+approved.ID.Hex()+"/approve", reviewer,
		map[string]string{"approval_document": "https://files.test/a.pdf"})
	require.Equal(t, http.StatusOK, w.Code)

	list := func(token, query string) pageOf[models.Event] {
		w := e.json(t, http.MethodGet, "/api/events"+query, token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return data[pageOf[models.Event]](t, w)
	}

	assert.EqualValues(t, 2, list(alice, "").Total)
	assert.EqualValues(t, 1, list(bob, "").Total)
	assert.EqualValues(t, 1, list(bob, "?estado=aprobado").Total)
	assert.EqualValues(t, 3, list(reviewer, "").Total)
	assert.EqualValues(t, 0, list(reviewer, "?mine=true").Total)

	paged := list(reviewer, "?page=2&limit=2")
	assert.Len(t, paged.Items, 1)
	assert.Equal(t, 2, paged.Page)

	w = e.json(t, http.MethodGet, "/api/events?estado=archived", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteEvent(t *testing.T) {
	e := newEnv(t)
	_, tok := e.user(t, models.RoleStudent)

	w := e.multipart(t, http.MethodPost, "/api/events", tok,
		map[string][]string{"titulo": {"Feria"}},
		map[string][]byte{"acta_comite_pdf": pdfBytes})
	require.Equal(t, http.StatusCreated, w.Code)
	ev := data[eventView](t, w).Event

	w = e.json(t, http.MethodDelete, "/api/events/"+ev.ID.Hex(), tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{ev.CommitteeMinutesURL}, e.uploader.deleted)

	assert.Equal(t, http.StatusNotFound, e.json(t, http.MethodGet, "/api/events/"+ev.ID.Hex(), tok, nil).Code)
}

func TestCreateEvent_UploadFailure(t *testing.T) {
	e := newEnv(t)
	_, tok := e.user(t, models.RoleStudent)
	e.uploader.uploadErr = errors.New("cloudinary unavailable")

	w := e.multipart(t, http.MethodPost, "/api/events", tok,
		map[string][]string{"titulo": {"Feria"}},
		map[string][]byte{"acta_comite_pdf": pdfBytes})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "document upload failed", decode(t, w).Error)
}

func TestDeleteEvent_DiscardFailureIsNotFatal(t *testing.T) {
	e := newEnv(t)
	_, tok := e.user(t, models.RoleStudent)

	w := e.multipart(t, http.MethodPost, "/api/events", tok,
		map[string][]string{"titulo": {"Feria"}},
		map[string][]byte{"acta_comite_pdf": pdfBytes})
	require.Equal(t, http.StatusCreated, w.Code)
	ev := data[eventView](t, w).Event

	e.uploader.deleteErr = errors.New("cloudinary unavailable")
	w = e.json(t, http.MethodDelete, "/api/events/"+ev.ID.Hex(), tok, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestEventsRequireAuth(t *testing.T) {
	e := newEnv(t)
	w := e.json(t, http.MethodGet, "/api/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
