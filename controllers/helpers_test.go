package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/campus-events-go/config"
	"github.com/phillip/campus-events-go/lifecycle"
	"github.com/phillip/campus-events-go/models"
	"github.com/phillip/campus-events-go/repository"
	routes "github.com/phillip/campus-events-go/routes"
	utils "github.com/phillip/campus-events-go/utils"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type fakeUploader struct {
	mu        sync.Mutex
	uploads   []string
	deleted   []string
	uploadErr error
	deleteErr error
}

func (f *fakeUploader) Upload(_ context.Context, _ multipart.File, header *multipart.FileHeader, folder string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	url := "https://files.test/" + folder + "/" + header.Filename
	f.uploads = append(f.uploads, url)
	return url, nil
}

func (f *fakeUploader) Delete(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, url)
	return nil
}

type sentMail struct {
	to, subject, body string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *captureMailer) Send(_ context.Context, to, _, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type env struct {
	cfg      *config.Config
	router   *gin.Engine
	uploader *fakeUploader
	mailer   *captureMailer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	events := repository.NewMemoryEvents()
	cfg := &config.Config{
		Store:          config.StoreMemory,
		JWTSecret:      "test-secret",
		AccessTTL:      time.Hour,
		RefreshTTL:     24 * time.Hour,
		ResetTTL:       time.Hour,
		RequestTimeout: 5 * time.Second,
		FrontendURL:    "http://app.test/",
		CORSOrigins:    []string{"http://app.test"},
		Users:          repository.NewMemoryUsers(),
		Events:         events,
		Organizations:  repository.NewMemoryOrganizations(),
		Lifecycle:      lifecycle.NewService(events, lifecycle.WithLogger(zerolog.Nop())),
	}
	e := &env{cfg: cfg, uploader: &fakeUploader{}, mailer: &captureMailer{}}
	cfg.Uploader = e.uploader
	cfg.Mailer = e.mailer
	e.router = routes.NewRouter(cfg, zerolog.Nop())
	return e
}

// user stores a user directly and returns it with an access token.
func (e *env) user(t *testing.T, role models.Role) (models.User, string) {
	t.Helper()
	now := time.Now().UTC()
	u, err := e.cfg.Users.Create(context.Background(), models.User{
		FirstName: "Ana",
		LastName:  string(role),
		Email:     primitive.NewObjectID().Hex() + "@uni.test",
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	tok, err := utils.GenerateToken(e.cfg.JWTSecret, u, utils.TokenAccess, time.Hour)
	require.NoError(t, err)
	return u, tok
}

func (e *env) do(t *testing.T, method, path, token string, body io.Reader, contentType string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) json(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return e.do(t, method, path, token, body, "application/json")
}

func (e *env) multipart(t *testing.T, method, path, token string, fields map[string][]string, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, values := range fields {
		for _, v := range values {
			require.NoError(t, mw.WriteField(name, v))
		}
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile(name, name+".pdf")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return e.do(t, method, path, token, &buf, mw.FormDataContentType())
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Retry   bool            `json:"retry"`
}

type eventView struct {
	Event        models.Event           `json:"event"`
	Capabilities lifecycle.Capabilities `json:"capabilities"`
}

type pageOf[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var out envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func data[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	resp := decode(t, w)
	require.True(t, resp.Success, w.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

func completeEvent() map[string]any {
	return map[string]any{
		"titulo":       "Semana de la ciencia",
		"descripcion":  "Charlas y talleres",
		"tipo":         "academico",
		"fecha_inicio": "2026-11-02T09:00:00Z",
		"fecha_fin":    "2026-11-02T17:00:00Z",
		"lugares":      []string{"Auditorio principal:200"},
	}
}

// createEvent creates a complete draft owned by token's user.
func (e *env) createEvent(t *testing.T, token string) models.Event {
	t.Helper()
	w := e.json(t, http.MethodPost, "/api/events", token, completeEvent())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return data[eventView](t, w).Event
}

// submittedEvent creates and submits an event owned by token's user.
func (e *env) submittedEvent(t *testing.T, token string) models.Event {
	t.Helper()
	ev := e.createEvent(t, token)
	w := e.json(t, http.MethodPost, "/api/events/"+ev.ID.Hex()+"/submit-validation", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return data[eventView](t, w).Event
}
