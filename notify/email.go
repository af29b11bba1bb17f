package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/campus-events-go/lifecycle"
	"github.com/phillip/campus-events-go/models"
)

// Mailer sends an HTML email.
type Mailer interface {
	Send(ctx context.Context, to, name, subject, body string) error
}

// email request payload for ZeptoMail API
type emailRequest struct {
	From     emailAddress  `json:"from"`
	To       []toRecipient `json:"to"`
	Subject  string        `json:"subject"`
	HtmlBody string        `json:"htmlbody"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type toRecipient struct {
	Email emailWithName `json:"email_address"`
}

type emailWithName struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// ZeptoMailer sends mail through the ZeptoMail HTTP API.
type ZeptoMailer struct {
	APIURL string
	APIKey string
	From   string
	Client *http.Client
	Logger zerolog.Logger
}

func NewZeptoMailer(apiURL, apiKey, from string, logger zerolog.Logger) *ZeptoMailer {
	return &ZeptoMailer{
		APIURL: apiURL,
		APIKey: apiKey,
		From:   from,
		Client: &http.Client{Timeout: 10 * time.Second},
		Logger: logger,
	}
}

func (m *ZeptoMailer) Send(ctx context.Context, to, name, subject, body string) error {
	if m.APIURL == "" || m.APIKey == "" || m.From == "" {
		return errors.New("missing required email config")
	}

	payload := emailRequest{
		From: emailAddress{Address: m.From},
		To: []toRecipient{
			{Email: emailWithName{Address: to, Name: name}},
		},
		Subject:  subject,
		HtmlBody: body,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.APIURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", m.APIKey)

	resp, err := m.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("zeptomail API error: %s", resp.Status)
	}

	m.Logger.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

// LogMailer only logs outgoing mail. Used when no mail API is configured.
type LogMailer struct {
	Logger zerolog.Logger
}

func (m LogMailer) Send(_ context.Context, to, _, subject, _ string) error {
	m.Logger.Info().Str("to", to).Str("subject", subject).Msg("email not sent: mailer disabled")
	return nil
}

// UserLookup resolves the creator of an event.
type UserLookup interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
}

// ReviewMailer emails the event creator when a reviewer approves or
// rejects their event. Other transitions are ignored.
type ReviewMailer struct {
	Mailer Mailer
	Users  UserLookup
}

func (r ReviewMailer) Notify(ctx context.Context, change lifecycle.Change) error {
	var subject, body string
	title := html.EscapeString(change.Title)
	switch change.Transition {
	case lifecycle.TransitionApprove:
		subject = "Evento aprobado: " + change.Title
		body = fmt.Sprintf("<p>Su evento <strong>%s</strong> fue aprobado.</p>", title)
	case lifecycle.TransitionReject:
		subject = "Evento rechazado: " + change.Title
		body = fmt.Sprintf("<p>Su evento <strong>%s</strong> fue rechazado.</p><p>Motivo: %s</p>",
			title, html.EscapeString(change.Reason))
	default:
		return nil
	}

	creator, err := r.Users.FindByID(ctx, change.CreatorID)
	if err != nil {
		return fmt.Errorf("lookup creator %s: %w", change.CreatorID.Hex(), err)
	}
	return r.Mailer.Send(ctx, creator.Email, creator.FirstName+" "+creator.LastName, subject, body)
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
