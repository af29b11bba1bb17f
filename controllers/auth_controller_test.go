package controllers_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phillip/campus-events-go/models"
	utils "github.com/phillip/campus-events-go/utils"
)

type authResponse struct {
	User         models.User `json:"user"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refresh_token"`
}

func register(t *testing.T, e *env, email, password, role string) authResponse {
	t.Helper()
	w := e.json(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"nombre":     "Laura",
		"apellido":   "Gómez",
		"correo":     email,
		"contrasena": password,
		"rol":        role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return data[authResponse](t, w)
}

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t)

	reg := register(t, e, "Laura@Uni.test", "correct-horse", "ESTUDIANTE")
	assert.Equal(t, models.RoleStudent, reg.User.Role)
	assert.Equal(t, "laura@uni.test", reg.User.Email)
	assert.NotEmpty(t, reg.Token)
	assert.NotEmpty(t, reg.RefreshToken)

	w := e.json(t, http.MethodPost, "/api/auth/login", "", map[string]string{"correo": "laura@uni.test", "contrasena": "correct-horse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := data[authResponse](t, w)

	w = e.json(t, http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, reg.User.ID, data[authResponse](t, w).User.ID)
	assert.NotContains(t, w.Body.String(), "password")

	w = e.json(t, http.MethodPost, "/api/auth/login", "", map[string]string{"correo": "laura@uni.test", "contrasena": "wrong-horse"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.json(t, http.MethodPost, "/api/auth/login", "", map[string]string{"correo": "nobody@uni.test", "contrasena": "wrong-horse"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegister_Rejections(t *testing.T) {
	e := newEnv(t)
	register(t, e, "taken@uni.test", "correct-horse", "")

	cases := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"duplicate email", map[string]string{"nombre": "a", "apellido": "b", "correo": "TAKEN@uni.test", "contrasena": "correct-horse"}, http.StatusConflict},
		{"admin", map[string]string{"nombre": "a", "apellido": "b", "correo": "x@uni.test", "contrasena": "correct-horse", "rol": "ADMIN"}, http.StatusForbidden},
		{"unknown role", map[string]string{"nombre": "a", "apellido": "b", "correo": "y@uni.test", "contrasena": "correct-horse", "rol": "rector"}, http.StatusBadRequest},
		{"weak password", map[string]string{"nombre": "a", "apellido": "b", "correo": "z@uni.test", "contrasena": "short"}, http.StatusBadRequest},
		{"bad email", map[string]string{"nombre": "a", "apellido": "b", "correo": "not-an-email", "contrasena": "correct-horse"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := e.json(t, http.MethodPost, "/api/auth/register", "", tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestRegister_TeacherEndorsement(t *testing.T) {
	e := newEnv(t)

	w := e.multipart(t, http.MethodPost, "/api/auth/register", "", map[string][]string{
		"nombre":     {"Carlos"},
		"apellido":   {"Ruiz"},
		"correo":     {"carlos@uni.test"},
		"contrasena": {"correct-horse"},
		"rol":        {"DOCENTE"},
	}, map[string][]byte{"aval_pdf": pdfBytes})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	reg := data[authResponse](t, w)
	assert.Equal(t, models.RoleTeacher, reg.User.Role)
	assert.Equal(t, "https://files.test/teacher-endorsements/aval_pdf.pdf", reg.User.EndorsementURL)
}

func TestRefreshToken(t *testing.T) {
	e := newEnv(t)
	reg := register(t, e, "refresh@uni.test", "correct-horse", "")

	w := e.json(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": reg.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, data[authResponse](t, w).Token)

	// an access token is not a refresh token
	w = e.json(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": reg.Token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// and a refresh token does not authenticate requests
	w = e.json(t, http.MethodGet, "/api/auth/me", reg.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestForgotAndResetPassword(t *testing.T) {
	e := newEnv(t)
	register(t, e, "olvido@uni.test", "correct-horse", "")

	w := e.json(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"correo": "nobody@uni.test"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, e.mailer.sent)

	w = e.json(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"correo": "olvido@uni.test"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, e.mailer.sent, 1)
	assert.Equal(t, "olvido@uni.test", e.mailer.sent[0].to)

	user, err := e.cfg.Users.FindByEmail(context.Background(), "olvido@uni.test")
	require.NoError(t, err)
	require.NotEmpty(t, user.ResetToken)
	assert.Contains(t, e.mailer.sent[0].body, "http://app.test/reset-password?token="+user.ResetToken)

	w = e.json(t, http.MethodPost, "/api/auth/reset-password", "", map[string]string{"token": "bogus", "nueva_contrasena": "new-password-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.json(t, http.MethodPost, "/api/auth/reset-password", "", map[string]string{"token": user.ResetToken, "nueva_contrasena": "new-password-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// the token is single use
	w = e.json(t, http.MethodPost, "/api/auth/reset-password", "", map[string]string{"token": user.ResetToken, "nueva_contrasena": "new-password-2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.json(t, http.MethodPost, "/api/auth/login", "", map[string]string{"correo": "olvido@uni.test", "contrasena": "new-password-1"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResetPassword_Expired(t *testing.T) {
	e := newEnv(t)
	user, _ := e.user(t, models.RoleStudent)
	expired := time.Now().Add(-time.Minute)
	user.ResetToken = "expired-token"
	user.ResetTokenExpiry = &expired
	_, err := e.cfg.Users.Update(context.Background(), user)
	require.NoError(t, err)

	w := e.json(t, http.MethodPost, "/api/auth/reset-password", "", map[string]string{"token": "expired-token", "nueva_contrasena": "new-password-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateProfile_KeepsRole(t *testing.T) {
	e := newEnv(t)
	_, tok := e.user(t, models.RoleStudent)

	w := e.json(t, http.MethodPut, "/api/auth/profile", tok, map[string]string{
		"nombre":   "Nuevo",
		"facultad": "Ingeniería",
		"rol":      "SECRETARIO",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := data[authResponse](t, w).User
	assert.Equal(t, "Nuevo", updated.FirstName)
	assert.Equal(t, "Ingeniería", updated.Faculty)
	assert.Equal(t, models.RoleStudent, updated.Role)
}

func TestChangePassword(t *testing.T) {
	e := newEnv(t)
	reg := register(t, e, "cambio@uni.test", "correct-horse", "")

	w := e.json(t, http.MethodPut, "/api/auth/profile/password", reg.Token, map[string]string{
		"contrasena_actual": "wrong-horse",
		"nueva_contrasena":  "battery-staple",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.json(t, http.MethodPut, "/api/auth/profile/password", reg.Token, map[string]string{
		"contrasena_actual": "correct-horse",
		"nueva_contrasena":  "battery-staple",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	user, err := e.cfg.Users.FindByEmail(context.Background(), "cambio@uni.test")
	require.NoError(t, err)
	assert.True(t, utils.CheckPassword(user.PasswordHash, "battery-staple"))
	assert.False(t, strings.Contains(w.Body.String(), user.PasswordHash))
}

// The web client spells the password keys with accents and camel case.
func TestAuth_WebClientFieldNames(t *testing.T) {
	e := newEnv(t)

	w := e.json(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"nombre":     "Sofía",
		"apellido":   "Lara",
		"correo":     "sofia@uni.test",
		"telefono":   "3000000000",
		"contraseña": "correct-horse",
		"rol":        "ESTUDIANTE",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reg := data[authResponse](t, w)

	w = e.json(t, http.MethodPost, "/api/auth/login", "", map[string]string{"correo": "sofia@uni.test", "contraseña": "correct-horse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, reg.User.ID, data[authResponse](t, w).User.ID)

	w = e.json(t, http.MethodPost, "/api/auth/login", "", map[string]string{"correo": "sofia@uni.test"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Error, "contraseña")

	w = e.json(t, http.MethodPut, "/api/auth/profile/password", reg.Token, map[string]string{
		"currentPassword": "correct-horse",
		"nuevaContraseña": "battery-staple",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.json(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"correo": "sofia@uni.test"})
	require.Equal(t, http.StatusOK, w.Code)
	user, err := e.cfg.Users.FindByEmail(context.Background(), "sofia@uni.test")
	require.NoError(t, err)
	w = e.json(t, http.MethodPost, "/api/auth/reset-password", "", map[string]string{"token": user.ResetToken, "nuevaContraseña": "third-password"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.json(t, http.MethodPost, "/api/auth/login", "", map[string]string{"correo": "sofia@uni.test", "contraseña": "third-password"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.json(t, http.MethodPut, "/api/auth/profile", reg.Token, map[string]string{"telefono": "3111111111"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "3111111111", data[authResponse](t, w).User.Phone)
}

func TestForgotPassword_MailFailure(t *testing.T) {
	e := newEnv(t)
	register(t, e, "sinmail@uni.test", "correct-horse", "")
	e.mailer.err = errors.New("smtp down")

	w := e.json(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"correo": "sinmail@uni.test"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
