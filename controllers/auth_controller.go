package controllers

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/campus-events-go/config"
	"github.com/phillip/campus-events-go/logging"
	models "github.com/phillip/campus-events-go/models"
	"github.com/phillip/campus-events-go/repository"
	utils "github.com/phillip/campus-events-go/utils"
)

func issueTokens(cfg *config.Config, user models.User) (gin.H, error) {
	access, err := utils.GenerateToken(cfg.JWTSecret, user, utils.TokenAccess, cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := utils.GenerateToken(cfg.JWTSecret, user, utils.TokenRefresh, cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return gin.H{
		"user":          user,
		"token":         access,
		"refresh_token": refresh,
		"expires_in":    int(cfg.AccessTTL.Seconds()),
	}, nil
}

// ---------------- REGISTER ----------------
func Register(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			FirstName string `form:"nombre" json:"nombre" binding:"required"`
			LastName  string `form:"apellido" json:"apellido" binding:"required"`
			Email     string `form:"correo" json:"correo" binding:"required,email"`
			Phone     string `form:"telefono" json:"telefono"`
			Password  string `form:"contraseña" json:"contraseña"`
			PlainPass string `form:"contrasena" json:"contrasena"`
			Role      string `form:"rol" json:"rol"`
			Faculty   string `form:"facultad" json:"facultad"`
			Program   string `form:"programa_academico" json:"programa_academico"`
		}
		if err := c.ShouldBind(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		password, present := requiredField(c, "contraseña", input.Password, input.PlainPass)
		if !present {
			return
		}

		role := models.RoleStudent
		if input.Role != "" {
			parsed, known := models.ParseRole(input.Role)
			if !known {
				fail(c, http.StatusBadRequest, "unknown role")
				return
			}
			role = parsed
		}
		if role == models.RoleAdmin {
			fail(c, http.StatusForbidden, "administrators cannot self-register")
			return
		}

		hash, err := utils.HashPassword(password)
		if err != nil {
			if errors.Is(err, utils.ErrWeakPassword) {
				fail(c, http.StatusBadRequest, err.Error())
				return
			}
			fail(c, http.StatusInternalServerError, "could not hash password")
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		if _, err := cfg.Users.FindByEmail(ctx, input.Email); err == nil {
			fail(c, http.StatusConflict, "email already registered")
			return
		}

		var endorsement string
		if role == models.RoleTeacher {
			var uploaded bool
			if endorsement, uploaded = uploadDocument(c.Request.Context(), c, cfg, "aval_pdf", utils.FolderEndorsements); !uploaded {
				return
			}
		}

		now := time.Now().UTC()
		user, err := cfg.Users.Create(ctx, models.User{
			FirstName:      strings.TrimSpace(input.FirstName),
			LastName:       strings.TrimSpace(input.LastName),
			Email:          input.Email,
			Phone:          input.Phone,
			PasswordHash:   hash,
			Role:           role,
			Faculty:        input.Faculty,
			Program:        input.Program,
			EndorsementURL: endorsement,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			discardDocument(c.Request.Context(), cfg, endorsement)
			if errors.Is(err, repository.ErrDuplicate) {
				fail(c, http.StatusConflict, "email already registered")
				return
			}
			fail(c, http.StatusInternalServerError, "could not create user")
			return
		}

		resp, err := issueTokens(cfg, user)
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not issue token")
			return
		}
		ok(c, http.StatusCreated, resp)
	}
}

// ---------------- LOGIN ----------------
func Login(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email     string `form:"correo" json:"correo" binding:"required"`
			Password  string `form:"contraseña" json:"contraseña"`
			PlainPass string `form:"contrasena" json:"contrasena"`
		}
		if err := c.ShouldBind(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		password, present := requiredField(c, "contraseña", input.Password, input.PlainPass)
		if !present {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		user, err := cfg.Users.FindByEmail(ctx, input.Email)
		if err != nil || !utils.CheckPassword(user.PasswordHash, password) {
			fail(c, http.StatusUnauthorized, "invalid credentials")
			return
		}

		resp, err := issueTokens(cfg, user)
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not issue token")
			return
		}
		ok(c, http.StatusOK, resp)
	}
}

// ---------------- REFRESH ----------------
func RefreshToken(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		claims, err := utils.ParseToken(cfg.JWTSecret, input.RefreshToken, utils.TokenRefresh)
		if err != nil {
			fail(c, http.StatusUnauthorized, err.Error())
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		id, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			fail(c, http.StatusUnauthorized, "invalid token claims")
			return
		}
		// reload so a role change takes effect on refresh
		user, err := cfg.Users.FindByID(ctx, id)
		if err != nil {
			fail(c, http.StatusUnauthorized, "user no longer exists")
			return
		}

		resp, err := issueTokens(cfg, user)
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not issue token")
			return
		}
		ok(c, http.StatusOK, resp)
	}
}

// ---------------- ME ----------------
func Me(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := currentActor(c)
		if !found {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		user, err := cfg.Users.FindByID(ctx, actor.ID)
		if err != nil {
			fail(c, http.StatusNotFound, "user not found")
			return
		}
		if notModified(c, utils.GenerateETag(user.ID, user.UpdatedAt)) {
			return
		}
		ok(c, http.StatusOK, gin.H{"user": user})
	}
}

// ---------------- FORGOT PASSWORD ----------------
func ForgotPassword(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email string `json:"correo" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		// same answer whether or not the address exists
		const sent = "if the email is registered, a reset link has been sent"

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		user, err := cfg.Users.FindByEmail(ctx, input.Email)
		if err != nil {
			ok(c, http.StatusOK, gin.H{"message": sent})
			return
		}

		expiry := time.Now().UTC().Add(cfg.ResetTTL)
		user.ResetToken = uuid.NewString()
		user.ResetTokenExpiry = &expiry
		if _, err := cfg.Users.Update(ctx, user); err != nil {
			fail(c, http.StatusInternalServerError, "could not start password reset")
			return
		}

		link := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(cfg.FrontendURL, "/"), url.QueryEscape(user.ResetToken))
		body := fmt.Sprintf(`<p>Hola %s,</p><p>Para restablecer su contraseña abra <a href="%s">este enlace</a>. El enlace vence en %s.</p>`,
			html.EscapeString(user.FirstName), link, cfg.ResetTTL)
		if err := cfg.Mailer.Send(ctx, user.Email, user.FirstName+" "+user.LastName, "Restablecer contraseña", body); err != nil {
			log := logging.WithComponent("auth")
			log.Error().Err(err).Str("user_id", user.ID.Hex()).Msg("reset email failed")
			fail(c, http.StatusInternalServerError, "could not send reset email")
			return
		}
		ok(c, http.StatusOK, gin.H{"message": sent})
	}
}

// ---------------- RESET PASSWORD ----------------
func ResetPassword(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Token     string `json:"token" binding:"required"`
			Password  string `json:"nuevaContraseña"`
			PlainPass string `json:"nueva_contrasena"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		password, present := requiredField(c, "nuevaContraseña", input.Password, input.PlainPass)
		if !present {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		user, err := cfg.Users.FindByResetToken(ctx, input.Token)
		if err != nil || user.ResetTokenExpiry == nil || time.Now().After(*user.ResetTokenExpiry) {
			fail(c, http.StatusBadRequest, "invalid or expired reset token")
			return
		}

		hash, err := utils.HashPassword(password)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		user.PasswordHash = hash
		user.ResetToken = ""
		user.ResetTokenExpiry = nil
		if _, err := cfg.Users.Update(ctx, user); err != nil {
			fail(c, http.StatusInternalServerError, "could not reset password")
			return
		}
		ok(c, http.StatusOK, gin.H{"message": "password updated"})
	}
}

// ---------------- UPDATE PROFILE ----------------
// The role is never taken from the request.
func UpdateProfile(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := currentActor(c)
		if !found {
			return
		}

		var input struct {
			FirstName string `form:"nombre" json:"nombre"`
			LastName  string `form:"apellido" json:"apellido"`
			Email     string `form:"correo" json:"correo" binding:"omitempty,email"`
			Phone     string `form:"telefono" json:"telefono"`
			Faculty   string `form:"facultad" json:"facultad"`
			Program   string `form:"programa_academico" json:"programa_academico"`
		}
		if err := c.ShouldBind(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		user, err := cfg.Users.FindByID(ctx, actor.ID)
		if err != nil {
			fail(c, http.StatusNotFound, "user not found")
			return
		}

		setIfPresent(&user.FirstName, input.FirstName)
		setIfPresent(&user.LastName, input.LastName)
		setIfPresent(&user.Email, input.Email)
		setIfPresent(&user.Phone, input.Phone)
		setIfPresent(&user.Faculty, input.Faculty)
		setIfPresent(&user.Program, input.Program)

		previous := user.EndorsementURL
		if user.Role == models.RoleTeacher {
			endorsement, uploaded := uploadDocument(c.Request.Context(), c, cfg, "aval_pdf", utils.FolderEndorsements)
			if !uploaded {
				return
			}
			setIfPresent(&user.EndorsementURL, endorsement)
		}

		updated, err := cfg.Users.Update(ctx, user)
		if err != nil {
			if user.EndorsementURL != previous {
				discardDocument(c.Request.Context(), cfg, user.EndorsementURL)
			}
			if errors.Is(err, repository.ErrDuplicate) {
				fail(c, http.StatusConflict, "email already registered")
				return
			}
			fail(c, http.StatusInternalServerError, "could not update profile")
			return
		}
		if updated.EndorsementURL != previous {
			discardDocument(c.Request.Context(), cfg, previous)
		}
		ok(c, http.StatusOK, gin.H{"user": updated})
	}
}

// ---------------- CHANGE PASSWORD ----------------
func ChangePassword(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := currentActor(c)
		if !found {
			return
		}

		var input struct {
			Current      string `json:"currentPassword"`
			PlainCurrent string `json:"contrasena_actual"`
			New          string `json:"nuevaContraseña"`
			PlainNew     string `json:"nueva_contrasena"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		current, present := requiredField(c, "currentPassword", input.Current, input.PlainCurrent)
		if !present {
			return
		}
		newPassword, present := requiredField(c, "nuevaContraseña", input.New, input.PlainNew)
		if !present {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		user, err := cfg.Users.FindByID(ctx, actor.ID)
		if err != nil {
			fail(c, http.StatusNotFound, "user not found")
			return
		}
		if !utils.CheckPassword(user.PasswordHash, current) {
			fail(c, http.StatusUnauthorized, "current password is incorrect")
			return
		}

		hash, err := utils.HashPassword(newPassword)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		user.PasswordHash = hash
		if _, err := cfg.Users.Update(ctx, user); err != nil {
			fail(c, http.StatusInternalServerError, "could not change password")
			return
		}
		ok(c, http.StatusOK, gin.H{"message": "password updated"})
	}
}

// requiredField returns the first non-empty spelling of a field. The web
// client sends the accented keys, older forms send the ASCII ones.
func requiredField(c *gin.Context, name string, spellings ...string) (string, bool) {
	for _, v := range spellings {
		if v != "" {
			return v, true
		}
	}
	fail(c, http.StatusBadRequest, name+" is required")
	return "", false
}

func setIfPresent(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}
