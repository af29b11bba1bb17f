package controllers

import (
	"errors"
	"fmt"
	"net/http"
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

type organizationInput struct {
	Name                string `form:"nombre" json:"nombre"`
	NIT                 string `form:"nit" json:"nit"`
	LegalRepresentative string `form:"representante_legal" json:"representante_legal"`
	ContactPerson       string `form:"persona_responsable" json:"persona_responsable"`
	Email               string `form:"correo" json:"correo" binding:"omitempty,email"`
	Phone               string `form:"telefono" json:"telefono"`
	Location            string `form:"ubicacion" json:"ubicacion"`
	MainActivity        string `form:"actividad_principal" json:"actividad_principal"`
	Type                string `form:"tipo_organizacion" json:"tipo_organizacion"`
}

func parseOrganizationType(s string) (models.OrganizationType, error) {
	t := models.OrganizationType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("unknown organization type %q", s)
	}
	return t, nil
}

func (in organizationInput) apply(org *models.Organization) error {
	setIfPresent(&org.Name, in.Name)
	setIfPresent(&org.NIT, in.NIT)
	setIfPresent(&org.LegalRepresentative, in.LegalRepresentative)
	setIfPresent(&org.ContactPerson, in.ContactPerson)
	setIfPresent(&org.Email, in.Email)
	setIfPresent(&org.Phone, in.Phone)
	setIfPresent(&org.Location, in.Location)
	setIfPresent(&org.MainActivity, in.MainActivity)
	if in.Type != "" {
		t, err := parseOrganizationType(in.Type)
		if err != nil {
			return err
		}
		org.Type = t
	}
	return nil
}

func (in organizationInput) missing() []string {
	required := []struct{ name, value string }{
		{"nombre", in.Name},
		{"nit", in.NIT},
		{"representante_legal", in.LegalRepresentative},
		{"correo", in.Email},
		{"telefono", in.Phone},
		{"tipo_organizacion", in.Type},
	}
	var fields []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			fields = append(fields, f.name)
		}
	}
	return fields
}

// canManage: only the creator or a secretary may change or delete an
// organization. ADMIN is not a secretary here.
func canManage(org models.Organization, actor lifecycle.Actor) bool {
	return org.CreatorID == actor.ID || actor.Role == models.RoleSecretary
}

// ---------------- CREATE ----------------
func CreateOrganization(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := currentActor(c)
		if !found {
			return
		}

		var input organizationInput
		if err := c.ShouldBind(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		if missing := input.missing(); len(missing) > 0 {
			fail(c, http.StatusBadRequest, "missing fields: "+strings.Join(missing, ", "))
			return
		}

		now := time.Now().UTC()
		org := models.Organization{
			ID:        primitive.NewObjectID(),
			CreatorID: actor.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := input.apply(&org); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		certificate, uploaded := uploadDocument(c.Request.Context(), c, cfg, "certificado_pdf", utils.FolderCertificates)
		if !uploaded {
			return
		}
		org.CertificateURL = certificate

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		created, err := cfg.Organizations.Create(ctx, org)
		if err != nil {
			discardDocument(c.Request.Context(), cfg, certificate)
			fail(c, http.StatusInternalServerError, "could not create organization")
			return
		}
		ok(c, http.StatusCreated, created)
	}
}

// ---------------- LIST ----------------
func ListOrganizations(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := pageFromQuery(c)

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		orgs, total, err := cfg.Organizations.List(ctx, page)
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not fetch organizations")
			return
		}
		ok(c, http.StatusOK, paged(orgs, total, page))
	}
}

// ---------------- SEARCH ----------------
func SearchOrganizations(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := repository.OrganizationFilter{
			Name: strings.TrimSpace(c.Query("nombre")),
			NIT:  strings.TrimSpace(c.Query("nit")),
		}
		if q := strings.TrimSpace(c.Query("q")); q != "" && filter.Name == "" {
			filter.Name = q
		}
		if raw := c.Query("tipo"); raw != "" {
			t, err := parseOrganizationType(raw)
			if err != nil {
				fail(c, http.StatusBadRequest, err.Error())
				return
			}
			filter.Type = t
		}
		page := pageFromQuery(c)

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		orgs, total, err := cfg.Organizations.Search(ctx, filter, page)
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not search organizations")
			return
		}
		ok(c, http.StatusOK, paged(orgs, total, page))
	}
}

// ---------------- GET ----------------
func GetOrganization(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, valid := paramID(c, "organization")
		if !valid {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		org, err := cfg.Organizations.FindByID(ctx, orgID)
		if err != nil {
			organizationError(c, err, "could not fetch organization")
			return
		}

		if notModified(c, utils.GenerateETag(org.ID, org.UpdatedAt)) {
			return
		}
		ok(c, http.StatusOK, org)
	}
}

// ---------------- UPDATE ----------------
func UpdateOrganization(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := currentActor(c)
		if !found {
			return
		}
		orgID, valid := paramID(c, "organization")
		if !valid {
			return
		}

		var input organizationInput
		if err := c.ShouldBind(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		existing, err := cfg.Organizations.FindByID(ctx, orgID)
		if err != nil {
			organizationError(c, err, "could not fetch organization")
			return
		}
		if !canManage(existing, actor) {
			fail(c, http.StatusForbidden, "access denied")
			return
		}

		org := existing
		if err := input.apply(&org); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		certificate, uploaded := uploadDocument(c.Request.Context(), c, cfg, "certificado_pdf", utils.FolderCertificates)
		if !uploaded {
			return
		}
		if certificate != "" {
			org.CertificateURL = certificate
		}

		updated, err := cfg.Organizations.Update(ctx, org)
		if err != nil {
			discardDocument(c.Request.Context(), cfg, certificate)
			organizationError(c, err, "could not update organization")
			return
		}
		if certificate != "" {
			discardDocument(c.Request.Context(), cfg, existing.CertificateURL)
		}
		ok(c, http.StatusOK, updated)
	}
}

// ---------------- DELETE ----------------
// An organization referenced by an event under review or approved cannot
// be removed.
func DeleteOrganization(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := currentActor(c)
		if !found {
			return
		}
		orgID, valid := paramID(c, "organization")
		if !valid {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()

		existing, err := cfg.Organizations.FindByID(ctx, orgID)
		if err != nil {
			organizationError(c, err, "could not fetch organization")
			return
		}
		if !canManage(existing, actor) {
			fail(c, http.StatusForbidden, "access denied")
			return
		}

		// The count and the delete are not atomic across collections. An
		// event submitted in between keeps a dangling organization id.
		inUse, err := cfg.Events.CountByOrganization(ctx, orgID, models.StateSubmitted, models.StateApproved)
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not check organization usage")
			return
		}
		if inUse > 0 {
			fail(c, http.StatusConflict, fmt.Sprintf("organization is referenced by %d submitted or approved events", inUse))
			return
		}

		if err := cfg.Organizations.Delete(ctx, orgID); err != nil {
			organizationError(c, err, "failed to delete organization")
			return
		}
		discardDocument(c.Request.Context(), cfg, existing.CertificateURL)

		ok(c, http.StatusOK, gin.H{
			"message": "organization deleted successfully",
			"id":      orgID.Hex(),
		})
	}
}

func organizationError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, repository.ErrNotFound) {
		fail(c, http.StatusNotFound, "organization not found")
		return
	}
	fail(c, http.StatusInternalServerError, fallback)
}
