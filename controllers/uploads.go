package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	config "github.com/phillip/campus-events-go/config"
	"github.com/phillip/campus-events-go/logging"
	utils "github.com/phillip/campus-events-go/utils"
)

// uploadDocument stores the PDF sent under field, if the request carries
// one. An empty URL with ok=true means no file was sent. On ok=false the
// error response has already been written.
func uploadDocument(ctx context.Context, c *gin.Context, cfg *config.Config, field, folder string) (string, bool) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", true
		}
		fail(c, http.StatusBadRequest, "invalid form data")
		return "", false
	}

	file, err := header.Open()
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to open file")
		return "", false
	}
	defer file.Close()

	if err := utils.CheckPDF(file, header); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return "", false
	}

	url, err := cfg.Uploader.Upload(ctx, file, header, folder)
	if err != nil {
		if errors.Is(err, utils.ErrUploadsDisabled) {
			fail(c, http.StatusServiceUnavailable, err.Error())
			return "", false
		}
		log := logging.WithComponent("uploads")
		log.Error().Err(err).Str("file", header.Filename).Msg("document upload failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   "document upload failed",
			"file":    header.Filename,
		})
		return "", false
	}
	return url, true
}

// discardDocument removes an uploaded file that is no longer referenced.
// Failures are logged only.
func discardDocument(ctx context.Context, cfg *config.Config, url string) {
	if url == "" {
		return
	}
	if err := cfg.Uploader.Delete(ctx, url); err != nil {
		log := logging.WithComponent("uploads")
		log.Warn().Err(err).Str("url", url).Msg("could not delete document")
	}
}
