package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/campus-events-go/config"
	"github.com/phillip/campus-events-go/lifecycle"
	"github.com/phillip/campus-events-go/logging"
	"github.com/phillip/campus-events-go/middleware"
	"github.com/phillip/campus-events-go/repository"
)

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

// failLifecycle maps lifecycle and repository errors to a response. Anything
// it does not recognise is logged and reported as a 500 with fallback.
func failLifecycle(c *gin.Context, err error, fallback string) {
	var lerr *lifecycle.Error
	switch {
	case errors.Is(err, lifecycle.ErrStaleState), errors.Is(err, repository.ErrStaleState):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error(), "retry": true})
	case errors.Is(err, lifecycle.ErrMissingJustification), errors.Is(err, lifecycle.ErrMissingRequiredDocument):
		fail(c, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &lerr), errors.Is(err, lifecycle.ErrInvalidTransition):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		fail(c, http.StatusNotFound, "event not found")
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, "request timed out")
	default:
		log := logging.WithComponent("controllers")
		log.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		fail(c, http.StatusInternalServerError, fallback)
	}
}

func requestContext(c *gin.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

func currentActor(c *gin.Context) (lifecycle.Actor, bool) {
	actor, found := middleware.Actor(c)
	if !found {
		fail(c, http.StatusUnauthorized, "invalid user id")
	}
	return actor, found
}

func paramID(c *gin.Context, what string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid "+what+" id")
		return primitive.NilObjectID, false
	}
	return id, true
}

func pageFromQuery(c *gin.Context) repository.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	return repository.Page{Page: page, Limit: limit}.Normalize()
}

func paged[T any](items []T, total int64, page repository.Page) gin.H {
	if items == nil {
		items = []T{}
	}
	pages := (total + int64(page.Limit) - 1) / int64(page.Limit)
	return gin.H{
		"items": items,
		"page":  page.Page,
		"limit": page.Limit,
		"total": total,
		"pages": pages,
	}
}

// notModified writes the ETag header and reports whether the client copy
// is still current.
func notModified(c *gin.Context, etag string) bool {
	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	c.Header("ETag", etag)
	return false
}
