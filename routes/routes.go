package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	config "github.com/phillip/campus-events-go/config"
	controllers "github.com/phillip/campus-events-go/controllers"
	"github.com/phillip/campus-events-go/metrics"
	middleware "github.com/phillip/campus-events-go/middleware"
	"github.com/phillip/campus-events-go/models"
)

// NewRouter builds the engine with the global middleware and all routes.
func NewRouter(cfg *config.Config, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(metrics.Middleware())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	SetupRoutes(r, cfg)
	return r
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "If-None-Match", middleware.HeaderRequestID},
		ExposeHeaders: []string{"ETag", middleware.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cc.AllowAllOrigins = true
			return cc
		}
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
		return cc
	}
	cc.AllowOrigins = origins
	cc.AllowCredentials = true
	return cc
}

func SetupRoutes(r *gin.Engine, cfg *config.Config) {
	r.GET("/healthz", health(cfg))
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")

	// public
	api.POST("/auth/register", controllers.Register(cfg))
	api.POST("/auth/login", controllers.Login(cfg))
	api.POST("/auth/refresh", controllers.RefreshToken(cfg))
	api.POST("/auth/forgot-password", controllers.ForgotPassword(cfg))
	api.POST("/auth/reset-password", controllers.ResetPassword(cfg))

	// protected
	auth := middleware.AuthMiddleware(cfg)

	account := api.Group("/auth")
	account.Use(auth)
	{
		account.GET("/me", controllers.Me(cfg))
		account.PUT("/profile", controllers.UpdateProfile(cfg))
		account.PUT("/profile/password", controllers.ChangePassword(cfg))
	}

	events := api.Group("/events")
	events.Use(auth)
	{
		events.POST("", controllers.CreateEvent(cfg))
		events.GET("", controllers.ListEvents(cfg))
		events.GET("/pending", middleware.RequireRole(models.RoleSecretary, models.RoleAdmin), controllers.ListPendingEvents(cfg))
		events.GET("/:id", controllers.GetEvent(cfg))
		events.PUT("/:id", controllers.UpdateEvent(cfg))
		events.DELETE("/:id", controllers.DeleteEvent(cfg))
		events.POST("/:id/submit-validation", controllers.SubmitEvent(cfg))
		events.POST("/:id/approve", controllers.ApproveEvent(cfg))
		events.POST("/:id/reject", controllers.RejectEvent(cfg))
	}

	orgs := api.Group("/organizations")
	orgs.Use(auth)
	{
		orgs.POST("", controllers.CreateOrganization(cfg))
		orgs.GET("", controllers.ListOrganizations(cfg))
		orgs.GET("/search", controllers.SearchOrganizations(cfg))
		orgs.GET("/:id", controllers.GetOrganization(cfg))
		orgs.PUT("/:id", controllers.UpdateOrganization(cfg))
		orgs.DELETE("/:id", controllers.DeleteOrganization(cfg))
	}
}

func health(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{"status": "ok", "store": cfg.Store}
		if cfg.MongoClient != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.MongoClient.Ping(ctx, nil); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, status)
	}
}
