package main

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/relief-ledger-api/internal/handler"
	"github.com/noah-isme/relief-ledger-api/internal/middleware"
	"github.com/noah-isme/relief-ledger-api/internal/models"
)

type routeHandlers struct {
	offers       *handler.OfferHandler
	reservations *handler.ReservationHandler
	admin        *handler.AdminHandler
	exports      *handler.ExportHandler
	needs        *handler.NeedHandler
	rewards      *handler.RewardHandler
	ops          *handler.MetricsHandler
}

type routeGuards struct {
	auth      gin.HandlerFunc
	claimRate gin.HandlerFunc
}

func registerRoutes(r *gin.Engine, prefix string, h routeHandlers, g routeGuards) {
	r.GET("/health", h.ops.Health)
	r.GET("/ready", h.ops.Ready)
	r.GET("/metrics", h.ops.Prometheus)

	api := r.Group(prefix, g.auth)

	reports := api.Group("/reports/:id/needs")
	reports.GET("", h.needs.Progress)
	reports.PUT("/:item/target", middleware.RequireRoles(models.RoleModerator, models.RoleAdmin), h.needs.SetTarget)
	reports.DELETE("/:item/target", middleware.RequireRoles(models.RoleModerator, models.RoleAdmin), h.needs.ClearTarget)

	offers := api.Group("/offers")
	offers.POST("", h.offers.Create)
	offers.GET("", h.offers.List)
	offers.GET("/:id", h.offers.Get)
	claims := []gin.HandlerFunc{h.reservations.Claim}
	if g.claimRate != nil {
		claims = append([]gin.HandlerFunc{g.claimRate}, claims...)
	}
	offers.POST("/:id/claims", claims...)

	api.GET("/reservations", h.reservations.List)
	api.GET("/rewards/me", h.rewards.Me)

	admin := api.Group("/admin", middleware.RequireAdmin())
	admin.POST("/offers/:id/inspect", h.admin.Inspect)
	admin.POST("/offers/:id/reject", h.admin.Reject)
	admin.GET("/offers/:id/audit", h.admin.AuditTrail)
	admin.POST("/reservations/sweep", h.admin.Sweep)
	admin.POST("/reservations/:id/handover", h.admin.Handover)
	admin.POST("/reservations/:id/force-release", h.admin.ForceRelease)
	admin.GET("/exports/reservations", h.exports.PickupManifest)
}
