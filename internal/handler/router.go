package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/middleware"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/repository"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/service"
)

// Handlers bundles every route handler for registration.
type Handlers struct {
	Documents  *DocumentHandler
	Audits     *AuditHandler
	Compliance *ComplianceHandler
	Users      *UserHandler
	Metrics    *MetricsHandler
}

// RegisterRoutes mounts the API under the configured prefix. All business
// routes require a valid token; write routes carry role gates matching the
// workflow policies so unauthorized calls fail before reaching the engine.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, authSvc *service.AuthService, trail *repository.AuditLogRepository) {
	reviewers := middleware.RequireRoles(models.RoleAdmin, models.RoleManager, models.RoleReviewer)
	managers := middleware.RequireRoles(models.RoleAdmin, models.RoleManager)

	api := r.Group(prefix)
	api.Use(middleware.JWT(authSvc))

	docs := api.Group("/documents")
	{
		docs.GET("", h.Documents.List)
		docs.POST("", h.Documents.Create)
		docs.GET("/pending", reviewers, h.Documents.ListPending)
		docs.GET("/:id", h.Documents.Get)
		docs.PUT("/:id", h.Documents.Update)

		docs.POST("/:id/submit-review", h.Documents.SubmitForReview)
		docs.POST("/:id/approve", reviewers, h.Documents.Approve)
		docs.POST("/:id/reject", reviewers, h.Documents.Reject)
		docs.POST("/:id/request-changes", reviewers, h.Documents.RequestChanges)
		docs.POST("/:id/obsolete", managers, h.Documents.Obsolete)
		docs.POST("/:id/new-version", managers, h.Documents.CreateNewVersion)

		docs.GET("/:id/versions", h.Documents.Versions)
		docs.GET("/:id/revisions", h.Documents.Revisions)

		docs.POST("/:id/acknowledge", h.Compliance.Acknowledge)
		docs.GET("/:id/compliance", h.Compliance.Status)
		docs.GET("/:id/compliance/report", reviewers, h.Compliance.Report)
		docs.GET("/:id/compliance/report/export", reviewers,
			middleware.Audit(trail, "COMPLIANCE_REPORT_EXPORT", string(models.EntityTypeDocument)),
			h.Compliance.ExportReport)
	}

	audits := api.Group("/audits")
	{
		audits.GET("", h.Audits.List)
		audits.POST("", managers, h.Audits.Create)
		audits.GET("/:id", h.Audits.Get)
		audits.PUT("/:id", h.Audits.Update)

		audits.POST("/:id/start", h.Audits.Start)
		audits.POST("/:id/complete", h.Audits.Complete)
		audits.POST("/:id/submit-review", h.Audits.SubmitForReview)
		audits.POST("/:id/approve", managers, h.Audits.Approve)
		audits.POST("/:id/reject", managers, h.Audits.Reject)

		audits.GET("/:id/revisions", h.Audits.Revisions)
	}

	users := api.Group("/users")
	{
		users.GET("", managers, h.Users.List)
		users.GET("/:id", middleware.RBAC("ADMIN", "MANAGER", "SELF"), h.Users.Get)
	}
}
