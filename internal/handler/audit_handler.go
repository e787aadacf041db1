package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/dto"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/service"
	appErrors "github.com/rcolomer-cos/E-QMS-sub001/pkg/errors"
	"github.com/rcolomer-cos/E-QMS-sub001/pkg/response"
)

// AuditHandler handles quality-audit endpoints.
type AuditHandler struct {
	service *service.AuditService
}

// NewAuditHandler constructs an audit handler.
func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List godoc
// @Summary List audits
// @Tags Audits
// @Produce json
// @Param status query string false "Comma-separated statuses"
// @Param type query string false "Audit type"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /audits [get]
func (h *AuditHandler) List(c *gin.Context) {
	var query dto.AuditQuery
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			query.Status = append(query.Status, models.AuditStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	query.AuditType = models.AuditType(strings.ToUpper(strings.TrimSpace(c.Query("type"))))
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		query.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		query.Offset = offset
	}

	audits, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, audits, nil)
}

// Get godoc
// @Summary Get audit by id
// @Tags Audits
// @Produce json
// @Param id path string true "Audit ID"
// @Success 200 {object} response.Envelope
// @Router /audits/{id} [get]
func (h *AuditHandler) Get(c *gin.Context) {
	audit, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, audit, nil)
}

// Create godoc
// @Summary Schedule a new audit
// @Tags Audits
// @Accept json
// @Produce json
// @Param payload body dto.CreateAuditRequest true "Audit payload"
// @Success 201 {object} response.Envelope
// @Router /audits [post]
func (h *AuditHandler) Create(c *gin.Context) {
	var req dto.CreateAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	audit, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, audit)
}

// Update godoc
// @Summary Update audit fields before sign-off
// @Tags Audits
// @Accept json
// @Produce json
// @Param id path string true "Audit ID"
// @Param payload body dto.UpdateAuditRequest true "Audit payload"
// @Success 200 {object} response.Envelope
// @Router /audits/{id} [put]
func (h *AuditHandler) Update(c *gin.Context) {
	var req dto.UpdateAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	audit, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, audit, nil)
}

// Start godoc
// @Summary Start a planned audit
// @Tags Audits
// @Produce json
// @Param id path string true "Audit ID"
// @Success 200 {object} response.Envelope
// @Router /audits/{id}/start [post]
func (h *AuditHandler) Start(c *gin.Context) {
	result, err := h.service.Start(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transitionResponse(result), nil)
}

// Complete godoc
// @Summary Close field work on a running audit
// @Tags Audits
// @Produce json
// @Param id path string true "Audit ID"
// @Success 200 {object} response.Envelope
// @Router /audits/{id}/complete [post]
func (h *AuditHandler) Complete(c *gin.Context) {
	result, err := h.service.Complete(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transitionResponse(result), nil)
}

// SubmitForReview godoc
// @Summary Submit a completed audit for sign-off
// @Tags Audits
// @Produce json
// @Param id path string true "Audit ID"
// @Success 200 {object} response.Envelope
// @Router /audits/{id}/submit-review [post]
func (h *AuditHandler) SubmitForReview(c *gin.Context) {
	result, err := h.service.SubmitForReview(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transitionResponse(result), nil)
}

// Approve godoc
// @Summary Approve an audit pending sign-off
// @Tags Audits
// @Accept json
// @Produce json
// @Param id path string true "Audit ID"
// @Param payload body dto.ReviewAuditRequest false "Optional comments"
// @Success 200 {object} response.Envelope
// @Router /audits/{id}/approve [post]
func (h *AuditHandler) Approve(c *gin.Context) {
	var req dto.ReviewAuditRequest
	_ = c.ShouldBindJSON(&req)
	result, err := h.service.Approve(c.Request.Context(), c.Param("id"), actorFromContext(c), req.Comments)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transitionResponse(result), nil)
}

// Reject godoc
// @Summary Reject an audit pending sign-off
// @Tags Audits
// @Accept json
// @Produce json
// @Param id path string true "Audit ID"
// @Param payload body dto.ReviewAuditRequest true "Rejection comments"
// @Success 200 {object} response.Envelope
// @Router /audits/{id}/reject [post]
func (h *AuditHandler) Reject(c *gin.Context) {
	var req dto.ReviewAuditRequest
	_ = c.ShouldBindJSON(&req)
	result, err := h.service.Reject(c.Request.Context(), c.Param("id"), actorFromContext(c), req.Comments)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transitionResponse(result), nil)
}

// Revisions godoc
// @Summary List the revision ledger of an audit
// @Tags Audits
// @Produce json
// @Param id path string true "Audit ID"
// @Success 200 {object} response.Envelope
// @Router /audits/{id}/revisions [get]
func (h *AuditHandler) Revisions(c *gin.Context) {
	revisions, err := h.service.Revisions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, revisions, nil)
}
