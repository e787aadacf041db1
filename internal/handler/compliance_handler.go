package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/service"
	"github.com/rcolomer-cos/E-QMS-sub001/pkg/response"
)

// ComplianceHandler handles acknowledgement and report endpoints.
type ComplianceHandler struct {
	service *service.ComplianceService
}

// NewComplianceHandler constructs a compliance handler.
func NewComplianceHandler(svc *service.ComplianceService) *ComplianceHandler {
	return &ComplianceHandler{service: svc}
}

// Acknowledge godoc
// @Summary Acknowledge the current version of a document
// @Tags Compliance
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/acknowledge [post]
func (h *ComplianceHandler) Acknowledge(c *gin.Context) {
	status, err := h.service.Acknowledge(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Status godoc
// @Summary Compliance status for a user on a document
// @Tags Compliance
// @Produce json
// @Param id path string true "Document ID"
// @Param userId query string false "User ID, defaults to the caller"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/compliance [get]
func (h *ComplianceHandler) Status(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		userID = actorFromContext(c).ID
	}
	status, err := h.service.StatusFor(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Report godoc
// @Summary Roster-wide compliance report for a document
// @Tags Compliance
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/compliance/report [get]
func (h *ComplianceHandler) Report(c *gin.Context) {
	report, err := h.service.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ExportReport godoc
// @Summary Download the compliance report as CSV
// @Tags Compliance
// @Produce text/csv
// @Param id path string true "Document ID"
// @Success 200 {string} string "CSV payload"
// @Router /documents/{id}/compliance/report/export [get]
func (h *ComplianceHandler) ExportReport(c *gin.Context) {
	payload, contentType, err := h.service.ExportReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("compliance-report-%s.csv", c.Param("id"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, payload)
}
