package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/dto"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/service"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/workflow"
	appErrors "github.com/rcolomer-cos/E-QMS-sub001/pkg/errors"
	"github.com/rcolomer-cos/E-QMS-sub001/pkg/response"
)

// DocumentHandler handles controlled-document endpoints.
type DocumentHandler struct {
	service *service.DocumentService
}

// NewDocumentHandler constructs a document handler.
func NewDocumentHandler(svc *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{service: svc}
}

func transitionResponse(result *workflow.Result) dto.TransitionResponse {
	return dto.TransitionResponse{
		EntityID:     result.EntityID,
		StatusBefore: result.From,
		StatusAfter:  result.To,
		Revision:     result.Revision.RevisionNumber,
	}
}

// List godoc
// @Summary List documents
// @Tags Documents
// @Produce json
// @Param status query string false "Comma-separated statuses"
// @Param type query string false "Document type"
// @Param category query string false "Category"
// @Param heads query bool false "Current versions only"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	var query dto.DocumentQuery
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			query.Status = append(query.Status, models.DocumentStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	query.DocumentType = models.DocumentType(strings.ToUpper(strings.TrimSpace(c.Query("type"))))
	query.Category = strings.TrimSpace(c.Query("category"))
	query.HeadsOnly = c.Query("heads") == "true"
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		query.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		query.Offset = offset
	}

	docs, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// ListPending godoc
// @Summary List documents awaiting review
// @Tags Documents
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /documents/pending [get]
func (h *DocumentHandler) ListPending(c *gin.Context) {
	docs, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Get godoc
// @Summary Get document by id
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Create godoc
// @Summary Register a new controlled document
// @Tags Documents
// @Accept json
// @Produce json
// @Param payload body dto.CreateDocumentRequest true "Document payload"
// @Success 201 {object} response.Envelope
// @Router /documents [post]
func (h *DocumentHandler) Create(c *gin.Context) {
	var req dto.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	doc, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// Update godoc
// @Summary Update draft document metadata
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.UpdateDocumentRequest true "Document payload"
// @Success 200 {object} response.Envelope
// @Router /documents/{id} [put]
func (h *DocumentHandler) Update(c *gin.Context) {
	var req dto.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	doc, err := h.service.UpdateDraft(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// SubmitForReview godoc
// @Summary Submit a draft for review
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/submit-review [post]
func (h *DocumentHandler) SubmitForReview(c *gin.Context) {
	result, err := h.service.SubmitForReview(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transitionResponse(result), nil)
}

// Approve godoc
// @Summary Approve a document under review
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.ApproveRequest false "Optional comments"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/approve [post]
func (h *DocumentHandler) Approve(c *gin.Context) {
	var req dto.ApproveRequest
	_ = c.ShouldBindJSON(&req)
	result, err := h.service.Approve(c.Request.Context(), c.Param("id"), actorFromContext(c), req.Comments)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transitionResponse(result), nil)
}

// Reject godoc
// @Summary Reject a document under review
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/reject [post]
func (h *DocumentHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	_ = c.ShouldBindJSON(&req)
	result, err := h.service.Reject(c.Request.Context(), c.Param("id"), actorFromContext(c), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transitionResponse(result), nil)
}

// RequestChanges godoc
// @Summary Request changes on a document under review
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.RequestChangesRequest true "Requested changes"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/request-changes [post]
func (h *DocumentHandler) RequestChanges(c *gin.Context) {
	var req dto.RequestChangesRequest
	_ = c.ShouldBindJSON(&req)
	result, err := h.service.RequestChanges(c.Request.Context(), c.Param("id"), actorFromContext(c), req.Changes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transitionResponse(result), nil)
}

// Obsolete godoc
// @Summary Retire an approved document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/obsolete [post]
func (h *DocumentHandler) Obsolete(c *gin.Context) {
	result, err := h.service.Obsolete(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transitionResponse(result), nil)
}

// CreateNewVersion godoc
// @Summary Fork an approved document into a new draft version
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 201 {object} response.Envelope
// @Router /documents/{id}/new-version [post]
func (h *DocumentHandler) CreateNewVersion(c *gin.Context) {
	doc, err := h.service.CreateNewVersion(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// Versions godoc
// @Summary List the full version chain of a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/versions [get]
func (h *DocumentHandler) Versions(c *gin.Context) {
	chain, err := h.service.Chain(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, chain, nil)
}

// Revisions godoc
// @Summary List the revision ledger of a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/revisions [get]
func (h *DocumentHandler) Revisions(c *gin.Context) {
	revisions, err := h.service.Revisions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, revisions, nil)
}
