package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/middleware"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/service"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/workflow"
	appErrors "github.com/rcolomer-cos/E-QMS-sub001/pkg/errors"
	"github.com/rcolomer-cos/E-QMS-sub001/pkg/response"
)

type docStoreMock struct {
	docs map[string]*models.Document
}

func (m *docStoreMock) Create(ctx context.Context, doc *models.Document) error {
	doc.ID = "doc-1"
	doc.Status = models.DocumentStatusDraft
	doc.Version = "1.0"
	return nil
}

func (m *docStoreMock) GetByID(ctx context.Context, id string) (*models.Document, error) {
	doc, ok := m.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return doc, nil
}

func (m *docStoreMock) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Document, error) {
	return m.GetByID(ctx, id)
}

func (m *docStoreMock) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	return nil, nil
}

func (m *docStoreMock) UpdateDraftMetadata(ctx context.Context, id, title, category string) error {
	return nil
}

func (m *docStoreMock) Chain(ctx context.Context, id string) ([]models.Document, error) {
	return nil, nil
}

func (m *docStoreMock) HeadOf(ctx context.Context, id string) (*models.Document, error) {
	return nil, sql.ErrNoRows
}

func (m *docStoreMock) ChainHasOpenVersion(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	return false, nil
}

func (m *docStoreMock) InsertVersion(ctx context.Context, tx *sqlx.Tx, doc *models.Document) error {
	return nil
}

func (m *docStoreMock) ClearHead(ctx context.Context, tx *sqlx.Tx, id string) error {
	return nil
}

type engineMock struct {
	result *workflow.Result
	err    error
}

func (m *engineMock) Transition(ctx context.Context, req workflow.Request) (*workflow.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type ledgerMock struct{}

func (ledgerMock) Append(ctx context.Context, tx *sqlx.Tx, rev *models.Revision) error {
	return nil
}

func (ledgerMock) History(ctx context.Context, entityType models.EntityType, entityID string) ([]models.Revision, error) {
	return nil, nil
}

func newTestDocumentHandler(store *docStoreMock, engine *engineMock) *DocumentHandler {
	cache := service.NewCacheService(nil, nil, 0, nil, false)
	svc := service.NewDocumentService(store, engine, ledgerMock{}, nil, cache, nil, nil, nil)
	return NewDocumentHandler(svc)
}

func withClaims(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleReviewer})
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func TestDocumentHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestDocumentHandler(&docStoreMock{docs: map[string]*models.Document{}}, &engineMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/documents/missing", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Error)
	require.Equal(t, "NOT_FOUND", envelope.Error.Code)
}

func TestDocumentHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestDocumentHandler(&docStoreMock{docs: map[string]*models.Document{}}, &engineMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte(`not json`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	withClaims(c)

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandlerApproveConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := &engineMock{err: appErrors.Clone(appErrors.ErrInvalidTransition, "cannot approve a document in status DRAFT")}
	handler := newTestDocumentHandler(&docStoreMock{docs: map[string]*models.Document{}}, engine)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/documents/doc-1/approve", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	withClaims(c)

	handler.Approve(c)
	require.Equal(t, http.StatusConflict, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Error)
	require.Equal(t, "INVALID_TRANSITION", envelope.Error.Code)
}

func TestDocumentHandlerApproveSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := &engineMock{result: &workflow.Result{
		EntityID: "doc-1", From: "REVIEW", To: "APPROVED",
		Revision: models.Revision{RevisionNumber: 4},
	}}
	handler := newTestDocumentHandler(&docStoreMock{docs: map[string]*models.Document{}}, engine)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/documents/doc-1/approve", bytes.NewReader([]byte(`{"comments":"ok"}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	withClaims(c)

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data struct {
			StatusAfter string `json:"statusAfter"`
			Revision    int    `json:"revision"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "APPROVED", envelope.Data.StatusAfter)
	require.Equal(t, 4, envelope.Data.Revision)
}
