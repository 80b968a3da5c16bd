package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltdesk/voltdesk-api/internal/middleware"
	"github.com/voltdesk/voltdesk-api/internal/models"
	"github.com/voltdesk/voltdesk-api/internal/service"
	appErrors "github.com/voltdesk/voltdesk-api/pkg/errors"
)

type fakeLifecycle struct {
	cert       *models.Certificate
	certs      []models.Certificate
	pagination *models.Pagination
	outcome    *service.OutcomeResult
	readiness  *service.ReadinessResult
	err        error

	lastCompanyID string
	lastActorID   string
	lastID        string
	lastRole      models.UserRole
	lastNotes     string
	lastFilter    models.CertificateFilter
	lastCreate    service.CreateCertificateRequest
	lastVoid      service.VoidCertificateRequest
	lastReject    service.RejectReviewRequest
}

func (f *fakeLifecycle) Create(_ context.Context, companyID, actorID string, req service.CreateCertificateRequest) (*models.Certificate, error) {
	f.lastCompanyID, f.lastActorID, f.lastCreate = companyID, actorID, req
	return f.cert, f.err
}

func (f *fakeLifecycle) Get(_ context.Context, companyID, id string) (*models.Certificate, error) {
	f.lastCompanyID, f.lastID = companyID, id
	return f.cert, f.err
}

func (f *fakeLifecycle) List(_ context.Context, companyID string, filter models.CertificateFilter) ([]models.Certificate, *models.Pagination, error) {
	f.lastCompanyID, f.lastFilter = companyID, filter
	return f.certs, f.pagination, f.err
}

func (f *fakeLifecycle) UpdateData(_ context.Context, companyID, id string, _ service.UpdateCertificateDataRequest) (*models.Certificate, error) {
	f.lastCompanyID, f.lastID = companyID, id
	return f.cert, f.err
}

func (f *fakeLifecycle) SubmitForReview(_ context.Context, companyID, id, actorID string) (*models.Certificate, error) {
	f.lastCompanyID, f.lastID, f.lastActorID = companyID, id, actorID
	return f.cert, f.err
}

func (f *fakeLifecycle) ApproveReview(_ context.Context, companyID, id, reviewer string, role models.UserRole, notes string) (*models.Certificate, error) {
	f.lastCompanyID, f.lastID, f.lastActorID, f.lastRole, f.lastNotes = companyID, id, reviewer, role, notes
	return f.cert, f.err
}

func (f *fakeLifecycle) RejectReview(_ context.Context, companyID, id, reviewer string, role models.UserRole, req service.RejectReviewRequest) (*models.Certificate, error) {
	f.lastCompanyID, f.lastID, f.lastActorID, f.lastRole, f.lastReject = companyID, id, reviewer, role, req
	return f.cert, f.err
}

func (f *fakeLifecycle) Complete(_ context.Context, companyID, id, actorID string) (*models.Certificate, error) {
	f.lastCompanyID, f.lastID, f.lastActorID = companyID, id, actorID
	return f.cert, f.err
}

func (f *fakeLifecycle) Issue(_ context.Context, companyID, id, actorID string) (*models.Certificate, error) {
	f.lastCompanyID, f.lastID, f.lastActorID = companyID, id, actorID
	return f.cert, f.err
}

func (f *fakeLifecycle) Void(_ context.Context, companyID, id, actorID string, role models.UserRole, req service.VoidCertificateRequest) (*models.Certificate, error) {
	f.lastCompanyID, f.lastID, f.lastActorID, f.lastRole, f.lastVoid = companyID, id, actorID, role, req
	return f.cert, f.err
}

func (f *fakeLifecycle) PreviewOutcome(_ context.Context, companyID, id string) (*service.OutcomeResult, error) {
	f.lastCompanyID, f.lastID = companyID, id
	return f.outcome, f.err
}

func (f *fakeLifecycle) Readiness(_ context.Context, companyID, id string) (*service.ReadinessResult, error) {
	f.lastCompanyID, f.lastID = companyID, id
	return f.readiness, f.err
}

type fakeDerivatives struct {
	cert       *models.Certificate
	err        error
	lastID     string
	lastReason string
}

func (f *fakeDerivatives) CreateAmendment(_ context.Context, _, certificateID, _ string) (*models.Certificate, error) {
	f.lastID = certificateID
	return f.cert, f.err
}

func (f *fakeDerivatives) ReissueAsNew(_ context.Context, _, certificateID, _ string, req service.ReissueRequest) (*models.Certificate, error) {
	f.lastID, f.lastReason = certificateID, req.Reason
	return f.cert, f.err
}

type fakeAuditTrail struct {
	logs         []models.AuditLog
	err          error
	lastResource string
	lastID       string
	lastLimit    int
}

func (f *fakeAuditTrail) ListByResource(_ context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error) {
	f.lastResource, f.lastID, f.lastLimit = resource, resourceID, limit
	return f.logs, f.err
}

type certEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      map[string]interface{} `json:"error"`
	Pagination map[string]interface{} `json:"pagination"`
}

func newCertContext(t *testing.T, method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
		c.Request = httptest.NewRequest(method, target, reader)
		c.Request.Header.Set("Content-Type", "application/json")
	} else {
		c.Request = httptest.NewRequest(method, target, nil)
	}
	return c, rec
}

func engineerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", CompanyID: "company-1", Role: models.RoleEngineer}
}

func TestCertificateHandlerCreate(t *testing.T) {
	lifecycle := &fakeLifecycle{cert: &models.Certificate{ID: "cert-1", Type: models.CertTypeEICR, Status: models.CertStatusDraft}}
	handler := NewCertificateHandler(lifecycle, &fakeDerivatives{}, &fakeAuditTrail{})

	c, rec := newCertContext(t, http.MethodPost, "/certificates", `{"type":"EICR","job_id":"job-9"}`)
	c.Set(middleware.ContextUserKey, engineerClaims())

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "company-1", lifecycle.lastCompanyID)
	assert.Equal(t, "user-1", lifecycle.lastActorID)
	assert.Equal(t, models.CertTypeEICR, lifecycle.lastCreate.Type)
	assert.Equal(t, "job-9", lifecycle.lastCreate.JobID)

	var envelope certEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Contains(t, string(envelope.Data), "cert-1")
}

func TestCertificateHandlerCreateRejectsBadPayload(t *testing.T) {
	lifecycle := &fakeLifecycle{}
	handler := NewCertificateHandler(lifecycle, &fakeDerivatives{}, &fakeAuditTrail{})

	c, rec := newCertContext(t, http.MethodPost, "/certificates", `{"type":`)
	c.Set(middleware.ContextUserKey, engineerClaims())

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope certEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "VALIDATION_ERROR", envelope.Error["code"])
}

func TestCertificateHandlerRequiresClaims(t *testing.T) {
	handler := NewCertificateHandler(&fakeLifecycle{}, &fakeDerivatives{}, &fakeAuditTrail{})

	c, rec := newCertContext(t, http.MethodGet, "/certificates/cert-1", "")

	handler.Get(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCertificateHandlerGetMapsNotFound(t *testing.T) {
	lifecycle := &fakeLifecycle{err: appErrors.ErrNotFound}
	handler := NewCertificateHandler(lifecycle, &fakeDerivatives{}, &fakeAuditTrail{})

	c, rec := newCertContext(t, http.MethodGet, "/certificates/cert-404", "")
	c.Params = gin.Params{{Key: "id", Value: "cert-404"}}
	c.Set(middleware.ContextUserKey, engineerClaims())

	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "cert-404", lifecycle.lastID)
}

func TestCertificateHandlerListParsesFilter(t *testing.T) {
	lifecycle := &fakeLifecycle{
		certs:      []models.Certificate{{ID: "cert-1"}},
		pagination: &models.Pagination{Page: 2, PageSize: 10, TotalCount: 31},
	}
	handler := NewCertificateHandler(lifecycle, &fakeDerivatives{}, &fakeAuditTrail{})

	target := "/certificates?status=draft,%20issued&type=eicr&job_id=job-7&client_id=client-3&page=2&page_size=10"
	c, rec := newCertContext(t, http.MethodGet, target, "")
	c.Set(middleware.ContextUserKey, engineerClaims())

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.CertificateStatus{models.CertStatusDraft, models.CertStatusIssued}, lifecycle.lastFilter.Status)
	assert.Equal(t, models.CertTypeEICR, lifecycle.lastFilter.Type)
	assert.Equal(t, "job-7", lifecycle.lastFilter.JobID)
	assert.Equal(t, "client-3", lifecycle.lastFilter.ClientID)
	assert.Equal(t, 2, lifecycle.lastFilter.Page)
	assert.Equal(t, 10, lifecycle.lastFilter.PageSize)

	var envelope certEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.EqualValues(t, 31, envelope.Pagination["total_count"])
}

func TestCertificateHandlerTransitionErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not ready", appErrors.ErrNotReady, http.StatusUnprocessableEntity, "CERTIFICATE_NOT_READY"},
		{"wrong status", appErrors.ErrWrongStatus, http.StatusConflict, "CERTIFICATE_WRONG_STATUS"},
		{"review blocked", appErrors.ErrReviewBlocked, http.StatusConflict, "CERTIFICATE_REVIEW_BLOCKED"},
		{"concurrent change", appErrors.ErrStatusConflict, http.StatusConflict, "CERTIFICATE_STATUS_CONFLICT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lifecycle := &fakeLifecycle{err: tc.err}
			handler := NewCertificateHandler(lifecycle, &fakeDerivatives{}, &fakeAuditTrail{})

			c, rec := newCertContext(t, http.MethodPost, "/certificates/cert-1/complete", "")
			c.Params = gin.Params{{Key: "id", Value: "cert-1"}}
			c.Set(middleware.ContextUserKey, engineerClaims())

			handler.Complete(c)

			assert.Equal(t, tc.wantStatus, rec.Code)
			var envelope certEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
			assert.Equal(t, tc.wantCode, envelope.Error["code"])
		})
	}
}

func TestCertificateHandlerApproveReviewPassesRoleAndNotes(t *testing.T) {
	lifecycle := &fakeLifecycle{cert: &models.Certificate{ID: "cert-1", Status: models.CertStatusDraft}}
	handler := NewCertificateHandler(lifecycle, &fakeDerivatives{}, &fakeAuditTrail{})

	c, rec := newCertContext(t, http.MethodPost, "/certificates/cert-1/approve-review", `{"notes":"checked circuit schedule"}`)
	c.Params = gin.Params{{Key: "id", Value: "cert-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "qs-1", CompanyID: "company-1", Role: models.RoleQualifiedSupervisor})

	handler.ApproveReview(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RoleQualifiedSupervisor, lifecycle.lastRole)
	assert.Equal(t, "qs-1", lifecycle.lastActorID)
	assert.Equal(t, "checked circuit schedule", lifecycle.lastNotes)
}

func TestCertificateHandlerApproveReviewAllowsEmptyBody(t *testing.T) {
	lifecycle := &fakeLifecycle{cert: &models.Certificate{ID: "cert-1"}}
	handler := NewCertificateHandler(lifecycle, &fakeDerivatives{}, &fakeAuditTrail{})

	c, rec := newCertContext(t, http.MethodPost, "/certificates/cert-1/approve-review", "")
	c.Params = gin.Params{{Key: "id", Value: "cert-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "qs-1", CompanyID: "company-1", Role: models.RoleQualifiedSupervisor})

	handler.ApproveReview(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, lifecycle.lastNotes)
}

func TestCertificateHandlerRejectReviewRequiresNotes(t *testing.T) {
	lifecycle := &fakeLifecycle{}
	handler := NewCertificateHandler(lifecycle, &fakeDerivatives{}, &fakeAuditTrail{})

	c, rec := newCertContext(t, http.MethodPost, "/certificates/cert-1/reject-review", `{`)
	c.Params = gin.Params{{Key: "id", Value: "cert-1"}}
	c.Set(middleware.ContextUserKey, engineerClaims())

	handler.RejectReview(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCertificateHandlerVoidForwardsForce(t *testing.T) {
	lifecycle := &fakeLifecycle{cert: &models.Certificate{ID: "cert-1", Status: models.CertStatusVoid}}
	handler := NewCertificateHandler(lifecycle, &fakeDerivatives{}, &fakeAuditTrail{})

	c, rec := newCertContext(t, http.MethodPost, "/certificates/cert-1/void", `{"reason":"issued against wrong job","force":true}`)
	c.Params = gin.Params{{Key: "id", Value: "cert-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", CompanyID: "company-1", Role: models.RoleAdmin})

	handler.Void(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, lifecycle.lastVoid.Force)
	assert.Equal(t, "issued against wrong job", lifecycle.lastVoid.Reason)
	assert.Equal(t, models.RoleAdmin, lifecycle.lastRole)
}

func TestCertificateHandlerPreviewOutcome(t *testing.T) {
	lifecycle := &fakeLifecycle{outcome: &service.OutcomeResult{Outcome: models.OutcomeSatisfactory}}
	handler := NewCertificateHandler(lifecycle, &fakeDerivatives{}, &fakeAuditTrail{})

	c, rec := newCertContext(t, http.MethodGet, "/certificates/cert-1/outcome-preview", "")
	c.Params = gin.Params{{Key: "id", Value: "cert-1"}}
	c.Set(middleware.ContextUserKey, engineerClaims())

	handler.PreviewOutcome(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope certEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Contains(t, string(envelope.Data), string(models.OutcomeSatisfactory))
}

func TestCertificateHandlerAmend(t *testing.T) {
	derivatives := &fakeDerivatives{cert: &models.Certificate{ID: "clone-1", Status: models.CertStatusDraft}}
	handler := NewCertificateHandler(&fakeLifecycle{}, derivatives, &fakeAuditTrail{})

	c, rec := newCertContext(t, http.MethodPost, "/certificates/cert-1/amend", "")
	c.Params = gin.Params{{Key: "id", Value: "cert-1"}}
	c.Set(middleware.ContextUserKey, engineerClaims())

	handler.Amend(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "cert-1", derivatives.lastID)
}

func TestCertificateHandlerReissueRequiresReason(t *testing.T) {
	handler := NewCertificateHandler(&fakeLifecycle{}, &fakeDerivatives{}, &fakeAuditTrail{})

	c, rec := newCertContext(t, http.MethodPost, "/certificates/cert-1/reissue", `not-json`)
	c.Params = gin.Params{{Key: "id", Value: "cert-1"}}
	c.Set(middleware.ContextUserKey, engineerClaims())

	handler.Reissue(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCertificateHandlerHistoryChecksOwnership(t *testing.T) {
	t.Run("forwards trail for owned certificate", func(t *testing.T) {
		lifecycle := &fakeLifecycle{cert: &models.Certificate{ID: "cert-1"}}
		trail := &fakeAuditTrail{logs: []models.AuditLog{{ID: "log-1", Action: models.AuditActionCertIssue}}}
		handler := NewCertificateHandler(lifecycle, &fakeDerivatives{}, trail)

		c, rec := newCertContext(t, http.MethodGet, "/certificates/cert-1/history?limit=5", "")
		c.Params = gin.Params{{Key: "id", Value: "cert-1"}}
		c.Set(middleware.ContextUserKey, engineerClaims())

		handler.History(c)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "certificate", trail.lastResource)
		assert.Equal(t, "cert-1", trail.lastID)
		assert.Equal(t, 5, trail.lastLimit)
	})

	t.Run("hides trail when lookup fails", func(t *testing.T) {
		lifecycle := &fakeLifecycle{err: appErrors.ErrNotFound}
		trail := &fakeAuditTrail{}
		handler := NewCertificateHandler(lifecycle, &fakeDerivatives{}, trail)

		c, rec := newCertContext(t, http.MethodGet, "/certificates/cert-9/history", "")
		c.Params = gin.Params{{Key: "id", Value: "cert-9"}}
		c.Set(middleware.ContextUserKey, engineerClaims())

		handler.History(c)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, trail.lastResource)
	})
}
