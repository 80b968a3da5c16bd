package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voltdesk/voltdesk-api/internal/models"
	"github.com/voltdesk/voltdesk-api/internal/service"
	appErrors "github.com/voltdesk/voltdesk-api/pkg/errors"
	"github.com/voltdesk/voltdesk-api/pkg/response"
)

type certificateLifecycle interface {
	Create(ctx context.Context, companyID, actorID string, req service.CreateCertificateRequest) (*models.Certificate, error)
	Get(ctx context.Context, companyID, id string) (*models.Certificate, error)
	List(ctx context.Context, companyID string, filter models.CertificateFilter) ([]models.Certificate, *models.Pagination, error)
	UpdateData(ctx context.Context, companyID, id string, req service.UpdateCertificateDataRequest) (*models.Certificate, error)
	SubmitForReview(ctx context.Context, companyID, id, actorID string) (*models.Certificate, error)
	ApproveReview(ctx context.Context, companyID, id, reviewer string, role models.UserRole, notes string) (*models.Certificate, error)
	RejectReview(ctx context.Context, companyID, id, reviewer string, role models.UserRole, req service.RejectReviewRequest) (*models.Certificate, error)
	Complete(ctx context.Context, companyID, id, actorID string) (*models.Certificate, error)
	Issue(ctx context.Context, companyID, id, actorID string) (*models.Certificate, error)
	Void(ctx context.Context, companyID, id, actorID string, role models.UserRole, req service.VoidCertificateRequest) (*models.Certificate, error)
	PreviewOutcome(ctx context.Context, companyID, id string) (*service.OutcomeResult, error)
	Readiness(ctx context.Context, companyID, id string) (*service.ReadinessResult, error)
}

type certificateAuditTrail interface {
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

type certificateDerivatives interface {
	CreateAmendment(ctx context.Context, companyID, certificateID, actorID string) (*models.Certificate, error)
	ReissueAsNew(ctx context.Context, companyID, certificateID, actorID string, req service.ReissueRequest) (*models.Certificate, error)
}

// CertificateHandler exposes REST endpoints for the certificate lifecycle.
type CertificateHandler struct {
	lifecycle   certificateLifecycle
	derivatives certificateDerivatives
	auditTrail  certificateAuditTrail
}

// NewCertificateHandler constructs the handler.
func NewCertificateHandler(lifecycle certificateLifecycle, derivatives certificateDerivatives, auditTrail certificateAuditTrail) *CertificateHandler {
	return &CertificateHandler{lifecycle: lifecycle, derivatives: derivatives, auditTrail: auditTrail}
}

// Create godoc
// @Summary Create a draft certificate
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body service.CreateCertificateRequest true "Certificate payload"
// @Success 201 {object} response.Envelope
// @Router /certificates [post]
func (h *CertificateHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid certificate payload"))
		return
	}
	cert, err := h.lifecycle.Create(c.Request.Context(), claims.CompanyID, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cert)
}

// List godoc
// @Summary List certificates
// @Tags Certificates
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param type query string false "Certificate type"
// @Param job_id query string false "Job ID"
// @Param client_id query string false "Client ID"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /certificates [get]
func (h *CertificateHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := certificateFilterFromQuery(c)
	certs, pagination, err := h.lifecycle.List(c.Request.Context(), claims.CompanyID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, certs, pagination)
}

// Get godoc
// @Summary Get certificate detail
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id} [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	cert, err := h.lifecycle.Get(c.Request.Context(), claims.CompanyID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// UpdateData godoc
// @Summary Replace the certificate document fields
// @Tags Certificates
// @Accept json
// @Produce json
// @Param id path string true "Certificate ID"
// @Param payload body service.UpdateCertificateDataRequest true "Document fields"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/data [put]
func (h *CertificateHandler) UpdateData(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateCertificateDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid data payload"))
		return
	}
	cert, err := h.lifecycle.UpdateData(c.Request.Context(), claims.CompanyID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// SubmitForReview godoc
// @Summary Submit a draft certificate for review
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/submit-review [post]
func (h *CertificateHandler) SubmitForReview(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	cert, err := h.lifecycle.SubmitForReview(c.Request.Context(), claims.CompanyID, c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

type reviewDecisionRequest struct {
	Notes string `json:"notes"`
}

// ApproveReview godoc
// @Summary Approve a certificate under review
// @Tags Certificates
// @Accept json
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/approve-review [post]
func (h *CertificateHandler) ApproveReview(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req reviewDecisionRequest
	_ = c.ShouldBindJSON(&req)
	cert, err := h.lifecycle.ApproveReview(c.Request.Context(), claims.CompanyID, c.Param("id"), claims.UserID, claims.Role, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// RejectReview godoc
// @Summary Reject a certificate under review
// @Tags Certificates
// @Accept json
// @Produce json
// @Param id path string true "Certificate ID"
// @Param payload body service.RejectReviewRequest true "Rejection notes"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/reject-review [post]
func (h *CertificateHandler) RejectReview(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.RejectReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "rejection notes are required"))
		return
	}
	cert, err := h.lifecycle.RejectReview(c.Request.Context(), claims.CompanyID, c.Param("id"), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// Complete godoc
// @Summary Complete a certificate, computing its outcome
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/complete [post]
func (h *CertificateHandler) Complete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	cert, err := h.lifecycle.Complete(c.Request.Context(), claims.CompanyID, c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// Issue godoc
// @Summary Issue a completed certificate
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/issue [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	cert, err := h.lifecycle.Issue(c.Request.Context(), claims.CompanyID, c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// Void godoc
// @Summary Void a certificate
// @Tags Certificates
// @Accept json
// @Produce json
// @Param id path string true "Certificate ID"
// @Param payload body service.VoidCertificateRequest true "Void reason"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/void [post]
func (h *CertificateHandler) Void(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.VoidCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "void reason is required"))
		return
	}
	cert, err := h.lifecycle.Void(c.Request.Context(), claims.CompanyID, c.Param("id"), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// PreviewOutcome godoc
// @Summary Preview the outcome the engine would currently derive
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/outcome-preview [get]
func (h *CertificateHandler) PreviewOutcome(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.lifecycle.PreviewOutcome(c.Request.Context(), claims.CompanyID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Readiness godoc
// @Summary Report which required fields block completion
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/readiness [get]
func (h *CertificateHandler) Readiness(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.lifecycle.Readiness(c.Request.Context(), claims.CompanyID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Amend godoc
// @Summary Create an amendment draft from an issued certificate
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 201 {object} response.Envelope
// @Router /certificates/{id}/amend [post]
func (h *CertificateHandler) Amend(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if h.derivatives == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "amendment service not configured"))
		return
	}
	cert, err := h.derivatives.CreateAmendment(c.Request.Context(), claims.CompanyID, c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cert)
}

// Reissue godoc
// @Summary Reissue a certificate as a fresh draft
// @Tags Certificates
// @Accept json
// @Produce json
// @Param id path string true "Certificate ID"
// @Param payload body service.ReissueRequest true "Reissue reason"
// @Success 201 {object} response.Envelope
// @Router /certificates/{id}/reissue [post]
func (h *CertificateHandler) Reissue(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if h.derivatives == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "amendment service not configured"))
		return
	}
	var req service.ReissueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "reissue reason is required"))
		return
	}
	cert, err := h.derivatives.ReissueAsNew(c.Request.Context(), claims.CompanyID, c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cert)
}

// History godoc
// @Summary List the audit trail for a certificate
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/history [get]
func (h *CertificateHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if h.auditTrail == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "audit trail not configured"))
		return
	}
	// Ownership check before exposing the trail.
	if _, err := h.lifecycle.Get(c.Request.Context(), claims.CompanyID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.auditTrail.ListByResource(c.Request.Context(), "certificate", c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

func certificateFilterFromQuery(c *gin.Context) models.CertificateFilter {
	filter := models.CertificateFilter{
		JobID:    strings.TrimSpace(c.Query("job_id")),
		ClientID: strings.TrimSpace(c.Query("client_id")),
	}
	if rawType := c.Query("type"); rawType != "" {
		filter.Type = models.CertificateType(strings.ToUpper(strings.TrimSpace(rawType)))
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.CertificateStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.CertificateStatus(part))
		}
		filter.Status = statuses
	}
	if page, err := strconv.Atoi(c.Query("page")); err == nil {
		filter.Page = page
	}
	if pageSize, err := strconv.Atoi(c.Query("page_size")); err == nil {
		filter.PageSize = pageSize
	}
	return filter
}
