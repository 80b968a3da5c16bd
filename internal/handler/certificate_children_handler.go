package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voltdesk/voltdesk-api/internal/models"
	"github.com/voltdesk/voltdesk-api/internal/service"
	appErrors "github.com/voltdesk/voltdesk-api/pkg/errors"
	"github.com/voltdesk/voltdesk-api/pkg/response"
)

type certificateChildren interface {
	ListChecklist(ctx context.Context, companyID, certificateID string) ([]models.ChecklistItem, error)
	AddChecklistItem(ctx context.Context, companyID, certificateID string, req service.AddChecklistItemRequest) (*models.ChecklistItem, error)
	AnswerChecklistItem(ctx context.Context, companyID, certificateID, itemID string, req service.AnswerChecklistItemRequest) (*models.ChecklistItem, error)
	ListObservations(ctx context.Context, companyID, certificateID string) ([]models.Observation, error)
	AddObservation(ctx context.Context, companyID, certificateID string, req service.AddObservationRequest) (*models.Observation, error)
	ResolveObservation(ctx context.Context, companyID, certificateID, observationID string) (*models.Observation, error)
	ListTestResults(ctx context.Context, companyID, certificateID string) ([]models.TestResult, error)
	AddTestResult(ctx context.Context, companyID, certificateID string, req service.AddTestResultRequest) (*models.TestResult, error)
}

// CertificateChildrenHandler exposes checklist, observation and test result endpoints.
type CertificateChildrenHandler struct {
	service certificateChildren
}

// NewCertificateChildrenHandler constructs the handler.
func NewCertificateChildrenHandler(service certificateChildren) *CertificateChildrenHandler {
	return &CertificateChildrenHandler{service: service}
}

// ListChecklist godoc
// @Summary List the inspection checklist for a certificate
// @Tags Certificate Children
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/checklist [get]
func (h *CertificateChildrenHandler) ListChecklist(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.service.ListChecklist(c.Request.Context(), claims.CompanyID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// AddChecklistItem godoc
// @Summary Add an inspection checklist item
// @Tags Certificate Children
// @Accept json
// @Produce json
// @Param id path string true "Certificate ID"
// @Param payload body service.AddChecklistItemRequest true "Checklist item"
// @Success 201 {object} response.Envelope
// @Router /certificates/{id}/checklist [post]
func (h *CertificateChildrenHandler) AddChecklistItem(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.AddChecklistItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid checklist payload"))
		return
	}
	item, err := h.service.AddChecklistItem(c.Request.Context(), claims.CompanyID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// AnswerChecklistItem godoc
// @Summary Record an answer for a checklist item
// @Tags Certificate Children
// @Accept json
// @Produce json
// @Param id path string true "Certificate ID"
// @Param itemId path string true "Checklist item ID"
// @Param payload body service.AnswerChecklistItemRequest true "Answer"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/checklist/{itemId} [put]
func (h *CertificateChildrenHandler) AnswerChecklistItem(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.AnswerChecklistItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid answer payload"))
		return
	}
	item, err := h.service.AnswerChecklistItem(c.Request.Context(), claims.CompanyID, c.Param("id"), c.Param("itemId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// ListObservations godoc
// @Summary List coded observations for a certificate
// @Tags Certificate Children
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/observations [get]
func (h *CertificateChildrenHandler) ListObservations(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	observations, err := h.service.ListObservations(c.Request.Context(), claims.CompanyID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, observations, nil)
}

// AddObservation godoc
// @Summary Record a coded observation
// @Tags Certificate Children
// @Accept json
// @Produce json
// @Param id path string true "Certificate ID"
// @Param payload body service.AddObservationRequest true "Observation"
// @Success 201 {object} response.Envelope
// @Router /certificates/{id}/observations [post]
func (h *CertificateChildrenHandler) AddObservation(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.AddObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid observation payload"))
		return
	}
	obs, err := h.service.AddObservation(c.Request.Context(), claims.CompanyID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, obs)
}

// ResolveObservation godoc
// @Summary Mark an observation as resolved
// @Tags Certificate Children
// @Produce json
// @Param id path string true "Certificate ID"
// @Param obsId path string true "Observation ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/observations/{obsId}/resolve [post]
func (h *CertificateChildrenHandler) ResolveObservation(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	obs, err := h.service.ResolveObservation(c.Request.Context(), claims.CompanyID, c.Param("id"), c.Param("obsId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, obs, nil)
}

// ListTestResults godoc
// @Summary List circuit test results for a certificate
// @Tags Certificate Children
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/test-results [get]
func (h *CertificateChildrenHandler) ListTestResults(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	results, err := h.service.ListTestResults(c.Request.Context(), claims.CompanyID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// AddTestResult godoc
// @Summary Record circuit test readings
// @Tags Certificate Children
// @Accept json
// @Produce json
// @Param id path string true "Certificate ID"
// @Param payload body service.AddTestResultRequest true "Test readings"
// @Success 201 {object} response.Envelope
// @Router /certificates/{id}/test-results [post]
func (h *CertificateChildrenHandler) AddTestResult(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.AddTestResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid test result payload"))
		return
	}
	result, err := h.service.AddTestResult(c.Request.Context(), claims.CompanyID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
