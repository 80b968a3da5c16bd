package handler

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voltdesk/voltdesk-api/internal/models"
	appErrors "github.com/voltdesk/voltdesk-api/pkg/errors"
	"github.com/voltdesk/voltdesk-api/pkg/response"
)

type documentService interface {
	DownloadURL(ctx context.Context, companyID, certificateID string) (string, time.Time, error)
	Open(token string) (*os.File, error)
	ExportRegister(ctx context.Context, companyID string, filter models.CertificateFilter) ([]byte, error)
}

// DocumentHandler serves rendered certificate documents.
type DocumentHandler struct {
	documents documentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(documents documentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// DownloadURL godoc
// @Summary Get a signed download link for the certificate PDF
// @Tags Documents
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/document [get]
func (h *DocumentHandler) DownloadURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	token, expiresAt, err := h.documents.DownloadURL(c.Request.Context(), claims.CompanyID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"download_url": "/documents/download?token=" + token,
		"expires_at":   expiresAt,
	}, nil)
}

// Download godoc
// @Summary Stream a certificate PDF using a signed token
// @Tags Documents
// @Produce application/pdf
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /documents/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.documents.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "failed to read document"))
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+info.Name())
	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, nil)
}

// ExportRegister godoc
// @Summary Export the certificate register as CSV
// @Tags Documents
// @Produce text/csv
// @Param status query string false "Comma separated statuses"
// @Param type query string false "Certificate type"
// @Success 200 {file} binary
// @Router /certificates/export [get]
func (h *DocumentHandler) ExportRegister(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := certificateFilterFromQuery(c)
	// CSV registers are bounded by the repository page cap; export the
	// largest page unless the caller narrowed it.
	if filter.PageSize == 0 {
		filter.PageSize = 100
	}
	data, err := h.documents.ExportRegister(c.Request.Context(), claims.CompanyID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=certificate-register.csv")
	c.Data(http.StatusOK, "text/csv", data)
}
