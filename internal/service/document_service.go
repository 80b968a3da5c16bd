package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voltdesk/voltdesk-api/internal/models"
	appErrors "github.com/voltdesk/voltdesk-api/pkg/errors"
	"github.com/voltdesk/voltdesk-api/pkg/export"
	"github.com/voltdesk/voltdesk-api/pkg/jobs"
	"github.com/voltdesk/voltdesk-api/pkg/storage"
)

type documentCertificateStore interface {
	GetByID(ctx context.Context, companyID, id string) (*models.Certificate, error)
	List(ctx context.Context, companyID string, filter models.CertificateFilter) ([]models.Certificate, *models.Pagination, error)
}

type renderJobPayload struct {
	CompanyID     string `json:"company_id"`
	CertificateID string `json:"certificate_id"`
}

// DocumentServiceConfig tunes the async render pipeline.
type DocumentServiceConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
}

// DocumentService renders issued certificates to PDF, stores the files and
// serves signed download links. Rendering runs on a background queue so the
// issue transition never waits on PDF generation.
type DocumentService struct {
	certs        documentCertificateStore
	checklist    checklistReader
	observations observationReader
	tests        testResultReader
	audit        auditSink
	pdf          *export.PDFExporter
	csv          *export.CSVExporter
	store        *storage.LocalStorage
	signer       *storage.SignedURLSigner
	queue        *jobs.Queue
	logger       *zap.Logger
}

// NewDocumentService constructs the service and its render queue.
func NewDocumentService(certs documentCertificateStore, checklist checklistReader, observations observationReader, tests testResultReader, audit auditSink, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DocumentService{
		certs:        certs,
		checklist:    checklist,
		observations: observations,
		tests:        tests,
		audit:        audit,
		pdf:          export.NewPDFExporter(),
		csv:          export.NewCSVExporter(),
		store:        store,
		signer:       signer,
		logger:       logger,
	}
	s.queue = jobs.NewQueue("certificate-documents", s.handleRenderJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the render workers.
func (s *DocumentService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the render workers.
func (s *DocumentService) Stop() {
	s.queue.Stop()
}

// EnqueueRender schedules an async PDF render for an issued certificate.
// Failures are logged, never propagated; the issue transition already
// committed and a download request will render on demand.
func (s *DocumentService) EnqueueRender(companyID, certificateID string) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "render-certificate",
		Payload: renderJobPayload{CompanyID: companyID, CertificateID: certificateID},
	})
	if err != nil {
		s.logger.Warn("failed to enqueue certificate render",
			zap.String("certificate_id", certificateID), zap.Error(err))
	}
}

func (s *DocumentService) handleRenderJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(renderJobPayload)
	if !ok {
		s.logger.Error("unexpected render job payload", zap.String("job_id", job.ID))
		return nil
	}
	if _, err := s.Render(ctx, payload.CompanyID, payload.CertificateID); err != nil {
		return err
	}
	return nil
}

// Render builds the certificate PDF and stores it, returning the stored path.
func (s *DocumentService) Render(ctx context.Context, companyID, certificateID string) (string, error) {
	cert, err := s.certs.GetByID(ctx, companyID, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	if cert.Status != models.CertStatusIssued {
		return "", appErrors.Clone(appErrors.ErrNotIssued, "documents are only rendered for issued certificates")
	}

	checklist, err := s.checklist.ListByCertificate(ctx, cert.ID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load checklist")
	}
	observations, err := s.observations.ListByCertificate(ctx, cert.ID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load observations")
	}
	tests, err := s.tests.ListByCertificate(ctx, cert.ID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load test results")
	}

	pdfBytes, err := s.pdf.RenderDocument(buildCertificateDocument(cert, checklist, observations, tests))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate pdf")
	}

	path := documentPath(companyID, cert.ID)
	if _, err := s.store.Save(path, pdfBytes); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate pdf")
	}

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			Action:     models.AuditActionCertDocument,
			Resource:   "certificate",
			ResourceID: &cert.ID,
			NewValues:  []byte(fmt.Sprintf(`{"path":%q}`, path)),
			IPAddress:  "system",
			UserAgent:  "document-service",
		}); err != nil {
			s.logger.Warn("failed to record document audit log", zap.Error(err))
		}
	}

	s.logger.Info("certificate document rendered",
		zap.String("certificate_id", cert.ID), zap.String("path", path))
	return path, nil
}

// DownloadURL returns a signed token for the certificate document, rendering
// it first when the stored copy is missing.
func (s *DocumentService) DownloadURL(ctx context.Context, companyID, certificateID string) (string, time.Time, error) {
	path := documentPath(companyID, certificateID)
	if _, err := os.Stat(s.store.Path(path)); err != nil {
		if _, renderErr := s.Render(ctx, companyID, certificateID); renderErr != nil {
			return "", time.Time{}, renderErr
		}
	}
	token, expiresAt, err := s.signer.Generate(certificateID, path)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return token, expiresAt, nil
}

// Open validates a signed token and returns the stored document.
func (s *DocumentService) Open(token string) (*os.File, error) {
	_, path, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.store.Open(path)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	return file, nil
}

// ExportRegister renders a CSV register of certificates matching the filter.
func (s *DocumentService) ExportRegister(ctx context.Context, companyID string, filter models.CertificateFilter) ([]byte, error) {
	certs, _, err := s.certs.List(ctx, companyID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
	}

	table := export.Table{
		Headers: []string{"Certificate Number", "Type", "Status", "Outcome", "Client", "Address", "Created"},
	}
	for _, cert := range certs {
		row := map[string]string{
			"Certificate Number": stringOrDash(cert.CertificateNumber),
			"Type":               string(cert.Type),
			"Status":             string(cert.Status),
			"Outcome":            outcomeOrDash(cert.Outcome),
			"Client":             cert.Data.Field("client_name"),
			"Address":            cert.Data.Field("installation_address"),
			"Created":            cert.CreatedAt.Format("2006-01-02"),
		}
		table.Rows = append(table.Rows, row)
	}
	return s.csv.Render(table)
}

func documentPath(companyID, certificateID string) string {
	return fmt.Sprintf("certificates/%s/%s.pdf", companyID, certificateID)
}

func buildCertificateDocument(cert *models.Certificate, checklist []models.ChecklistItem, observations []models.Observation, tests []models.TestResult) export.Document {
	doc := export.Document{
		Title:    cert.Type.Label(),
		Subtitle: fmt.Sprintf("Certificate No. %s", stringOrDash(cert.CertificateNumber)),
		Meta: []export.MetaRow{
			{Label: "Client", Value: cert.Data.Field("client_name")},
			{Label: "Installation Address", Value: cert.Data.Field("installation_address")},
			{Label: "Engineer", Value: cert.Data.Field("engineer_name")},
			{Label: "Outcome", Value: outcomeOrDash(cert.Outcome)},
			{Label: "Issued", Value: cert.UpdatedAt.Format("2 January 2006")},
		},
	}

	if cert.OutcomeReason != nil && *cert.OutcomeReason != "" {
		doc.Sections = append(doc.Sections, export.DocumentSection{
			Heading:    "Assessment Summary",
			Paragraphs: []string{*cert.OutcomeReason},
		})
	}

	if len(checklist) > 0 {
		table := export.Table{Headers: []string{"Section", "Item", "Result", "Notes"}}
		for _, item := range checklist {
			table.Rows = append(table.Rows, map[string]string{
				"Section": item.Section,
				"Item":    item.Question,
				"Result":  string(item.Answer),
				"Notes":   item.Notes,
			})
		}
		doc.Sections = append(doc.Sections, export.DocumentSection{Heading: "Schedule of Inspections", Table: table})
	}

	if len(observations) > 0 {
		table := export.Table{Headers: []string{"Code", "Location", "Observation", "Resolved"}}
		for _, obs := range observations {
			resolved := "No"
			if obs.ResolvedAt != nil {
				resolved = obs.ResolvedAt.Format("2006-01-02")
			}
			table.Rows = append(table.Rows, map[string]string{
				"Code":        string(obs.Code),
				"Location":    obs.Location,
				"Observation": obs.Description,
				"Resolved":    resolved,
			})
		}
		doc.Sections = append(doc.Sections, export.DocumentSection{Heading: "Observations and Recommendations", Table: table})
	}

	if len(tests) > 0 {
		table := export.Table{Headers: []string{"Circuit", "Reading", "Value"}}
		for _, result := range tests {
			keys := make([]string, 0, len(result.Readings))
			for key := range result.Readings {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				table.Rows = append(table.Rows, map[string]string{
					"Circuit": result.CircuitRef,
					"Reading": key,
					"Value":   strconv.FormatFloat(result.Readings[key], 'f', -1, 64),
				})
			}
		}
		doc.Sections = append(doc.Sections, export.DocumentSection{Heading: "Schedule of Test Results", Table: table})
	}

	if review := cert.Data.Review; review.Decision == models.ReviewDecisionApproved {
		paragraph := fmt.Sprintf("Reviewed and approved by %s", review.Reviewer)
		if review.DecidedAt != nil {
			paragraph += fmt.Sprintf(" on %s", review.DecidedAt.Format("2 January 2006"))
		}
		doc.Sections = append(doc.Sections, export.DocumentSection{
			Heading:    "Review Declaration",
			Paragraphs: []string{paragraph + "."},
		})
	}

	doc.Footer = "This document is generated from records held by the issuing contractor and is invalid if altered."
	return doc
}

func stringOrDash(value *string) string {
	if value == nil || *value == "" {
		return "-"
	}
	return *value
}

func outcomeOrDash(outcome *models.CertificateOutcome) string {
	if outcome == nil {
		return "-"
	}
	return string(*outcome)
}
