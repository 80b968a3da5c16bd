package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/voltdesk/voltdesk-api/internal/models"
	appErrors "github.com/voltdesk/voltdesk-api/pkg/errors"
)

type certificateCloneStore interface {
	GetByID(ctx context.Context, companyID, id string) (*models.Certificate, error)
	// CreateWithChildren persists the certificate and its child rows inside
	// one transaction so a failed clone never leaves a partial target.
	CreateWithChildren(ctx context.Context, cert *models.Certificate, checklist []models.ChecklistItem, observations []models.Observation, tests []models.TestResult) error
}

// ReissueRequest carries the reason recorded in the reissue audit event.
type ReissueRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// AmendmentService creates derivative certificates while leaving issued
// originals untouched. Amendments correct an issued certificate; reissues
// replace one wholesale. Both share the clone helper but keep distinct
// external contracts.
type AmendmentService struct {
	certs        certificateCloneStore
	checklist    checklistReader
	observations observationReader
	tests        testResultReader
	audit        auditSink
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewAmendmentService constructs the amendment manager.
func NewAmendmentService(certs certificateCloneStore, checklist checklistReader, observations observationReader, tests testResultReader, audit auditSink, validate *validator.Validate, logger *zap.Logger) *AmendmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AmendmentService{
		certs:        certs,
		checklist:    checklist,
		observations: observations,
		tests:        tests,
		audit:        audit,
		validator:    validate,
		logger:       logger,
	}
}

// CreateAmendment clones an issued certificate into a new draft linked to the
// original. The source row and its children are never mutated.
func (s *AmendmentService) CreateAmendment(ctx context.Context, companyID, certificateID, actorID string) (*models.Certificate, error) {
	source, err := s.loadSource(ctx, companyID, certificateID)
	if err != nil {
		return nil, err
	}
	if source.Status != models.CertStatusIssued {
		return nil, appErrors.Clone(appErrors.ErrNotIssued, fmt.Sprintf("certificate must be %s to amend, current status is %s", models.CertStatusIssued, source.Status))
	}
	clone, err := s.clone(ctx, source, actorID)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actorID, models.AuditActionCertAmend, clone, map[string]interface{}{
		"original_certificate_id": source.ID,
	})
	return clone, nil
}

// ReissueAsNew clones a previously issued (or voided) certificate into a
// fresh draft replacement. The caller-supplied reason is recorded in the
// audit trail; both ids stay linked for traceability.
func (s *AmendmentService) ReissueAsNew(ctx context.Context, companyID, certificateID, actorID string, req ReissueRequest) (*models.Certificate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reissue reason is required")
	}
	source, err := s.loadSource(ctx, companyID, certificateID)
	if err != nil {
		return nil, err
	}
	if source.Status != models.CertStatusIssued && source.Status != models.CertStatusVoid {
		return nil, appErrors.Clone(appErrors.ErrNotIssued, fmt.Sprintf("certificate must be %s or %s to reissue, current status is %s", models.CertStatusIssued, models.CertStatusVoid, source.Status))
	}
	clone, err := s.clone(ctx, source, actorID)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actorID, models.AuditActionCertReissue, clone, map[string]interface{}{
		"original_certificate_id": source.ID,
		"reason":                  req.Reason,
	})
	return clone, nil
}

// clone deep-copies the certificate and its child rows into a new draft.
// Review metadata, outcome and certificate number never carry over.
func (s *AmendmentService) clone(ctx context.Context, source *models.Certificate, actorID string) (*models.Certificate, error) {
	checklist, err := s.checklist.ListByCertificate(ctx, source.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load source checklist")
	}
	observations, err := s.observations.ListByCertificate(ctx, source.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load source observations")
	}
	tests, err := s.tests.ListByCertificate(ctx, source.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load source test results")
	}

	data := source.Data.Clone()
	data.Review = models.ReviewMetadata{}

	originalID := source.ID
	target := &models.Certificate{
		CompanyID:             source.CompanyID,
		JobID:                 copyString(source.JobID),
		ClientID:              copyString(source.ClientID),
		SiteID:                copyString(source.SiteID),
		Type:                  source.Type,
		Status:                models.CertStatusDraft,
		Data:                  data,
		OriginalCertificateID: &originalID,
		CreatedBy:             actorID,
	}

	clonedChecklist := make([]models.ChecklistItem, 0, len(checklist))
	for _, item := range checklist {
		clonedChecklist = append(clonedChecklist, models.ChecklistItem{
			Section:   item.Section,
			Question:  item.Question,
			SortOrder: item.SortOrder,
			Answer:    item.Answer,
			Notes:     item.Notes,
		})
	}
	clonedObservations := make([]models.Observation, 0, len(observations))
	for _, obs := range observations {
		cloned := models.Observation{
			Code:        obs.Code,
			Location:    obs.Location,
			Description: obs.Description,
		}
		if obs.ResolvedAt != nil {
			ts := *obs.ResolvedAt
			cloned.ResolvedAt = &ts
		}
		clonedObservations = append(clonedObservations, cloned)
	}
	clonedTests := make([]models.TestResult, 0, len(tests))
	for _, test := range tests {
		clonedTests = append(clonedTests, models.TestResult{
			CircuitRef: test.CircuitRef,
			Readings:   test.Readings.Clone(),
		})
	}

	if err := s.certs.CreateWithChildren(ctx, target, clonedChecklist, clonedObservations, clonedTests); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create derivative certificate")
	}
	return target, nil
}

func (s *AmendmentService) loadSource(ctx context.Context, companyID, id string) (*models.Certificate, error) {
	cert, err := s.certs.GetByID(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	return cert, nil
}

func (s *AmendmentService) emitAudit(ctx context.Context, actorID, action string, cert *models.Certificate, metadata map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		payload = []byte("{}")
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   "certificate",
		ResourceID: &cert.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "amendment-service",
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err), zap.String("action", action))
	}
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
