package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/voltdesk/voltdesk-api/internal/models"
	appErrors "github.com/voltdesk/voltdesk-api/pkg/errors"
)

type certificateReader interface {
	GetByID(ctx context.Context, companyID, id string) (*models.Certificate, error)
}

type checklistStore interface {
	checklistReader
	GetByID(ctx context.Context, id string) (*models.ChecklistItem, error)
	Create(ctx context.Context, item *models.ChecklistItem) error
	Update(ctx context.Context, item *models.ChecklistItem) error
}

type observationStore interface {
	observationReader
	GetByID(ctx context.Context, id string) (*models.Observation, error)
	Create(ctx context.Context, obs *models.Observation) error
	Update(ctx context.Context, obs *models.Observation) error
}

type testResultStore interface {
	testResultReader
	Create(ctx context.Context, result *models.TestResult) error
}

// AddChecklistItemRequest appends an inspection question to a draft schedule.
type AddChecklistItemRequest struct {
	Section   string `json:"section" validate:"required"`
	Question  string `json:"question" validate:"required"`
	SortOrder int    `json:"sort_order"`
}

// AnswerChecklistItemRequest records an inspection answer.
type AnswerChecklistItemRequest struct {
	Answer models.ChecklistAnswer `json:"answer" validate:"required,oneof=PASS FAIL NA LIMITATION UNSET"`
	Notes  string                 `json:"notes"`
}

// AddObservationRequest records a new site finding.
type AddObservationRequest struct {
	Code        models.ObservationCode `json:"code" validate:"required,oneof=C1 C2 C3 ADVISORY"`
	Location    string                 `json:"location" validate:"required"`
	Description string                 `json:"description" validate:"required"`
}

// AddTestResultRequest records a circuit measurement.
type AddTestResultRequest struct {
	CircuitRef string              `json:"circuit_ref" validate:"required"`
	Readings   models.TestReadings `json:"readings" validate:"required"`
}

// CertificateChildrenService mutates checklist items, observations and test
// results. Every write re-checks the parent certificate's immutability guard
// so issued and void certificates stay frozen.
type CertificateChildrenService struct {
	certs        certificateReader
	checklist    checklistStore
	observations observationStore
	tests        testResultStore
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewCertificateChildrenService constructs the service.
func NewCertificateChildrenService(certs certificateReader, checklist checklistStore, observations observationStore, tests testResultStore, validate *validator.Validate, logger *zap.Logger) *CertificateChildrenService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateChildrenService{
		certs:        certs,
		checklist:    checklist,
		observations: observations,
		tests:        tests,
		validator:    validate,
		logger:       logger,
	}
}

// ListChecklist returns the schedule in its fixed sort order.
func (s *CertificateChildrenService) ListChecklist(ctx context.Context, companyID, certificateID string) ([]models.ChecklistItem, error) {
	if _, err := s.loadParent(ctx, companyID, certificateID); err != nil {
		return nil, err
	}
	items, err := s.checklist.ListByCertificate(ctx, certificateID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list checklist items")
	}
	return items, nil
}

// AddChecklistItem appends a question to a mutable certificate.
func (s *CertificateChildrenService) AddChecklistItem(ctx context.Context, companyID, certificateID string, req AddChecklistItemRequest) (*models.ChecklistItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checklist payload")
	}
	if err := s.requireMutable(ctx, companyID, certificateID); err != nil {
		return nil, err
	}
	item := &models.ChecklistItem{
		CertificateID: certificateID,
		Section:       req.Section,
		Question:      req.Question,
		SortOrder:     req.SortOrder,
		Answer:        models.AnswerUnset,
	}
	if err := s.checklist.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create checklist item")
	}
	return item, nil
}

// AnswerChecklistItem records or changes an answer. SortOrder is fixed at
// creation and never updated here.
func (s *CertificateChildrenService) AnswerChecklistItem(ctx context.Context, companyID, certificateID, itemID string, req AnswerChecklistItemRequest) (*models.ChecklistItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid answer payload")
	}
	if err := s.requireMutable(ctx, companyID, certificateID); err != nil {
		return nil, err
	}
	item, err := s.checklist.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "checklist item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load checklist item")
	}
	if item.CertificateID != certificateID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "checklist item not found")
	}
	item.Answer = req.Answer
	item.Notes = req.Notes
	if err := s.checklist.Update(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update checklist item")
	}
	return item, nil
}

// ListObservations returns the certificate's site findings.
func (s *CertificateChildrenService) ListObservations(ctx context.Context, companyID, certificateID string) ([]models.Observation, error) {
	if _, err := s.loadParent(ctx, companyID, certificateID); err != nil {
		return nil, err
	}
	observations, err := s.observations.ListByCertificate(ctx, certificateID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list observations")
	}
	return observations, nil
}

// AddObservation records a site finding.
func (s *CertificateChildrenService) AddObservation(ctx context.Context, companyID, certificateID string, req AddObservationRequest) (*models.Observation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid observation payload")
	}
	if err := s.requireMutable(ctx, companyID, certificateID); err != nil {
		return nil, err
	}
	obs := &models.Observation{
		CertificateID: certificateID,
		Code:          req.Code,
		Location:      req.Location,
		Description:   req.Description,
	}
	if err := s.observations.Create(ctx, obs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create observation")
	}
	return obs, nil
}

// ResolveObservation marks a finding as resolved at the given time.
func (s *CertificateChildrenService) ResolveObservation(ctx context.Context, companyID, certificateID, observationID string) (*models.Observation, error) {
	if err := s.requireMutable(ctx, companyID, certificateID); err != nil {
		return nil, err
	}
	obs, err := s.observations.GetByID(ctx, observationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "observation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load observation")
	}
	if obs.CertificateID != certificateID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "observation not found")
	}
	if obs.ResolvedAt == nil {
		now := time.Now().UTC()
		obs.ResolvedAt = &now
		if err := s.observations.Update(ctx, obs); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve observation")
		}
	}
	return obs, nil
}

// ListTestResults returns the certificate's circuit measurements.
func (s *CertificateChildrenService) ListTestResults(ctx context.Context, companyID, certificateID string) ([]models.TestResult, error) {
	if _, err := s.loadParent(ctx, companyID, certificateID); err != nil {
		return nil, err
	}
	results, err := s.tests.ListByCertificate(ctx, certificateID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list test results")
	}
	return results, nil
}

// AddTestResult records a circuit measurement.
func (s *CertificateChildrenService) AddTestResult(ctx context.Context, companyID, certificateID string, req AddTestResultRequest) (*models.TestResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid test result payload")
	}
	if err := s.requireMutable(ctx, companyID, certificateID); err != nil {
		return nil, err
	}
	result := &models.TestResult{
		CertificateID: certificateID,
		CircuitRef:    req.CircuitRef,
		Readings:      req.Readings.Clone(),
	}
	if err := s.tests.Create(ctx, result); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create test result")
	}
	return result, nil
}

func (s *CertificateChildrenService) loadParent(ctx context.Context, companyID, certificateID string) (*models.Certificate, error) {
	cert, err := s.certs.GetByID(ctx, companyID, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	return cert, nil
}

func (s *CertificateChildrenService) requireMutable(ctx context.Context, companyID, certificateID string) error {
	cert, err := s.loadParent(ctx, companyID, certificateID)
	if err != nil {
		return err
	}
	if guard := CanMutateChildren(cert.Status); !guard.Allowed {
		return appErrors.Clone(appErrors.ErrImmutable, guard.Reason)
	}
	return nil
}
