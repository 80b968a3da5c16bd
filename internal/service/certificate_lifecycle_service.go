package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/voltdesk/voltdesk-api/internal/models"
	appErrors "github.com/voltdesk/voltdesk-api/pkg/errors"
)

type certificateStore interface {
	Create(ctx context.Context, cert *models.Certificate) error
	GetByID(ctx context.Context, companyID, id string) (*models.Certificate, error)
	List(ctx context.Context, companyID string, filter models.CertificateFilter) ([]models.Certificate, *models.Pagination, error)
	UpdateData(ctx context.Context, cert *models.Certificate, expected models.CertificateStatus) error
	UpdateTransition(ctx context.Context, cert *models.Certificate, expected models.CertificateStatus) error
	AssignNumber(ctx context.Context, companyID, id, number string) error
	NextNumberSequence(ctx context.Context) (int64, error)
}

type checklistReader interface {
	ListByCertificate(ctx context.Context, certificateID string) ([]models.ChecklistItem, error)
}

type observationReader interface {
	ListByCertificate(ctx context.Context, certificateID string) ([]models.Observation, error)
}

type testResultReader interface {
	ListByCertificate(ctx context.Context, certificateID string) ([]models.TestResult, error)
}

type auditSink interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type documentRenderer interface {
	EnqueueRender(companyID, certificateID string)
}

type transitionObserver interface {
	ObserveCertificateTransition(certType models.CertificateType, transition string, allowed bool)
}

// CreateCertificateRequest opens a new draft certificate.
type CreateCertificateRequest struct {
	Type     models.CertificateType `json:"type" validate:"required"`
	JobID    string                 `json:"job_id"`
	ClientID string                 `json:"client_id"`
	SiteID   string                 `json:"site_id"`
	Fields   map[string]string      `json:"fields"`
}

// UpdateCertificateDataRequest replaces the schema-keyed document fields.
type UpdateCertificateDataRequest struct {
	Fields map[string]string `json:"fields" validate:"required"`
}

// RejectReviewRequest carries the mandatory rejection notes.
type RejectReviewRequest struct {
	Notes string `json:"notes" validate:"required"`
}

// VoidCertificateRequest carries the mandatory void reason.
type VoidCertificateRequest struct {
	Reason string `json:"reason" validate:"required"`
	// Force voids an already-issued certificate; an administrative override
	// restricted to admins and always audited with the reason.
	Force bool `json:"force"`
}

// CertificateService owns the certificate lifecycle state machine. Guard
// evaluation, the state delta and the outcome computation all run against one
// snapshot of data loaded inside the call; the surrounding transaction and
// per-certificate serialization are the caller's responsibility. Divergence
// between the assumed and stored status surfaces as a retryable conflict.
type CertificateService struct {
	certs        certificateStore
	checklist    checklistReader
	observations observationReader
	tests        testResultReader
	audit        auditSink
	documents    documentRenderer
	metrics      transitionObserver
	cache        *CacheService
	validator    *validator.Validate
	logger       *zap.Logger
	numberPrefix string
	previewTTL   time.Duration
	now          func() time.Time
}

// CertificateServiceOption configures optional collaborators.
type CertificateServiceOption func(*CertificateService)

// WithDocumentRenderer wires async document rendering after issue.
func WithDocumentRenderer(renderer documentRenderer) CertificateServiceOption {
	return func(s *CertificateService) { s.documents = renderer }
}

// WithTransitionObserver wires transition metrics.
func WithTransitionObserver(observer transitionObserver) CertificateServiceOption {
	return func(s *CertificateService) { s.metrics = observer }
}

// WithPreviewCache enables short-lived caching of outcome previews.
func WithPreviewCache(cache *CacheService, ttl time.Duration) CertificateServiceOption {
	return func(s *CertificateService) {
		s.cache = cache
		if ttl > 0 {
			s.previewTTL = ttl
		}
	}
}

// WithNumberPrefix overrides the issued certificate number prefix.
func WithNumberPrefix(prefix string) CertificateServiceOption {
	return func(s *CertificateService) {
		if prefix != "" {
			s.numberPrefix = prefix
		}
	}
}

// NewCertificateService constructs the lifecycle service.
func NewCertificateService(certs certificateStore, checklist checklistReader, observations observationReader, tests testResultReader, audit auditSink, validate *validator.Validate, logger *zap.Logger, opts ...CertificateServiceOption) *CertificateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &CertificateService{
		certs:        certs,
		checklist:    checklist,
		observations: observations,
		tests:        tests,
		audit:        audit,
		validator:    validate,
		logger:       logger,
		numberPrefix: "VD",
		previewTTL:   time.Minute,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create opens a new draft certificate.
func (s *CertificateService) Create(ctx context.Context, companyID, actorID string, req CreateCertificateRequest) (*models.Certificate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid certificate payload")
	}
	if _, err := PolicyFor(req.Type); err != nil {
		return nil, err
	}
	cert := &models.Certificate{
		CompanyID: companyID,
		JobID:     optionalString(req.JobID),
		ClientID:  optionalString(req.ClientID),
		SiteID:    optionalString(req.SiteID),
		Type:      req.Type,
		Status:    models.CertStatusDraft,
		Data:      models.CertificateData{Fields: req.Fields},
		CreatedBy: actorID,
	}
	if err := s.certs.Create(ctx, cert); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create certificate")
	}
	return cert, nil
}

// Get loads a certificate scoped to the owning company.
func (s *CertificateService) Get(ctx context.Context, companyID, id string) (*models.Certificate, error) {
	return s.load(ctx, companyID, id)
}

// List returns certificates matching the filter.
func (s *CertificateService) List(ctx context.Context, companyID string, filter models.CertificateFilter) ([]models.Certificate, *models.Pagination, error) {
	certs, pagination, err := s.certs.List(ctx, companyID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
	}
	return certs, pagination, nil
}

// UpdateData replaces the document fields while the certificate is mutable.
func (s *CertificateService) UpdateData(ctx context.Context, companyID, id string, req UpdateCertificateDataRequest) (*models.Certificate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid data payload")
	}
	cert, err := s.load(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if guard := CanMutateChildren(cert.Status); !guard.Allowed {
		return nil, appErrors.Clone(appErrors.ErrImmutable, guard.Reason)
	}
	expected := cert.Status
	cert.Data.Fields = req.Fields
	if err := s.certs.UpdateData(ctx, cert, expected); err != nil {
		return nil, s.mapWriteError(err, "failed to update certificate data")
	}
	s.invalidatePreview(ctx, id)
	return cert, nil
}

// SubmitForReview stamps review metadata and moves DRAFT -> UNDER_REVIEW.
func (s *CertificateService) SubmitForReview(ctx context.Context, companyID, id, actorID string) (*models.Certificate, error) {
	cert, err := s.load(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	guard, err := CanSubmitForReview(cert.Status, cert.Type, cert.Data)
	if err != nil {
		return nil, err
	}
	s.observe(cert.Type, "submit_for_review", guard.Allowed)
	if !guard.Allowed {
		switch guard.Code {
		case GuardCodeReviewNotRequired:
			return nil, appErrors.Clone(appErrors.ErrReviewNotRequired, guard.Reason)
		case GuardCodeWrongStatus:
			return nil, appErrors.Clone(appErrors.ErrWrongStatus, guard.Reason)
		default:
			return nil, appErrors.Clone(appErrors.ErrNotReady, guard.Reason)
		}
	}

	expected := cert.Status
	now := s.now()
	cert.Data.Review = models.ReviewMetadata{
		SubmittedBy: actorID,
		SubmittedAt: &now,
		Decision:    models.ReviewDecisionPending,
	}
	cert.Status = models.CertStatusUnderReview
	if err := s.certs.UpdateTransition(ctx, cert, expected); err != nil {
		return nil, s.mapWriteError(err, "failed to submit certificate for review")
	}
	s.emitAudit(ctx, actorID, models.AuditActionCertSubmitReview, cert, map[string]interface{}{
		"from": expected, "to": cert.Status,
	})
	return cert, nil
}

// ApproveReview records an approved decision; status stays UNDER_REVIEW so
// the completion guard can pass on the next attempt.
func (s *CertificateService) ApproveReview(ctx context.Context, companyID, id string, reviewer string, role models.UserRole, notes string) (*models.Certificate, error) {
	return s.review(ctx, companyID, id, reviewer, role, models.ReviewDecisionApproved, notes)
}

// RejectReview requires non-empty notes and returns the certificate to DRAFT
// so the preparer can correct and resubmit. The notes stay retrievable from
// the review metadata.
func (s *CertificateService) RejectReview(ctx context.Context, companyID, id string, reviewer string, role models.UserRole, req RejectReviewRequest) (*models.Certificate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection notes are required")
	}
	return s.review(ctx, companyID, id, reviewer, role, models.ReviewDecisionRejected, req.Notes)
}

func (s *CertificateService) review(ctx context.Context, companyID, id, reviewer string, role models.UserRole, decision models.ReviewDecision, notes string) (*models.Certificate, error) {
	cert, err := s.load(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	guard, err := CanReview(cert.Status, cert.Type, role)
	if err != nil {
		return nil, err
	}
	transition := "approve_review"
	action := models.AuditActionCertApproveReview
	if decision == models.ReviewDecisionRejected {
		transition = "reject_review"
		action = models.AuditActionCertRejectReview
	}
	s.observe(cert.Type, transition, guard.Allowed)
	if !guard.Allowed {
		switch guard.Code {
		case GuardCodeReviewNotRequired:
			return nil, appErrors.Clone(appErrors.ErrReviewNotRequired, guard.Reason)
		case GuardCodeRoleNotAllowed:
			return nil, appErrors.Clone(appErrors.ErrForbidden, guard.Reason)
		default:
			return nil, appErrors.Clone(appErrors.ErrWrongStatus, guard.Reason)
		}
	}

	expected := cert.Status
	now := s.now()
	cert.Data.Review.Reviewer = reviewer
	cert.Data.Review.Decision = decision
	cert.Data.Review.Notes = notes
	cert.Data.Review.DecidedAt = &now
	if decision == models.ReviewDecisionRejected {
		cert.Status = models.CertStatusDraft
	}
	if err := s.certs.UpdateTransition(ctx, cert, expected); err != nil {
		return nil, s.mapWriteError(err, "failed to record review decision")
	}
	// Review notes are deliberately left out of the audit payload.
	s.emitAudit(ctx, reviewer, action, cert, map[string]interface{}{
		"from": expected, "to": cert.Status, "decision": decision,
	})
	return cert, nil
}

// Complete derives the outcome from one consistent snapshot of checklist,
// observation and test data and moves the certificate to COMPLETED.
func (s *CertificateService) Complete(ctx context.Context, companyID, id, actorID string) (*models.Certificate, error) {
	cert, err := s.load(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if cert.IsFinal() {
		s.observe(cert.Type, "complete", false)
		return nil, appErrors.Clone(appErrors.ErrImmutable, fmt.Sprintf("certificate is %s and cannot be completed", cert.Status))
	}
	readiness, err := CertificateIsReadyForCompletion(cert.Type, cert.Data)
	if err != nil {
		return nil, err
	}
	if !readiness.OK {
		s.observe(cert.Type, "complete", false)
		return nil, appErrors.Clone(appErrors.ErrNotReady, "missing required fields: "+strings.Join(readiness.Missing, ", "))
	}
	blocked, err := IsReviewBlockingCompletion(cert.Type, cert.Data)
	if err != nil {
		return nil, err
	}
	if blocked {
		s.observe(cert.Type, "complete", false)
		return nil, appErrors.Clone(appErrors.ErrReviewBlocked, "review not approved")
	}

	observations, checklist, tests, err := s.snapshot(ctx, cert.ID)
	if err != nil {
		return nil, err
	}
	result, err := ComputeOutcome(cert.Type, observations, checklist, tests)
	if err != nil {
		return nil, err
	}
	reason := ExplainOutcome(result)

	expected := cert.Status
	cert.Outcome = &result.Outcome
	cert.OutcomeReason = &reason
	cert.Status = models.CertStatusCompleted
	if err := s.certs.UpdateTransition(ctx, cert, expected); err != nil {
		return nil, s.mapWriteError(err, "failed to complete certificate")
	}
	s.observe(cert.Type, "complete", true)
	s.invalidatePreview(ctx, id)
	s.emitAudit(ctx, actorID, models.AuditActionCertComplete, cert, map[string]interface{}{
		"from": expected, "to": cert.Status, "outcome": result.Outcome,
	})
	return cert, nil
}

// Issue re-validates readiness, assigns the certificate number once and moves
// COMPLETED -> ISSUED. Issued certificates are immutable.
func (s *CertificateService) Issue(ctx context.Context, companyID, id, actorID string) (*models.Certificate, error) {
	cert, err := s.load(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if cert.Status != models.CertStatusCompleted {
		s.observe(cert.Type, "issue", false)
		return nil, appErrors.Clone(appErrors.ErrWrongStatus, fmt.Sprintf("certificate must be in status %s, current status is %s", models.CertStatusCompleted, cert.Status))
	}
	// Data can drift between completion and issue; re-validate.
	readiness, err := CertificateIsReadyForCompletion(cert.Type, cert.Data)
	if err != nil {
		return nil, err
	}
	if !readiness.OK {
		s.observe(cert.Type, "issue", false)
		return nil, appErrors.Clone(appErrors.ErrNotReady, "missing required fields: "+strings.Join(readiness.Missing, ", "))
	}

	if cert.CertificateNumber == nil {
		seq, err := s.certs.NextNumberSequence(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate certificate number")
		}
		number := fmt.Sprintf("%s-%s-%06d", s.numberPrefix, cert.Type, seq)
		if err := s.certs.AssignNumber(ctx, companyID, cert.ID, number); err != nil {
			return nil, s.mapWriteError(err, "failed to assign certificate number")
		}
		cert.CertificateNumber = &number
	}

	expected := cert.Status
	cert.Status = models.CertStatusIssued
	if err := s.certs.UpdateTransition(ctx, cert, expected); err != nil {
		return nil, s.mapWriteError(err, "failed to issue certificate")
	}
	s.observe(cert.Type, "issue", true)
	if s.documents != nil {
		s.documents.EnqueueRender(companyID, cert.ID)
	}
	s.emitAudit(ctx, actorID, models.AuditActionCertIssue, cert, map[string]interface{}{
		"from": expected, "to": cert.Status, "certificate_number": cert.CertificateNumber,
	})
	return cert, nil
}

// Void terminates a certificate. Permitted from any non-issued, non-void
// state; from ISSUED only as a forced administrative override.
func (s *CertificateService) Void(ctx context.Context, companyID, id, actorID string, role models.UserRole, req VoidCertificateRequest) (*models.Certificate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "void reason is required")
	}
	cert, err := s.load(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if cert.Status == models.CertStatusVoid {
		s.observe(cert.Type, "void", false)
		return nil, appErrors.Clone(appErrors.ErrWrongStatus, "certificate is already void")
	}
	if cert.Status == models.CertStatusIssued {
		if !req.Force {
			s.observe(cert.Type, "void", false)
			return nil, appErrors.Clone(appErrors.ErrImmutable, "issued certificates can only be voided with force by an admin")
		}
		if role != models.RoleAdmin {
			s.observe(cert.Type, "void", false)
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may void an issued certificate")
		}
	}

	expected := cert.Status
	cert.Status = models.CertStatusVoid
	cert.VoidReason = &req.Reason
	if err := s.certs.UpdateTransition(ctx, cert, expected); err != nil {
		return nil, s.mapWriteError(err, "failed to void certificate")
	}
	s.observe(cert.Type, "void", true)
	s.emitAudit(ctx, actorID, models.AuditActionCertVoid, cert, map[string]interface{}{
		"from": expected, "to": cert.Status, "reason": req.Reason, "forced": req.Force,
	})
	return cert, nil
}

// PreviewOutcome computes the verdict over the current snapshot without
// mutating anything, for the live "preview outcome" affordance.
func (s *CertificateService) PreviewOutcome(ctx context.Context, companyID, id string) (*OutcomeResult, error) {
	cacheKey := "certificates:preview:" + id
	if s.cache.Enabled() {
		var cached OutcomeResult
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return &cached, nil
		}
	}
	cert, err := s.load(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	observations, checklist, tests, err := s.snapshot(ctx, cert.ID)
	if err != nil {
		return nil, err
	}
	result, err := ComputeOutcome(cert.Type, observations, checklist, tests)
	if err != nil {
		return nil, err
	}
	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, cacheKey, result, s.previewTTL)
	}
	return &result, nil
}

// Readiness reports the live completion gap list for UI display.
func (s *CertificateService) Readiness(ctx context.Context, companyID, id string) (*ReadinessResult, error) {
	cert, err := s.load(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	readiness, err := CertificateIsReadyForCompletion(cert.Type, cert.Data)
	if err != nil {
		return nil, err
	}
	return &readiness, nil
}

func (s *CertificateService) load(ctx context.Context, companyID, id string) (*models.Certificate, error) {
	cert, err := s.certs.GetByID(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	return cert, nil
}

func (s *CertificateService) snapshot(ctx context.Context, certificateID string) ([]models.Observation, []models.ChecklistItem, []models.TestResult, error) {
	observations, err := s.observations.ListByCertificate(ctx, certificateID)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load observations")
	}
	checklist, err := s.checklist.ListByCertificate(ctx, certificateID)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load checklist items")
	}
	tests, err := s.tests.ListByCertificate(ctx, certificateID)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load test results")
	}
	return observations, checklist, tests, nil
}

// mapWriteError translates repository failures. A zero-row update means the
// stored status diverged from the guard's assumption.
func (s *CertificateService) mapWriteError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrStatusConflict, "")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *CertificateService) invalidatePreview(ctx context.Context, id string) {
	if s.cache.Enabled() {
		_ = s.cache.Invalidate(ctx, "certificates:preview:"+id)
	}
}

func (s *CertificateService) observe(certType models.CertificateType, transition string, allowed bool) {
	if s.metrics != nil {
		s.metrics.ObserveCertificateTransition(certType, transition, allowed)
	}
}

// emitAudit records a transition event. Audit failures never abort a
// transition that already succeeded.
func (s *CertificateService) emitAudit(ctx context.Context, actorID, action string, cert *models.Certificate, metadata map[string]interface{}) {
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
		UserAgent:  "certificate-service",
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err), zap.String("action", action))
	}
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}
