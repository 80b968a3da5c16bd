package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/voltdesk/voltdesk-api/internal/models"
)

const certificateColumns = `id, company_id, job_id, client_id, site_id, type, status, data, outcome, outcome_reason,
       certificate_number, original_certificate_id, void_reason, created_by, created_at, updated_at`

// CertificateRepository persists certificate rows.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Create inserts a new certificate row.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	prepareCertificate(cert)
	const query = `INSERT INTO certificates
	(id, company_id, job_id, client_id, site_id, type, status, data, outcome, outcome_reason,
	 certificate_number, original_certificate_id, void_reason, created_by, created_at, updated_at)
	VALUES (:id, :company_id, :job_id, :client_id, :site_id, :type, :status, :data, :outcome, :outcome_reason,
	 :certificate_number, :original_certificate_id, :void_reason, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cert); err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// GetByID fetches a certificate scoped to the owning company.
func (r *CertificateRepository) GetByID(ctx context.Context, companyID, id string) (*models.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE id = $1 AND company_id = $2`, certificateColumns)
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, id, companyID); err != nil {
		return nil, err
	}
	return &cert, nil
}

// List returns certificates matching the filter, latest first.
func (r *CertificateRepository) List(ctx context.Context, companyID string, filter models.CertificateFilter) ([]models.Certificate, *models.Pagination, error) {
	args := make([]interface{}, 0, 6)
	args = append(args, companyID)
	conditions := []string{"company_id = $1"}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.JobID != "" {
		args = append(args, filter.JobID)
		conditions = append(conditions, fmt.Sprintf("job_id = $%d", len(args)))
	}
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM certificates WHERE %s`, where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, nil, fmt.Errorf("count certificates: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		certificateColumns, where, pageSize, offset)

	var certs []models.Certificate
	if err := r.db.SelectContext(ctx, &certs, query, args...); err != nil {
		return nil, nil, fmt.Errorf("list certificates: %w", err)
	}
	return certs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// UpdateData replaces the document payload when the stored status still
// matches the caller's expectation. Zero rows means the certificate moved
// underneath the caller and surfaces as sql.ErrNoRows.
func (r *CertificateRepository) UpdateData(ctx context.Context, cert *models.Certificate, expected models.CertificateStatus) error {
	cert.UpdatedAt = time.Now().UTC()
	const query = `UPDATE certificates SET data = :data, updated_at = :updated_at
	WHERE id = :id AND company_id = :company_id AND status = :expected_status`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":              cert.ID,
		"company_id":      cert.CompanyID,
		"data":            cert.Data,
		"updated_at":      cert.UpdatedAt,
		"expected_status": expected,
	})
	if err != nil {
		return fmt.Errorf("update certificate data: %w", err)
	}
	return requireRow(result, "update certificate data")
}

// UpdateTransition persists a status change together with outcome, review and
// void columns, guarded by the status the caller observed.
func (r *CertificateRepository) UpdateTransition(ctx context.Context, cert *models.Certificate, expected models.CertificateStatus) error {
	cert.UpdatedAt = time.Now().UTC()
	const query = `UPDATE certificates SET
	 status = :status, data = :data, outcome = :outcome, outcome_reason = :outcome_reason,
	 void_reason = :void_reason, updated_at = :updated_at
	WHERE id = :id AND company_id = :company_id AND status = :expected_status`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":              cert.ID,
		"company_id":      cert.CompanyID,
		"status":          cert.Status,
		"data":            cert.Data,
		"outcome":         cert.Outcome,
		"outcome_reason":  cert.OutcomeReason,
		"void_reason":     cert.VoidReason,
		"updated_at":      cert.UpdatedAt,
		"expected_status": expected,
	})
	if err != nil {
		return fmt.Errorf("update certificate transition: %w", err)
	}
	return requireRow(result, "update certificate transition")
}

// AssignNumber stamps the certificate number exactly once.
func (r *CertificateRepository) AssignNumber(ctx context.Context, companyID, id, number string) error {
	const query = `UPDATE certificates SET certificate_number = $1, updated_at = $2
	WHERE id = $3 AND company_id = $4 AND certificate_number IS NULL`
	result, err := r.db.ExecContext(ctx, query, number, time.Now().UTC(), id, companyID)
	if err != nil {
		return fmt.Errorf("assign certificate number: %w", err)
	}
	return requireRow(result, "assign certificate number")
}

// NextNumberSequence draws the next value from the shared number sequence.
func (r *CertificateRepository) NextNumberSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.db.GetContext(ctx, &seq, `SELECT nextval('certificate_number_seq')`); err != nil {
		return 0, fmt.Errorf("next certificate number: %w", err)
	}
	return seq, nil
}

// CreateWithChildren persists a certificate and its child rows in one
// transaction so a failed clone never leaves a partial target.
func (r *CertificateRepository) CreateWithChildren(ctx context.Context, cert *models.Certificate, checklist []models.ChecklistItem, observations []models.Observation, tests []models.TestResult) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin certificate clone: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	prepareCertificate(cert)
	const certQuery = `INSERT INTO certificates
	(id, company_id, job_id, client_id, site_id, type, status, data, outcome, outcome_reason,
	 certificate_number, original_certificate_id, void_reason, created_by, created_at, updated_at)
	VALUES (:id, :company_id, :job_id, :client_id, :site_id, :type, :status, :data, :outcome, :outcome_reason,
	 :certificate_number, :original_certificate_id, :void_reason, :created_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, certQuery, cert); err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}

	now := time.Now().UTC()
	const checklistQuery = `INSERT INTO certificate_checklist_items
	(id, certificate_id, section, question, sort_order, answer, notes, created_at, updated_at)
	VALUES (:id, :certificate_id, :section, :question, :sort_order, :answer, :notes, :created_at, :updated_at)`
	for i := range checklist {
		item := checklist[i]
		item.ID = uuid.NewString()
		item.CertificateID = cert.ID
		item.CreatedAt = now
		item.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, checklistQuery, item); err != nil {
			return fmt.Errorf("clone checklist item: %w", err)
		}
	}

	const observationQuery = `INSERT INTO certificate_observations
	(id, certificate_id, code, location, description, resolved_at, created_at, updated_at)
	VALUES (:id, :certificate_id, :code, :location, :description, :resolved_at, :created_at, :updated_at)`
	for i := range observations {
		obs := observations[i]
		obs.ID = uuid.NewString()
		obs.CertificateID = cert.ID
		obs.CreatedAt = now
		obs.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, observationQuery, obs); err != nil {
			return fmt.Errorf("clone observation: %w", err)
		}
	}

	const testQuery = `INSERT INTO certificate_test_results
	(id, certificate_id, circuit_ref, readings, created_at, updated_at)
	VALUES (:id, :certificate_id, :circuit_ref, :readings, :created_at, :updated_at)`
	for i := range tests {
		result := tests[i]
		result.ID = uuid.NewString()
		result.CertificateID = cert.ID
		result.CreatedAt = now
		result.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, testQuery, result); err != nil {
			return fmt.Errorf("clone test result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit certificate clone: %w", err)
	}
	return nil
}

func prepareCertificate(cert *models.Certificate) {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.Status == "" {
		cert.Status = models.CertStatusDraft
	}
	now := time.Now().UTC()
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = now
	}
	cert.UpdatedAt = now
}

func requireRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
