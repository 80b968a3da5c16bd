package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/voltdesk/voltdesk-api/internal/models"
)

const testResultColumns = `id, certificate_id, circuit_ref, readings, created_at, updated_at`

// TestResultRepository persists circuit test readings.
type TestResultRepository struct {
	db *sqlx.DB
}

// NewTestResultRepository constructs the repository.
func NewTestResultRepository(db *sqlx.DB) *TestResultRepository {
	return &TestResultRepository{db: db}
}

// Create inserts a test result.
func (r *TestResultRepository) Create(ctx context.Context, result *models.TestResult) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if result.CreatedAt.IsZero() {
		result.CreatedAt = now
	}
	result.UpdatedAt = now
	const query = `INSERT INTO certificate_test_results
	(id, certificate_id, circuit_ref, readings, created_at, updated_at)
	VALUES (:id, :certificate_id, :circuit_ref, :readings, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, result); err != nil {
		return fmt.Errorf("create test result: %w", err)
	}
	return nil
}

// ListByCertificate returns test results in circuit order.
func (r *TestResultRepository) ListByCertificate(ctx context.Context, certificateID string) ([]models.TestResult, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificate_test_results WHERE certificate_id = $1 ORDER BY circuit_ref ASC, created_at ASC`, testResultColumns)
	var results []models.TestResult
	if err := r.db.SelectContext(ctx, &results, query, certificateID); err != nil {
		return nil, fmt.Errorf("list test results: %w", err)
	}
	return results, nil
}
