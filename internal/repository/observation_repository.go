package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/voltdesk/voltdesk-api/internal/models"
)

const observationColumns = `id, certificate_id, code, location, description, resolved_at, created_at, updated_at`

// ObservationRepository persists coded defect observations.
type ObservationRepository struct {
	db *sqlx.DB
}

// NewObservationRepository constructs the repository.
func NewObservationRepository(db *sqlx.DB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// Create inserts an observation.
func (r *ObservationRepository) Create(ctx context.Context, obs *models.Observation) error {
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = now
	}
	obs.UpdatedAt = now
	const query = `INSERT INTO certificate_observations
	(id, certificate_id, code, location, description, resolved_at, created_at, updated_at)
	VALUES (:id, :certificate_id, :code, :location, :description, :resolved_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, obs); err != nil {
		return fmt.Errorf("create observation: %w", err)
	}
	return nil
}

// GetByID fetches an observation.
func (r *ObservationRepository) GetByID(ctx context.Context, id string) (*models.Observation, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificate_observations WHERE id = $1`, observationColumns)
	var obs models.Observation
	if err := r.db.GetContext(ctx, &obs, query, id); err != nil {
		return nil, err
	}
	return &obs, nil
}

// ListByCertificate returns observations most severe first.
func (r *ObservationRepository) ListByCertificate(ctx context.Context, certificateID string) ([]models.Observation, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificate_observations WHERE certificate_id = $1
	ORDER BY CASE code WHEN 'C1' THEN 0 WHEN 'C2' THEN 1 WHEN 'C3' THEN 2 ELSE 3 END, created_at ASC`, observationColumns)
	var observations []models.Observation
	if err := r.db.SelectContext(ctx, &observations, query, certificateID); err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	return observations, nil
}

// Update persists resolution state.
func (r *ObservationRepository) Update(ctx context.Context, obs *models.Observation) error {
	obs.UpdatedAt = time.Now().UTC()
	const query = `UPDATE certificate_observations
	SET code = :code, location = :location, description = :description, resolved_at = :resolved_at, updated_at = :updated_at
	WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, obs); err != nil {
		return fmt.Errorf("update observation: %w", err)
	}
	return nil
}
