package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/voltdesk/voltdesk-api/internal/models"
)

const checklistColumns = `id, certificate_id, section, question, sort_order, answer, notes, created_at, updated_at`

// ChecklistRepository persists certificate checklist items.
type ChecklistRepository struct {
	db *sqlx.DB
}

// NewChecklistRepository constructs the repository.
func NewChecklistRepository(db *sqlx.DB) *ChecklistRepository {
	return &ChecklistRepository{db: db}
}

// Create inserts a checklist item.
func (r *ChecklistRepository) Create(ctx context.Context, item *models.ChecklistItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Answer == "" {
		item.Answer = models.AnswerUnset
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	const query = `INSERT INTO certificate_checklist_items
	(id, certificate_id, section, question, sort_order, answer, notes, created_at, updated_at)
	VALUES (:id, :certificate_id, :section, :question, :sort_order, :answer, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create checklist item: %w", err)
	}
	return nil
}

// GetByID fetches a checklist item.
func (r *ChecklistRepository) GetByID(ctx context.Context, id string) (*models.ChecklistItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificate_checklist_items WHERE id = $1`, checklistColumns)
	var item models.ChecklistItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListByCertificate returns the checklist in schedule order.
func (r *ChecklistRepository) ListByCertificate(ctx context.Context, certificateID string) ([]models.ChecklistItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificate_checklist_items WHERE certificate_id = $1 ORDER BY sort_order ASC, created_at ASC`, checklistColumns)
	var items []models.ChecklistItem
	if err := r.db.SelectContext(ctx, &items, query, certificateID); err != nil {
		return nil, fmt.Errorf("list checklist items: %w", err)
	}
	return items, nil
}

// Update persists the answer and notes.
func (r *ChecklistRepository) Update(ctx context.Context, item *models.ChecklistItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE certificate_checklist_items
	SET answer = :answer, notes = :notes, updated_at = :updated_at
	WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("update checklist item: %w", err)
	}
	return nil
}
