package models

import "time"

// ChecklistAnswer enumerates the possible answers to an inspection question.
type ChecklistAnswer string

const (
	AnswerPass ChecklistAnswer = "PASS"
	AnswerFail ChecklistAnswer = "FAIL"
	AnswerNA   ChecklistAnswer = "NA"
	// AnswerLimitation records an accepted limitation agreed with the client.
	AnswerLimitation ChecklistAnswer = "LIMITATION"
	AnswerUnset      ChecklistAnswer = "UNSET"
)

// ChecklistItem is a single inspection question belonging to one certificate.
// SortOrder is fixed at creation so schedules render in the inspected order.
type ChecklistItem struct {
	ID            string          `db:"id" json:"id"`
	CertificateID string          `db:"certificate_id" json:"certificate_id"`
	Section       string          `db:"section" json:"section"`
	Question      string          `db:"question" json:"question"`
	SortOrder     int             `db:"sort_order" json:"sort_order"`
	Answer        ChecklistAnswer `db:"answer" json:"answer"`
	Notes         string          `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}
