package models

import "time"

// ObservationCode classifies the severity of a recorded site finding.
// The ordering is strict: C1 outranks C2 outranks C3 outranks ADVISORY.
type ObservationCode string

const (
	// ObsCodeDanger (C1) means danger present, risk of injury.
	ObsCodeDanger ObservationCode = "C1"
	// ObsCodePotentialDanger (C2) means potentially dangerous.
	ObsCodePotentialDanger ObservationCode = "C2"
	// ObsCodeImprovement (C3) means improvement recommended.
	ObsCodeImprovement ObservationCode = "C3"
	// ObsCodeAdvisory is a non-actionable note for the client.
	ObsCodeAdvisory ObservationCode = "ADVISORY"
)

// SeverityRank returns the strict ordering weight of a code, highest first.
// Unknown codes rank below ADVISORY so they never force a verdict.
func (c ObservationCode) SeverityRank() int {
	switch c {
	case ObsCodeDanger:
		return 4
	case ObsCodePotentialDanger:
		return 3
	case ObsCodeImprovement:
		return 2
	case ObsCodeAdvisory:
		return 1
	default:
		return 0
	}
}

// Observation is a recorded site finding belonging to one certificate.
// A nil ResolvedAt means the finding is still outstanding.
type Observation struct {
	ID            string          `db:"id" json:"id"`
	CertificateID string          `db:"certificate_id" json:"certificate_id"`
	Code          ObservationCode `db:"code" json:"code"`
	Location      string          `db:"location" json:"location"`
	Description   string          `db:"description" json:"description"`
	ResolvedAt    *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Outstanding reports whether the finding has not been resolved yet.
func (o Observation) Outstanding() bool {
	return o.ResolvedAt == nil
}
