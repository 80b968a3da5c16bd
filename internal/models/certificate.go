package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CertificateType enumerates the supported certificate sub-types.
type CertificateType string

const (
	// CertTypeEIC is an electrical installation certificate.
	CertTypeEIC CertificateType = "EIC"
	// CertTypeEICR is a periodic inspection (condition) report.
	CertTypeEICR CertificateType = "EICR"
	// CertTypeMWC is a minor electrical works certificate.
	CertTypeMWC CertificateType = "MWC"

	CertTypeFireAlarmDesign     CertificateType = "FA_DESIGN"
	CertTypeFireAlarmInstall    CertificateType = "FA_INSTALL"
	CertTypeFireAlarmCommission CertificateType = "FA_COMMISSION"
	CertTypeFireAlarmInspect    CertificateType = "FA_INSPECT"

	CertTypeEmergencyLightCompletion CertificateType = "EL_COMPLETION"
	CertTypeEmergencyLightPeriodic   CertificateType = "EL_PERIODIC"
)

// AllCertificateTypes lists every supported sub-type in display order.
var AllCertificateTypes = []CertificateType{
	CertTypeEIC,
	CertTypeEICR,
	CertTypeMWC,
	CertTypeFireAlarmDesign,
	CertTypeFireAlarmInstall,
	CertTypeFireAlarmCommission,
	CertTypeFireAlarmInspect,
	CertTypeEmergencyLightCompletion,
	CertTypeEmergencyLightPeriodic,
}

// Label returns the printable document title for the sub-type.
func (t CertificateType) Label() string {
	switch t {
	case CertTypeEIC:
		return "Electrical Installation Certificate"
	case CertTypeEICR:
		return "Electrical Installation Condition Report"
	case CertTypeMWC:
		return "Minor Electrical Installation Works Certificate"
	case CertTypeFireAlarmDesign:
		return "Fire Detection and Alarm System Design Certificate"
	case CertTypeFireAlarmInstall:
		return "Fire Detection and Alarm System Installation Certificate"
	case CertTypeFireAlarmCommission:
		return "Fire Detection and Alarm System Commissioning Certificate"
	case CertTypeFireAlarmInspect:
		return "Fire Detection and Alarm System Inspection and Servicing Certificate"
	case CertTypeEmergencyLightCompletion:
		return "Emergency Lighting Completion Certificate"
	case CertTypeEmergencyLightPeriodic:
		return "Emergency Lighting Periodic Inspection and Testing Certificate"
	default:
		return string(t)
	}
}

// CertificateStatus is the authoritative lifecycle state of a certificate.
type CertificateStatus string

const (
	CertStatusDraft       CertificateStatus = "DRAFT"
	CertStatusUnderReview CertificateStatus = "UNDER_REVIEW"
	CertStatusCompleted   CertificateStatus = "COMPLETED"
	CertStatusIssued      CertificateStatus = "ISSUED"
	CertStatusVoid        CertificateStatus = "VOID"
)

// CertificateOutcome is the derived verdict cached on the certificate.
type CertificateOutcome string

const (
	OutcomeSatisfactory   CertificateOutcome = "SATISFACTORY"
	OutcomeUnsatisfactory CertificateOutcome = "UNSATISFACTORY"
	// OutcomeSatisfactoryLimitations marks a pass subject to accepted limitations.
	OutcomeSatisfactoryLimitations CertificateOutcome = "SATISFACTORY_LIMITATIONS"
)

// ReviewDecision captures the reviewer verdict embedded in certificate data.
type ReviewDecision string

const (
	ReviewDecisionPending  ReviewDecision = "PENDING"
	ReviewDecisionApproved ReviewDecision = "APPROVED"
	ReviewDecisionRejected ReviewDecision = "REJECTED"
)

// ReviewMetadata tracks the office/peer review trail for a certificate.
// Decision is the single source of truth for review state; lifecycle status
// is never re-inferred from other fields.
type ReviewMetadata struct {
	SubmittedBy string         `json:"submitted_by,omitempty"`
	SubmittedAt *time.Time     `json:"submitted_at,omitempty"`
	Reviewer    string         `json:"reviewer,omitempty"`
	Decision    ReviewDecision `json:"decision,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
}

// CertificateData is the type-specific structured document stored as JSONB.
// Fields holds the schema-keyed document values (declarations, supply
// characteristics, schedule metadata); Review holds the embedded review trail.
type CertificateData struct {
	Fields map[string]string `json:"fields,omitempty"`
	Review ReviewMetadata    `json:"review"`
}

// Field returns the value for a schema key, empty when unset.
func (d CertificateData) Field(key string) string {
	if d.Fields == nil {
		return ""
	}
	return d.Fields[key]
}

// Clone returns a deep copy so derivative certificates never alias the source.
func (d CertificateData) Clone() CertificateData {
	clone := CertificateData{Review: d.Review}
	if d.Fields != nil {
		clone.Fields = make(map[string]string, len(d.Fields))
		for k, v := range d.Fields {
			clone.Fields[k] = v
		}
	}
	if d.Review.SubmittedAt != nil {
		ts := *d.Review.SubmittedAt
		clone.Review.SubmittedAt = &ts
	}
	if d.Review.DecidedAt != nil {
		ts := *d.Review.DecidedAt
		clone.Review.DecidedAt = &ts
	}
	return clone
}

// Value implements driver.Valuer for JSONB persistence.
func (d CertificateData) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner for JSONB persistence.
func (d *CertificateData) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = CertificateData{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported certificate data type %T", src)
	}
}

// Certificate is the central compliance document entity.
type Certificate struct {
	ID                    string              `db:"id" json:"id"`
	CompanyID             string              `db:"company_id" json:"company_id"`
	JobID                 *string             `db:"job_id" json:"job_id,omitempty"`
	ClientID              *string             `db:"client_id" json:"client_id,omitempty"`
	SiteID                *string             `db:"site_id" json:"site_id,omitempty"`
	Type                  CertificateType     `db:"type" json:"type"`
	Status                CertificateStatus   `db:"status" json:"status"`
	Data                  CertificateData     `db:"data" json:"data"`
	Outcome               *CertificateOutcome `db:"outcome" json:"outcome,omitempty"`
	OutcomeReason         *string             `db:"outcome_reason" json:"outcome_reason,omitempty"`
	CertificateNumber     *string             `db:"certificate_number" json:"certificate_number,omitempty"`
	OriginalCertificateID *string             `db:"original_certificate_id" json:"original_certificate_id,omitempty"`
	VoidReason            *string             `db:"void_reason" json:"void_reason,omitempty"`
	CreatedBy             string              `db:"created_by" json:"created_by"`
	CreatedAt             time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time           `db:"updated_at" json:"updated_at"`
}

// IsFinal reports whether the certificate has reached a terminal, immutable state.
func (c *Certificate) IsFinal() bool {
	return c.Status == CertStatusIssued || c.Status == CertStatusVoid
}

// CertificateFilter constrains certificate listing queries.
type CertificateFilter struct {
	Status   []CertificateStatus
	Type     CertificateType
	JobID    string
	ClientID string
	Page     int
	PageSize int
}
