package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TestReadings is the opaque measurement payload of a circuit test.
// Keys are type-specific (zs_ohms, insulation_resistance_mohm,
// duration_minutes, ...); consumers ignore keys they do not know.
type TestReadings map[string]float64

// Value implements driver.Valuer for JSONB persistence.
func (r TestReadings) Value() (driver.Value, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner for JSONB persistence.
func (r *TestReadings) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("unsupported test readings type %T", src)
	}
}

// Clone returns an independent copy of the payload.
func (r TestReadings) Clone() TestReadings {
	if r == nil {
		return nil
	}
	clone := make(TestReadings, len(r))
	for k, v := range r {
		clone[k] = v
	}
	return clone
}

// TestResult is a circuit measurement belonging to one certificate.
type TestResult struct {
	ID            string       `db:"id" json:"id"`
	CertificateID string       `db:"certificate_id" json:"certificate_id"`
	CircuitRef    string       `db:"circuit_ref" json:"circuit_ref"`
	Readings      TestReadings `db:"readings" json:"readings"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}
