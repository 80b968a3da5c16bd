package service

import (
	"github.com/voltdesk/voltdesk-api/internal/models"
	appErrors "github.com/voltdesk/voltdesk-api/pkg/errors"
)

// CertificateRuleSet selects the measurement thresholds used at outcome time.
type CertificateRuleSet string

const (
	RuleSetWiring            CertificateRuleSet = "WIRING"
	RuleSetFireAlarm         CertificateRuleSet = "FIRE_ALARM"
	RuleSetEmergencyLighting CertificateRuleSet = "EMERGENCY_LIGHTING"
)

// MeasurementBound constrains a single reading key. Nil means unbounded.
type MeasurementBound struct {
	Min *float64
	Max *float64
}

// CertificatePolicy is the static policy record for one certificate sub-type.
type CertificatePolicy struct {
	Type           models.CertificateType
	ReviewRequired bool
	// ReviewerRoles are the roles allowed to approve or reject a review.
	ReviewerRoles []models.UserRole
	// ReviewRequiredFields is the lighter bar checked at review submission.
	ReviewRequiredFields []string
	// RequiredFields is the full bar checked for completion and issue.
	RequiredFields []string
	RuleSet        CertificateRuleSet
}

// AllowsReviewer reports whether the given role may review this type.
func (p CertificatePolicy) AllowsReviewer(role models.UserRole) bool {
	for _, r := range p.ReviewerRoles {
		if r == role {
			return true
		}
	}
	return false
}

var supervisorRoles = []models.UserRole{models.RoleQualifiedSupervisor, models.RoleAdmin}

var baseFields = []string{"client_name", "installation_address", "engineer_name"}

func withBase(fields ...string) []string {
	out := make([]string, 0, len(baseFields)+len(fields))
	out = append(out, baseFields...)
	out = append(out, fields...)
	return out
}

// certificatePolicies is the authoritative policy table. Adding a sub-type is
// a data addition here, never a code change in the guards or the engine.
var certificatePolicies = map[models.CertificateType]CertificatePolicy{
	models.CertTypeEIC: {
		Type:                 models.CertTypeEIC,
		ReviewRequired:       true,
		ReviewerRoles:        supervisorRoles,
		ReviewRequiredFields: baseFields,
		RequiredFields:       withBase("description_of_work", "supply_characteristics", "earthing_arrangement", "inspection_date", "engineer_signature", "next_inspection_due"),
		RuleSet:              RuleSetWiring,
	},
	models.CertTypeEICR: {
		Type:                 models.CertTypeEICR,
		ReviewRequired:       true,
		ReviewerRoles:        supervisorRoles,
		ReviewRequiredFields: baseFields,
		RequiredFields:       withBase("extent_of_inspection", "agreed_limitations", "inspection_date", "engineer_signature", "next_inspection_due"),
		RuleSet:              RuleSetWiring,
	},
	models.CertTypeMWC: {
		Type:                 models.CertTypeMWC,
		ReviewRequired:       false,
		ReviewerRoles:        supervisorRoles,
		ReviewRequiredFields: baseFields,
		RequiredFields:       withBase("description_of_work", "inspection_date", "engineer_signature"),
		RuleSet:              RuleSetWiring,
	},
	models.CertTypeFireAlarmDesign: {
		Type:                 models.CertTypeFireAlarmDesign,
		ReviewRequired:       true,
		ReviewerRoles:        supervisorRoles,
		ReviewRequiredFields: baseFields,
		RequiredFields:       withBase("system_category", "coverage_description", "design_standard", "engineer_signature"),
		RuleSet:              RuleSetFireAlarm,
	},
	models.CertTypeFireAlarmInstall: {
		Type:                 models.CertTypeFireAlarmInstall,
		ReviewRequired:       false,
		ReviewerRoles:        supervisorRoles,
		ReviewRequiredFields: baseFields,
		RequiredFields:       withBase("system_category", "wiring_standard", "inspection_date", "engineer_signature"),
		RuleSet:              RuleSetFireAlarm,
	},
	models.CertTypeFireAlarmCommission: {
		Type:                 models.CertTypeFireAlarmCommission,
		ReviewRequired:       true,
		ReviewerRoles:        supervisorRoles,
		ReviewRequiredFields: baseFields,
		RequiredFields:       withBase("system_category", "commissioning_date", "cause_effect_verified", "engineer_signature"),
		RuleSet:              RuleSetFireAlarm,
	},
	models.CertTypeFireAlarmInspect: {
		Type:                 models.CertTypeFireAlarmInspect,
		ReviewRequired:       true,
		ReviewerRoles:        supervisorRoles,
		ReviewRequiredFields: baseFields,
		RequiredFields:       withBase("inspection_date", "service_period", "engineer_signature", "next_inspection_due"),
		RuleSet:              RuleSetFireAlarm,
	},
	models.CertTypeEmergencyLightCompletion: {
		Type:                 models.CertTypeEmergencyLightCompletion,
		ReviewRequired:       false,
		ReviewerRoles:        supervisorRoles,
		ReviewRequiredFields: baseFields,
		RequiredFields:       withBase("system_description", "design_standard", "inspection_date", "engineer_signature"),
		RuleSet:              RuleSetEmergencyLighting,
	},
	models.CertTypeEmergencyLightPeriodic: {
		Type:                 models.CertTypeEmergencyLightPeriodic,
		ReviewRequired:       true,
		ReviewerRoles:        supervisorRoles,
		ReviewRequiredFields: baseFields,
		RequiredFields:       withBase("test_duration_declared", "inspection_date", "engineer_signature", "next_inspection_due"),
		RuleSet:              RuleSetEmergencyLighting,
	},
}

// ruleSetBounds maps each rule set to the safe bounds of its known reading
// keys. Readings with unknown keys are ignored by the outcome engine.
var ruleSetBounds = map[CertificateRuleSet]map[string]MeasurementBound{
	RuleSetWiring: {
		"zs_ohms":                    {Max: f64(1.44)},
		"insulation_resistance_mohm": {Min: f64(1.0)},
		"rcd_trip_ms":                {Max: f64(300)},
	},
	RuleSetFireAlarm: {
		"standby_battery_minutes": {Min: f64(1440)},
		"sounder_db":              {Min: f64(65)},
	},
	RuleSetEmergencyLighting: {
		"duration_minutes": {Min: f64(180)},
		"min_lux":          {Min: f64(1.0)},
	},
}

func f64(v float64) *float64 { return &v }

// PolicyFor returns the policy for a certificate sub-type. An unknown type is
// a programming error and fails loudly; it is never silently defaulted.
func PolicyFor(certType models.CertificateType) (CertificatePolicy, error) {
	policy, ok := certificatePolicies[certType]
	if !ok {
		return CertificatePolicy{}, appErrors.Clone(appErrors.ErrUnknownCertificateType, "unknown certificate type: "+string(certType))
	}
	return policy, nil
}

// BoundsFor returns the measurement bounds for a rule set.
func BoundsFor(ruleSet CertificateRuleSet) map[string]MeasurementBound {
	return ruleSetBounds[ruleSet]
}
