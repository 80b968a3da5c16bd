package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltdesk/voltdesk-api/internal/models"
)

func TestPolicyForCoversEveryType(t *testing.T) {
	for _, certType := range models.AllCertificateTypes {
		policy, err := PolicyFor(certType)
		require.NoError(t, err, string(certType))
		assert.Equal(t, certType, policy.Type)
		assert.NotEmpty(t, policy.RequiredFields)
		assert.NotEmpty(t, policy.ReviewerRoles)
		assert.NotEmpty(t, BoundsFor(policy.RuleSet), string(policy.RuleSet))
	}
}

func TestPolicyForUnknownType(t *testing.T) {
	_, err := PolicyFor(models.CertificateType("GAS_SAFETY"))
	assert.Error(t, err)
}

func TestReviewRequirementPerType(t *testing.T) {
	reviewRequired := map[models.CertificateType]bool{
		models.CertTypeEIC:                     true,
		models.CertTypeEICR:                    true,
		models.CertTypeMWC:                     false,
		models.CertTypeFireAlarmDesign:         true,
		models.CertTypeFireAlarmInstall:        false,
		models.CertTypeFireAlarmCommission:     true,
		models.CertTypeFireAlarmInspect:        true,
		models.CertTypeEmergencyLightCompletion: false,
		models.CertTypeEmergencyLightPeriodic:   true,
	}
	for certType, required := range reviewRequired {
		policy, err := PolicyFor(certType)
		require.NoError(t, err)
		assert.Equal(t, required, policy.ReviewRequired, string(certType))
	}
}

func TestAllowsReviewer(t *testing.T) {
	policy, err := PolicyFor(models.CertTypeEICR)
	require.NoError(t, err)
	assert.True(t, policy.AllowsReviewer(models.RoleQualifiedSupervisor))
	assert.True(t, policy.AllowsReviewer(models.RoleAdmin))
	assert.False(t, policy.AllowsReviewer(models.RoleEngineer))
	assert.False(t, policy.AllowsReviewer(models.RoleClient))
}

func TestRequiredFieldsIncludeBaseFields(t *testing.T) {
	for _, certType := range models.AllCertificateTypes {
		policy, err := PolicyFor(certType)
		require.NoError(t, err)
		for _, base := range []string{"client_name", "installation_address", "engineer_name"} {
			assert.Contains(t, policy.RequiredFields, base, string(certType))
			assert.Contains(t, policy.ReviewRequiredFields, base, string(certType))
		}
	}
}
