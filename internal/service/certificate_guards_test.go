package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltdesk/voltdesk-api/internal/models"
)

func reviewReadyData() models.CertificateData {
	return models.CertificateData{Fields: map[string]string{
		"client_name":          "Acme Property Ltd",
		"installation_address": "1 High Street",
		"engineer_name":        "J. Morales",
	}}
}

func TestCanSubmitForReview(t *testing.T) {
	t.Run("draft with required fields is allowed", func(t *testing.T) {
		guard, err := CanSubmitForReview(models.CertStatusDraft, models.CertTypeEICR, reviewReadyData())
		require.NoError(t, err)
		assert.True(t, guard.Allowed)
	})

	t.Run("wrong status is rejected", func(t *testing.T) {
		guard, err := CanSubmitForReview(models.CertStatusCompleted, models.CertTypeEICR, reviewReadyData())
		require.NoError(t, err)
		assert.False(t, guard.Allowed)
		assert.Equal(t, GuardCodeWrongStatus, guard.Code)
	})

	t.Run("review-free type is rejected", func(t *testing.T) {
		guard, err := CanSubmitForReview(models.CertStatusDraft, models.CertTypeMWC, reviewReadyData())
		require.NoError(t, err)
		assert.False(t, guard.Allowed)
		assert.Equal(t, GuardCodeReviewNotRequired, guard.Code)
	})

	t.Run("missing fields list every gap", func(t *testing.T) {
		data := models.CertificateData{Fields: map[string]string{"client_name": "Acme Property Ltd"}}
		guard, err := CanSubmitForReview(models.CertStatusDraft, models.CertTypeEIC, data)
		require.NoError(t, err)
		assert.False(t, guard.Allowed)
		assert.Equal(t, GuardCodeMissingFields, guard.Code)
		assert.Contains(t, guard.Reason, "installation_address")
		assert.Contains(t, guard.Reason, "engineer_name")
	})

	t.Run("unknown type is a hard error", func(t *testing.T) {
		_, err := CanSubmitForReview(models.CertStatusDraft, models.CertificateType("GAS_SAFETY"), reviewReadyData())
		assert.Error(t, err)
	})
}

func TestCanReview(t *testing.T) {
	t.Run("qualified supervisor may review", func(t *testing.T) {
		guard, err := CanReview(models.CertStatusUnderReview, models.CertTypeEICR, models.RoleQualifiedSupervisor)
		require.NoError(t, err)
		assert.True(t, guard.Allowed)
	})

	t.Run("admin may review", func(t *testing.T) {
		guard, err := CanReview(models.CertStatusUnderReview, models.CertTypeEICR, models.RoleAdmin)
		require.NoError(t, err)
		assert.True(t, guard.Allowed)
	})

	t.Run("engineer may not review", func(t *testing.T) {
		guard, err := CanReview(models.CertStatusUnderReview, models.CertTypeEICR, models.RoleEngineer)
		require.NoError(t, err)
		assert.False(t, guard.Allowed)
		assert.Equal(t, GuardCodeRoleNotAllowed, guard.Code)
	})

	t.Run("review only from under-review status", func(t *testing.T) {
		guard, err := CanReview(models.CertStatusDraft, models.CertTypeEICR, models.RoleQualifiedSupervisor)
		require.NoError(t, err)
		assert.False(t, guard.Allowed)
		assert.Equal(t, GuardCodeWrongStatus, guard.Code)
	})
}

func TestCertificateIsReadyForCompletion(t *testing.T) {
	data := reviewReadyData()
	readiness, err := CertificateIsReadyForCompletion(models.CertTypeMWC, data)
	require.NoError(t, err)
	assert.False(t, readiness.OK)
	assert.ElementsMatch(t, []string{"description_of_work", "inspection_date", "engineer_signature"}, readiness.Missing)

	data.Fields["description_of_work"] = "Replaced damaged socket outlet"
	data.Fields["inspection_date"] = "2026-08-20"
	data.Fields["engineer_signature"] = "sig:token"
	readiness, err = CertificateIsReadyForCompletion(models.CertTypeMWC, data)
	require.NoError(t, err)
	assert.True(t, readiness.OK)
	assert.Empty(t, readiness.Missing)
}

func TestWhitespaceFieldsCountAsMissing(t *testing.T) {
	data := reviewReadyData()
	data.Fields["engineer_name"] = "   "
	guard, err := CanSubmitForReview(models.CertStatusDraft, models.CertTypeEICR, data)
	require.NoError(t, err)
	assert.False(t, guard.Allowed)
	assert.Contains(t, guard.Reason, "engineer_name")
}

func TestIsReviewBlockingCompletion(t *testing.T) {
	t.Run("pending review blocks completion", func(t *testing.T) {
		data := models.CertificateData{Review: models.ReviewMetadata{Decision: models.ReviewDecisionPending}}
		blocked, err := IsReviewBlockingCompletion(models.CertTypeEICR, data)
		require.NoError(t, err)
		assert.True(t, blocked)
	})

	t.Run("approved review unblocks completion", func(t *testing.T) {
		data := models.CertificateData{Review: models.ReviewMetadata{Decision: models.ReviewDecisionApproved}}
		blocked, err := IsReviewBlockingCompletion(models.CertTypeEICR, data)
		require.NoError(t, err)
		assert.False(t, blocked)
	})

	t.Run("review-free type never blocks", func(t *testing.T) {
		blocked, err := IsReviewBlockingCompletion(models.CertTypeMWC, models.CertificateData{})
		require.NoError(t, err)
		assert.False(t, blocked)
	})
}

func TestCanMutateChildren(t *testing.T) {
	for _, status := range []models.CertificateStatus{models.CertStatusDraft, models.CertStatusUnderReview, models.CertStatusCompleted} {
		assert.True(t, CanMutateChildren(status).Allowed, string(status))
	}
	for _, status := range []models.CertificateStatus{models.CertStatusIssued, models.CertStatusVoid} {
		guard := CanMutateChildren(status)
		assert.False(t, guard.Allowed, string(status))
		assert.Equal(t, GuardCodeImmutable, guard.Code)
	}
}
