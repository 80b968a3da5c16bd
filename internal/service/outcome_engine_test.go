package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltdesk/voltdesk-api/internal/models"
)

func TestComputeOutcomeSatisfactory(t *testing.T) {
	checklist := []models.ChecklistItem{
		{Section: "1.1", Question: "Condition of consumer unit", Answer: models.AnswerPass},
		{Section: "1.2", Question: "Presence of RCD protection", Answer: models.AnswerNA},
	}
	tests := []models.TestResult{
		{CircuitRef: "C1", Readings: models.TestReadings{"zs_ohms": 0.8, "insulation_resistance_mohm": 200}},
	}

	result, err := ComputeOutcome(models.CertTypeEICR, nil, checklist, tests)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSatisfactory, result.Outcome)
	assert.Empty(t, result.SupportingFacts)
}

func TestComputeOutcomeUnresolvedDangerForcesUnsatisfactory(t *testing.T) {
	observations := []models.Observation{
		{Code: models.ObsCodeDanger, Location: "DB1", Description: "exposed live conductor"},
	}
	// Every checklist item passing cannot outvote a C1 finding.
	checklist := []models.ChecklistItem{
		{Section: "1.1", Question: "Condition of consumer unit", Answer: models.AnswerPass},
		{Section: "1.2", Question: "Earthing conductor present", Answer: models.AnswerPass},
	}

	result, err := ComputeOutcome(models.CertTypeEICR, observations, checklist, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnsatisfactory, result.Outcome)
	require.Len(t, result.SupportingFacts, 1)
	assert.Equal(t, "observation", result.SupportingFacts[0].Source)
	assert.Contains(t, result.SupportingFacts[0].Detail, "C1")
}

func TestComputeOutcomeResolvedObservationIsIgnored(t *testing.T) {
	resolved := time.Now()
	observations := []models.Observation{
		{Code: models.ObsCodeDanger, Location: "DB1", Description: "exposed live conductor", ResolvedAt: &resolved},
		{Code: models.ObsCodeAdvisory, Location: "DB2", Description: "label missing"},
	}

	result, err := ComputeOutcome(models.CertTypeEICR, observations, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSatisfactory, result.Outcome)
}

func TestComputeOutcomeFailedChecklistForcesUnsatisfactory(t *testing.T) {
	checklist := []models.ChecklistItem{
		{Section: "2.1", Question: "Polarity confirmed", Answer: models.AnswerFail},
	}

	result, err := ComputeOutcome(models.CertTypeEIC, nil, checklist, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnsatisfactory, result.Outcome)
	require.Len(t, result.SupportingFacts, 1)
	assert.Equal(t, "checklist", result.SupportingFacts[0].Source)
}

func TestComputeOutcomeLimitationsDowngradeToSatisfactoryLimitations(t *testing.T) {
	cases := []struct {
		name         string
		observations []models.Observation
		checklist    []models.ChecklistItem
		tests        []models.TestResult
	}{
		{
			name:      "limitation answer",
			checklist: []models.ChecklistItem{{Section: "3.1", Question: "Under-floor wiring inspected", Answer: models.AnswerLimitation}},
		},
		{
			name:         "unresolved C3",
			observations: []models.Observation{{Code: models.ObsCodeImprovement, Location: "Kitchen", Description: "no RCD on socket circuit"}},
		},
		{
			name:  "reading out of bounds",
			tests: []models.TestResult{{CircuitRef: "C4", Readings: models.TestReadings{"zs_ohms": 2.1}}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ComputeOutcome(models.CertTypeEICR, tc.observations, tc.checklist, tc.tests)
			require.NoError(t, err)
			assert.Equal(t, models.OutcomeSatisfactoryLimitations, result.Outcome)
			assert.NotEmpty(t, result.SupportingFacts)
		})
	}
}

func TestComputeOutcomeSeverityOverridesLimitations(t *testing.T) {
	observations := []models.Observation{
		{Code: models.ObsCodePotentialDanger, Location: "Garage", Description: "damaged enclosure"},
	}
	checklist := []models.ChecklistItem{
		{Section: "3.1", Question: "Under-floor wiring inspected", Answer: models.AnswerLimitation},
	}

	result, err := ComputeOutcome(models.CertTypeEICR, observations, checklist, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnsatisfactory, result.Outcome)
}

func TestComputeOutcomeRuleSetBoundsPerType(t *testing.T) {
	// duration_minutes only bounds emergency-lighting rule sets; a wiring
	// certificate ignores the key entirely.
	tests := []models.TestResult{
		{CircuitRef: "EM1", Readings: models.TestReadings{"duration_minutes": 90}},
	}

	wiring, err := ComputeOutcome(models.CertTypeEIC, nil, nil, tests)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSatisfactory, wiring.Outcome)

	lighting, err := ComputeOutcome(models.CertTypeEmergencyLightPeriodic, nil, nil, tests)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSatisfactoryLimitations, lighting.Outcome)
}

func TestComputeOutcomeUnknownTypeFailsLoudly(t *testing.T) {
	_, err := ComputeOutcome(models.CertificateType("GAS_SAFETY"), nil, nil, nil)
	assert.Error(t, err)
}

func TestComputeOutcomeIsDeterministic(t *testing.T) {
	observations := []models.Observation{
		{Code: models.ObsCodeImprovement, Location: "Hall", Description: "aged wiring"},
	}
	checklist := []models.ChecklistItem{
		{Section: "1.1", Question: "Main switch accessible", Answer: models.AnswerLimitation},
	}
	tests := []models.TestResult{
		{CircuitRef: "C2", Readings: models.TestReadings{"insulation_resistance_mohm": 0.5, "rcd_trip_ms": 400}},
	}

	first, err := ComputeOutcome(models.CertTypeEICR, observations, checklist, tests)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ComputeOutcome(models.CertTypeEICR, observations, checklist, tests)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestExplainOutcomeEnumeratesFacts(t *testing.T) {
	result := OutcomeResult{
		Outcome: models.OutcomeUnsatisfactory,
		SupportingFacts: []OutcomeFact{
			{Source: "observation", Reference: "DB1", Detail: "unresolved C1 observation: exposed live conductor"},
			{Source: "checklist", Reference: "2.1", Detail: "failed inspection item: Polarity confirmed"},
		},
	}

	reason := ExplainOutcome(result)
	assert.Contains(t, reason, "Unsatisfactory")
	assert.Contains(t, reason, "exposed live conductor")
	assert.Contains(t, reason, "Polarity confirmed")

	satisfied := ExplainOutcome(OutcomeResult{Outcome: models.OutcomeSatisfactory})
	assert.Contains(t, satisfied, "Satisfactory")
}
