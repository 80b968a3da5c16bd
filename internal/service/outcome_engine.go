package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/voltdesk/voltdesk-api/internal/models"
)

// OutcomeFact is one auditable input that contributed to a verdict.
type OutcomeFact struct {
	Source    string `json:"source"` // observation | checklist | test
	Reference string `json:"reference"`
	Detail    string `json:"detail"`
}

// OutcomeResult is the derived verdict plus every supporting fact, ordered by
// source (observations, checklist, tests) and insertion order so the
// explanation is reproducible.
type OutcomeResult struct {
	Outcome         models.CertificateOutcome `json:"outcome"`
	SupportingFacts []OutcomeFact             `json:"supporting_facts,omitempty"`
}

// ComputeOutcome combines observations, checklist answers and test results
// into a single verdict. Pure: no I/O, no clock, no randomness. The severity
// hierarchy is strictly ordered — a worse finding anywhere always overrides a
// better aggregate elsewhere; nothing is averaged or scored.
//
// Rules, in order:
//  1. Any unresolved C1 or C2 observation forces UNSATISFACTORY. A single
//     critical unresolved finding cannot be outvoted by passing checklists.
//  2. Otherwise any FAIL checklist answer forces UNSATISFACTORY.
//  3. Otherwise LIMITATION answers, unresolved C3 observations, or readings
//     outside the rule-set bounds force SATISFACTORY_LIMITATIONS.
//  4. Otherwise SATISFACTORY.
func ComputeOutcome(certType models.CertificateType, observations []models.Observation, checklist []models.ChecklistItem, testResults []models.TestResult) (OutcomeResult, error) {
	policy, err := PolicyFor(certType)
	if err != nil {
		return OutcomeResult{}, err
	}

	var critical, failed, limited []OutcomeFact

	for _, obs := range observations {
		if !obs.Outstanding() {
			continue
		}
		fact := OutcomeFact{
			Source:    "observation",
			Reference: obs.Location,
			Detail:    fmt.Sprintf("unresolved %s observation: %s", obs.Code, obs.Description),
		}
		switch obs.Code {
		case models.ObsCodeDanger, models.ObsCodePotentialDanger:
			critical = append(critical, fact)
		case models.ObsCodeImprovement:
			limited = append(limited, fact)
		}
		// ADVISORY findings never affect the verdict.
	}

	for _, item := range checklist {
		switch item.Answer {
		case models.AnswerFail:
			failed = append(failed, OutcomeFact{
				Source:    "checklist",
				Reference: item.Section,
				Detail:    fmt.Sprintf("failed inspection item: %s", item.Question),
			})
		case models.AnswerLimitation:
			limited = append(limited, OutcomeFact{
				Source:    "checklist",
				Reference: item.Section,
				Detail:    fmt.Sprintf("accepted limitation on: %s", item.Question),
			})
		}
	}

	bounds := BoundsFor(policy.RuleSet)
	boundKeys := make([]string, 0, len(bounds))
	for key := range bounds {
		boundKeys = append(boundKeys, key)
	}
	sort.Strings(boundKeys)
	for _, result := range testResults {
		for _, key := range boundKeys {
			bound := bounds[key]
			value, ok := result.Readings[key]
			if !ok {
				continue
			}
			if bound.Min != nil && value < *bound.Min {
				limited = append(limited, OutcomeFact{
					Source:    "test",
					Reference: result.CircuitRef,
					Detail:    fmt.Sprintf("%s reading %.2f below minimum %.2f", key, value, *bound.Min),
				})
			}
			if bound.Max != nil && value > *bound.Max {
				limited = append(limited, OutcomeFact{
					Source:    "test",
					Reference: result.CircuitRef,
					Detail:    fmt.Sprintf("%s reading %.2f above maximum %.2f", key, value, *bound.Max),
				})
			}
		}
	}

	switch {
	case len(critical) > 0:
		return OutcomeResult{
			Outcome:         models.OutcomeUnsatisfactory,
			SupportingFacts: append(critical, failed...),
		}, nil
	case len(failed) > 0:
		return OutcomeResult{
			Outcome:         models.OutcomeUnsatisfactory,
			SupportingFacts: failed,
		}, nil
	case len(limited) > 0:
		return OutcomeResult{
			Outcome:         models.OutcomeSatisfactoryLimitations,
			SupportingFacts: limited,
		}, nil
	default:
		return OutcomeResult{Outcome: models.OutcomeSatisfactory}, nil
	}
}

// ExplainOutcome renders a human-readable explanation enumerating every
// supporting fact, so a non-satisfactory verdict is independently auditable.
func ExplainOutcome(result OutcomeResult) string {
	switch result.Outcome {
	case models.OutcomeSatisfactory:
		return "Satisfactory: all inspection items passed, no outstanding observations, all measurements within limits."
	case models.OutcomeSatisfactoryLimitations:
		return "Satisfactory with limitations: " + joinFacts(result.SupportingFacts)
	case models.OutcomeUnsatisfactory:
		return "Unsatisfactory: " + joinFacts(result.SupportingFacts)
	default:
		return string(result.Outcome)
	}
}

func joinFacts(facts []OutcomeFact) string {
	if len(facts) == 0 {
		return "no supporting facts recorded"
	}
	parts := make([]string, 0, len(facts))
	for _, fact := range facts {
		if fact.Reference != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", fact.Detail, fact.Reference))
			continue
		}
		parts = append(parts, fact.Detail)
	}
	return strings.Join(parts, "; ")
}
