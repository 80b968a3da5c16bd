package service

import (
	"fmt"
	"strings"

	"github.com/voltdesk/voltdesk-api/internal/models"
)

// Guard rejection codes, used by callers to select the error sentinel while
// surfacing Reason verbatim.
const (
	GuardCodeWrongStatus       = "WRONG_STATUS"
	GuardCodeReviewNotRequired = "REVIEW_NOT_REQUIRED"
	GuardCodeMissingFields     = "MISSING_FIELDS"
	GuardCodeRoleNotAllowed    = "ROLE_NOT_ALLOWED"
	GuardCodeImmutable         = "IMMUTABLE"
)

// GuardResult is the outcome of a transition guard. Guard rejections are
// routine business failures rendered to end users, never panics or opaque
// errors; Reason carries the precise requirement that failed.
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func guardOK() GuardResult {
	return GuardResult{Allowed: true}
}

func guardFail(code, reason string) GuardResult {
	return GuardResult{Allowed: false, Code: code, Reason: reason}
}

// ReadinessResult enumerates every unmet completion requirement so callers
// can present the full gap list, not just the first.
type ReadinessResult struct {
	OK      bool     `json:"ok"`
	Missing []string `json:"missing,omitempty"`
}

// CanSubmitForReview decides whether a certificate may enter review.
// The error return is reserved for programmer errors (unknown type).
func CanSubmitForReview(status models.CertificateStatus, certType models.CertificateType, data models.CertificateData) (GuardResult, error) {
	policy, err := PolicyFor(certType)
	if err != nil {
		return GuardResult{}, err
	}
	if status != models.CertStatusDraft {
		return guardFail(GuardCodeWrongStatus, fmt.Sprintf("certificate must be in status %s, current status is %s", models.CertStatusDraft, status)), nil
	}
	if !policy.ReviewRequired {
		return guardFail(GuardCodeReviewNotRequired, "review not required for this type"), nil
	}
	if missing := missingFields(data, policy.ReviewRequiredFields); len(missing) > 0 {
		return guardFail(GuardCodeMissingFields, "missing fields for review: "+strings.Join(missing, ", ")), nil
	}
	return guardOK(), nil
}

// CanReview decides whether the actor may record a review decision now.
func CanReview(status models.CertificateStatus, certType models.CertificateType, role models.UserRole) (GuardResult, error) {
	policy, err := PolicyFor(certType)
	if err != nil {
		return GuardResult{}, err
	}
	if !policy.ReviewRequired {
		return guardFail(GuardCodeReviewNotRequired, "review not required for this type"), nil
	}
	if status != models.CertStatusUnderReview {
		return guardFail(GuardCodeWrongStatus, fmt.Sprintf("certificate must be in status %s, current status is %s", models.CertStatusUnderReview, status)), nil
	}
	if !policy.AllowsReviewer(role) {
		return guardFail(GuardCodeRoleNotAllowed, fmt.Sprintf("role %s is not an approved reviewer for type %s", role, certType)), nil
	}
	return guardOK(), nil
}

// CertificateIsReadyForCompletion checks every registry-required field and
// returns the complete list of gaps.
func CertificateIsReadyForCompletion(certType models.CertificateType, data models.CertificateData) (ReadinessResult, error) {
	policy, err := PolicyFor(certType)
	if err != nil {
		return ReadinessResult{}, err
	}
	missing := missingFields(data, policy.RequiredFields)
	return ReadinessResult{OK: len(missing) == 0, Missing: missing}, nil
}

// IsReviewBlockingCompletion reports whether an unapproved mandatory review
// blocks completion. It is derived fresh from the embedded review metadata at
// every call site; no cached flag is trusted, because the review decision can
// change between submission and completion attempts.
func IsReviewBlockingCompletion(certType models.CertificateType, data models.CertificateData) (bool, error) {
	policy, err := PolicyFor(certType)
	if err != nil {
		return false, err
	}
	if !policy.ReviewRequired {
		return false, nil
	}
	return data.Review.Decision != models.ReviewDecisionApproved, nil
}

// CanMutateChildren enforces post-issue immutability for checklist items,
// observations and test results.
func CanMutateChildren(status models.CertificateStatus) GuardResult {
	if status == models.CertStatusIssued || status == models.CertStatusVoid {
		return guardFail(GuardCodeImmutable, fmt.Sprintf("certificate is %s and immutable", status))
	}
	return guardOK()
}

func missingFields(data models.CertificateData, required []string) []string {
	var missing []string
	for _, field := range required {
		if strings.TrimSpace(data.Field(field)) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}
