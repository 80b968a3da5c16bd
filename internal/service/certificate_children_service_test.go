package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltdesk/voltdesk-api/internal/models"
	appErrors "github.com/voltdesk/voltdesk-api/pkg/errors"
)

type mockChecklistStore struct {
	items map[string]*models.ChecklistItem
}

func (m *mockChecklistStore) ListByCertificate(ctx context.Context, certificateID string) ([]models.ChecklistItem, error) {
	var out []models.ChecklistItem
	for _, item := range m.items {
		if item.CertificateID == certificateID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (m *mockChecklistStore) GetByID(ctx context.Context, id string) (*models.ChecklistItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *item
	return &copy, nil
}

func (m *mockChecklistStore) Create(ctx context.Context, item *models.ChecklistItem) error {
	if m.items == nil {
		m.items = make(map[string]*models.ChecklistItem)
	}
	if item.ID == "" {
		item.ID = fmt.Sprintf("item-%d", len(m.items)+1)
	}
	copy := *item
	m.items[item.ID] = &copy
	return nil
}

func (m *mockChecklistStore) Update(ctx context.Context, item *models.ChecklistItem) error {
	copy := *item
	m.items[item.ID] = &copy
	return nil
}

type mockObservationStore struct {
	observations map[string]*models.Observation
}

func (m *mockObservationStore) ListByCertificate(ctx context.Context, certificateID string) ([]models.Observation, error) {
	var out []models.Observation
	for _, obs := range m.observations {
		if obs.CertificateID == certificateID {
			out = append(out, *obs)
		}
	}
	return out, nil
}

func (m *mockObservationStore) GetByID(ctx context.Context, id string) (*models.Observation, error) {
	obs, ok := m.observations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *obs
	return &copy, nil
}

func (m *mockObservationStore) Create(ctx context.Context, obs *models.Observation) error {
	if m.observations == nil {
		m.observations = make(map[string]*models.Observation)
	}
	if obs.ID == "" {
		obs.ID = fmt.Sprintf("obs-%d", len(m.observations)+1)
	}
	copy := *obs
	m.observations[obs.ID] = &copy
	return nil
}

func (m *mockObservationStore) Update(ctx context.Context, obs *models.Observation) error {
	copy := *obs
	m.observations[obs.ID] = &copy
	return nil
}

type mockTestResultStore struct {
	results []models.TestResult
}

func (m *mockTestResultStore) ListByCertificate(ctx context.Context, certificateID string) ([]models.TestResult, error) {
	var out []models.TestResult
	for _, result := range m.results {
		if result.CertificateID == certificateID {
			out = append(out, result)
		}
	}
	return out, nil
}

func (m *mockTestResultStore) Create(ctx context.Context, result *models.TestResult) error {
	if result.ID == "" {
		result.ID = fmt.Sprintf("test-%d", len(m.results)+1)
	}
	m.results = append(m.results, *result)
	return nil
}

func childrenFixture(status models.CertificateStatus) (*CertificateChildrenService, *mockChecklistStore, *mockObservationStore, *mockTestResultStore) {
	cert := &models.Certificate{ID: "cert-1", CompanyID: "company-1", Type: models.CertTypeEICR, Status: status}
	checklist := &mockChecklistStore{}
	observations := &mockObservationStore{}
	tests := &mockTestResultStore{}
	svc := NewCertificateChildrenService(newMockCertStore(cert), checklist, observations, tests, nil, nil)
	return svc, checklist, observations, tests
}

func TestAddChecklistItem(t *testing.T) {
	svc, store, _, _ := childrenFixture(models.CertStatusDraft)

	item, err := svc.AddChecklistItem(context.Background(), "company-1", "cert-1", AddChecklistItemRequest{
		Section:   "1.1",
		Question:  "Condition of consumer unit",
		SortOrder: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AnswerUnset, item.Answer)
	assert.Equal(t, "cert-1", item.CertificateID)
	assert.Len(t, store.items, 1)
}

func TestAnswerChecklistItem(t *testing.T) {
	svc, store, _, _ := childrenFixture(models.CertStatusDraft)
	item, err := svc.AddChecklistItem(context.Background(), "company-1", "cert-1", AddChecklistItemRequest{Section: "1.1", Question: "Polarity confirmed"})
	require.NoError(t, err)

	answered, err := svc.AnswerChecklistItem(context.Background(), "company-1", "cert-1", item.ID, AnswerChecklistItemRequest{
		Answer: models.AnswerFail,
		Notes:  "reversed polarity on socket 3",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AnswerFail, answered.Answer)
	assert.Equal(t, "reversed polarity on socket 3", store.items[item.ID].Notes)
}

func TestAnswerChecklistItemRejectsInvalidAnswer(t *testing.T) {
	svc, _, _, _ := childrenFixture(models.CertStatusDraft)

	_, err := svc.AnswerChecklistItem(context.Background(), "company-1", "cert-1", "item-1", AnswerChecklistItemRequest{Answer: "MAYBE"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAnswerChecklistItemFromOtherCertificate(t *testing.T) {
	svc, store, _, _ := childrenFixture(models.CertStatusDraft)
	store.items = map[string]*models.ChecklistItem{
		"foreign": {ID: "foreign", CertificateID: "cert-9", Section: "1.1", Question: "Q"},
	}

	_, err := svc.AnswerChecklistItem(context.Background(), "company-1", "cert-1", "foreign", AnswerChecklistItemRequest{Answer: models.AnswerPass})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestAddObservation(t *testing.T) {
	svc, _, store, _ := childrenFixture(models.CertStatusDraft)

	obs, err := svc.AddObservation(context.Background(), "company-1", "cert-1", AddObservationRequest{
		Code:        models.ObsCodePotentialDanger,
		Location:    "Garage",
		Description: "damaged enclosure",
	})
	require.NoError(t, err)
	assert.Nil(t, obs.ResolvedAt)
	assert.Len(t, store.observations, 1)
}

func TestResolveObservation(t *testing.T) {
	svc, _, store, _ := childrenFixture(models.CertStatusDraft)
	obs, err := svc.AddObservation(context.Background(), "company-1", "cert-1", AddObservationRequest{
		Code: models.ObsCodeDanger, Location: "DB1", Description: "exposed live conductor",
	})
	require.NoError(t, err)

	resolved, err := svc.ResolveObservation(context.Background(), "company-1", "cert-1", obs.ID)
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	firstResolved := *resolved.ResolvedAt

	// Resolving twice is idempotent; the original timestamp is kept.
	again, err := svc.ResolveObservation(context.Background(), "company-1", "cert-1", obs.ID)
	require.NoError(t, err)
	require.NotNil(t, again.ResolvedAt)
	assert.Equal(t, firstResolved, *again.ResolvedAt)
	assert.Equal(t, firstResolved, *store.observations[obs.ID].ResolvedAt)
}

func TestAddTestResult(t *testing.T) {
	svc, _, _, store := childrenFixture(models.CertStatusCompleted)

	result, err := svc.AddTestResult(context.Background(), "company-1", "cert-1", AddTestResultRequest{
		CircuitRef: "C4",
		Readings:   models.TestReadings{"zs_ohms": 1.1, "rcd_trip_ms": 28},
	})
	require.NoError(t, err)
	assert.Equal(t, "C4", result.CircuitRef)
	assert.Len(t, store.results, 1)
}

func TestChildMutationsBlockedOnFinalCertificates(t *testing.T) {
	for _, status := range []models.CertificateStatus{models.CertStatusIssued, models.CertStatusVoid} {
		t.Run(string(status), func(t *testing.T) {
			svc, _, _, _ := childrenFixture(status)

			var appErr *appErrors.Error
			_, err := svc.AddChecklistItem(context.Background(), "company-1", "cert-1", AddChecklistItemRequest{Section: "1.1", Question: "Q"})
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, appErrors.ErrImmutable.Code, appErr.Code)

			_, err = svc.AddObservation(context.Background(), "company-1", "cert-1", AddObservationRequest{Code: models.ObsCodeDanger, Location: "L", Description: "D"})
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, appErrors.ErrImmutable.Code, appErr.Code)

			_, err = svc.AddTestResult(context.Background(), "company-1", "cert-1", AddTestResultRequest{CircuitRef: "C1", Readings: models.TestReadings{"zs_ohms": 1}})
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, appErrors.ErrImmutable.Code, appErr.Code)

			_, err = svc.ResolveObservation(context.Background(), "company-1", "cert-1", "obs-1")
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, appErrors.ErrImmutable.Code, appErr.Code)
		})
	}
}

func TestListChildrenUnknownCertificate(t *testing.T) {
	svc, _, _, _ := childrenFixture(models.CertStatusDraft)

	_, err := svc.ListChecklist(context.Background(), "company-1", "missing")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
