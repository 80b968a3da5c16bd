package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltdesk/voltdesk-api/internal/models"
	appErrors "github.com/voltdesk/voltdesk-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]*models.User
	listUsers []models.User
	listCount int
	listErr   error
}

func (m *mockUserRepo) List(ctx context.Context, companyID string, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	if m.listUsers != nil {
		return m.listUsers, m.listCount, nil
	}
	var users []models.User
	for _, u := range m.users {
		if u.CompanyID == companyID {
			users = append(users, *u)
		}
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if user, ok := m.users[id]; ok {
		user.Active = false
		return nil
	}
	return sql.ErrNoRows
}

func TestUserServiceList(t *testing.T) {
	repo := &mockUserRepo{listUsers: []models.User{{ID: "1", Email: "a@acme.co.uk"}}, listCount: 1}
	svc := NewUserService(repo, nil, nil, nil)

	users, pagination, err := svc.List(context.Background(), "company-1", models.UserFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestUserServiceGetScopedToCompany(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"1": {ID: "1", CompanyID: "company-1", Email: "a@acme.co.uk"},
	}}
	svc := NewUserService(repo, nil, nil, nil)

	user, err := svc.Get(context.Background(), "company-1", "1")
	require.NoError(t, err)
	assert.Equal(t, "1", user.ID)

	_, err = svc.Get(context.Background(), "company-2", "1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestUserServiceCreate(t *testing.T) {
	repo := &mockUserRepo{users: make(map[string]*models.User)}
	audit := &mockAuditSink{}
	svc := NewUserService(repo, audit, nil, nil)

	user, err := svc.Create(context.Background(), "company-1", CreateUserRequest{
		Email:    "USER@ACME.CO.UK",
		FullName: "New Engineer",
		Password: "longenough",
		Role:     models.RoleEngineer,
		Active:   true,
	}, "actor", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "user@acme.co.uk", user.Email)
	assert.Equal(t, "company-1", user.CompanyID)
	assert.NotEmpty(t, audit.logs)
}

func TestUserServiceCreateDuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"1": {ID: "1", CompanyID: "company-1", Email: "user@acme.co.uk"},
	}}
	svc := NewUserService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), "company-1", CreateUserRequest{
		Email:    "user@acme.co.uk",
		FullName: "Dup",
		Password: "longenough",
		Role:     models.RoleEngineer,
	}, "actor", models.LoginRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestUserServiceCreateRejectsUnknownRole(t *testing.T) {
	repo := &mockUserRepo{users: make(map[string]*models.User)}
	svc := NewUserService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), "company-1", CreateUserRequest{
		Email:    "user@acme.co.uk",
		FullName: "New",
		Password: "longenough",
		Role:     "SURVEYOR",
	}, "actor", models.LoginRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestUserServiceUpdate(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"1": {ID: "1", CompanyID: "company-1", Email: "a@acme.co.uk", FullName: "Old", Role: models.RoleEngineer, Active: true},
	}}
	audit := &mockAuditSink{}
	svc := NewUserService(repo, audit, nil, nil)

	active := false
	user, err := svc.Update(context.Background(), "company-1", "1", UpdateUserRequest{
		FullName: "New",
		Role:     models.RoleOfficeManager,
		Active:   &active,
	}, "actor", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleOfficeManager, user.Role)
	assert.False(t, user.Active)
	assert.NotEmpty(t, audit.logs)
}

func TestUserServiceDelete(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"1": {ID: "1", CompanyID: "company-1", Email: "a@acme.co.uk", FullName: "Old", Role: models.RoleEngineer, Active: true},
	}}
	audit := &mockAuditSink{}
	svc := NewUserService(repo, audit, nil, nil)

	err := svc.Delete(context.Background(), "company-1", "1", "actor", models.LoginRequest{})
	require.NoError(t, err)
	assert.False(t, repo.users["1"].Active)
	assert.NotEmpty(t, audit.logs)
}
