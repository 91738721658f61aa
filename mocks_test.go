package users_test

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	users "github.com/goliatone/go-users"
)

// MockUserStore implements users.UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) FindByEmail(ctx context.Context, siteID int64, email string, active bool) ([]*users.User, error) {
	args := m.Called(ctx, siteID, email, active)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*users.User), args.Error(1)
}

func (m *MockUserStore) TrackAttemptedLogin(ctx context.Context, user *users.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserStore) TrackSuccessfulLogin(ctx context.Context, user *users.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserStore) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	args := m.Called(ctx, id, online)
	return args.Error(0)
}

// MockActivitySink captures emitted events
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event users.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// plainPasswords compares passwords verbatim, skipping bcrypt
type plainPasswords struct{}

func (plainPasswords) HashPassword(password string) (string, error) {
	return "plain:" + password, nil
}

func (plainPasswords) ComparePasswordAndHash(password, hash string) error {
	if hash != "plain:"+password {
		return users.ErrMismatchedHashAndPassword
	}
	return nil
}

func newUser(email, password string) *users.User {
	hash, _ := plainPasswords{}.HashPassword(password)
	return &users.User{
		ID:           uuid.New(),
		Email:        email,
		SiteID:       1,
		PasswordHash: hash,
		IsActive:     true,
	}
}
