package service

import (
	"context"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/mailrelay/pulsewire/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) AuthenticateUserFromContext(ctx context.Context) (*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockAuthService) AuthenticateUserForWorkspace(ctx context.Context, workspaceID string) (context.Context, *domain.User, *domain.UserWorkspace, error) {
	args := m.Called(ctx, workspaceID)

	var user *domain.User
	if args.Get(1) != nil {
		user = args.Get(1).(*domain.User)
	}
	var userWorkspace *domain.UserWorkspace
	if args.Get(2) != nil {
		userWorkspace = args.Get(2).(*domain.UserWorkspace)
	}

	resultCtx := ctx
	if args.Get(0) != nil {
		resultCtx = args.Get(0).(context.Context)
	}

	return resultCtx, user, userWorkspace, args.Error(3)
}

func (m *MockAuthService) VerifyUserSession(ctx context.Context, userID, sessionID string) (*domain.User, error) {
	args := m.Called(ctx, userID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockAuthService) GenerateUserAuthToken(user *domain.User, sessionID string, expiresAt time.Time) string {
	args := m.Called(user, sessionID, expiresAt)
	return args.String(0)
}

func (m *MockAuthService) GenerateAPIAuthToken(user *domain.User) string {
	args := m.Called(user)
	return args.String(0)
}

func (m *MockAuthService) GenerateInvitationToken(invitation *domain.WorkspaceInvitation) string {
	args := m.Called(invitation)
	return args.String(0)
}

func (m *MockAuthService) ValidateInvitationToken(tokenString string) (invitationID, workspaceID, email string, err error) {
	args := m.Called(tokenString)
	return args.String(0), args.String(1), args.String(2), args.Error(3)
}

func (m *MockAuthService) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockAuthService) GetPrivateKey() paseto.V4AsymmetricSecretKey {
	args := m.Called()
	return args.Get(0).(paseto.V4AsymmetricSecretKey)
}
