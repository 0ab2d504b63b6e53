package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mailrelay/pulsewire/internal/domain"
	"github.com/mailrelay/pulsewire/pkg/logger"

	"aidanwoods.dev/go-paseto"
)

var (
	ErrSessionExpired = errors.New("session expired")
	ErrUserNotFound   = errors.New("user not found")
)

type AuthService struct {
	repo          domain.AuthRepository
	workspaceRepo domain.WorkspaceRepository
	logger        logger.Logger
	privateKey    paseto.V4AsymmetricSecretKey
	publicKey     paseto.V4AsymmetricPublicKey
}

type AuthServiceConfig struct {
	Repository          domain.AuthRepository
	WorkspaceRepository domain.WorkspaceRepository
	PrivateKey          []byte
	PublicKey           []byte
	Logger              logger.Logger
}

func NewAuthService(cfg AuthServiceConfig) (*AuthService, error) {
	privateKey, err := paseto.NewV4AsymmetricSecretKeyFromBytes(cfg.PrivateKey)
	if err != nil {
		if cfg.Logger != nil {
			cfg.Logger.WithField("error", err.Error()).Error("Error creating PASETO private key")
		}
		return nil, err
	}

	publicKey, err := paseto.NewV4AsymmetricPublicKeyFromBytes(cfg.PublicKey)
	if err != nil {
		if cfg.Logger != nil {
			cfg.Logger.WithField("error", err.Error()).Error("Error creating PASETO public key")
		}
		return nil, err
	}

	return &AuthService{
		repo:          cfg.Repository,
		workspaceRepo: cfg.WorkspaceRepository,
		logger:        cfg.Logger,
		privateKey:    privateKey,
		publicKey:     publicKey,
	}, nil
}

func (s *AuthService) AuthenticateUserFromContext(ctx context.Context) (*domain.User, error) {
	userID, ok := ctx.Value(domain.UserIDKey).(string)
	if !ok || userID == "" {
		return nil, ErrUserNotFound
	}
	userType, ok := ctx.Value(domain.UserTypeKey).(string)
	if !ok || userType == "" {
		return nil, ErrUserNotFound
	}
	if userType == string(domain.UserTypeUser) {
		sessionID, ok := ctx.Value(domain.SessionIDKey).(string)
		if !ok || sessionID == "" {
			return nil, ErrUserNotFound
		}
		return s.VerifyUserSession(ctx, userID, sessionID)
	} else if userType == string(domain.UserTypeAPIKey) {
		return s.GetUserByID(ctx, userID)
	}
	return nil, ErrUserNotFound
}

// AuthenticateUserForWorkspace checks if the user exists and the session is valid for a specific workspace
func (s *AuthService) AuthenticateUserForWorkspace(ctx context.Context, workspaceID string) (context.Context, *domain.User, *domain.UserWorkspace, error) {
	// Check if user is already set in context for this workspace
	if workspaceUser, ok := ctx.Value(domain.WorkspaceUserKey(workspaceID)).(*domain.User); ok && workspaceUser != nil {
		// Also check if we have the userWorkspace in context
		if userWorkspace, ok := ctx.Value(domain.UserWorkspaceKey).(*domain.UserWorkspace); ok && userWorkspace != nil {
			return ctx, workspaceUser, userWorkspace, nil
		}
	}

	user, err := s.AuthenticateUserFromContext(ctx)
	if err != nil {
		return ctx, nil, nil, err
	}

	// First check if the workspace exists - this will return ErrWorkspaceNotFound if it doesn't exist
	_, err = s.workspaceRepo.GetByID(ctx, workspaceID)
	if err != nil {
		return ctx, nil, nil, err
	}

	// Then check if the user is a member of the workspace
	userWorkspace, err := s.workspaceRepo.GetUserWorkspace(ctx, user.ID, workspaceID)
	if err != nil {
		return ctx, nil, nil, err
	}

	// Store user and user workspace in context for future calls - return the new context to the caller
	newCtx := context.WithValue(ctx, domain.WorkspaceUserKey(workspaceID), user)
	newCtx = context.WithValue(newCtx, domain.UserWorkspaceKey, userWorkspace)
	return newCtx, user, userWorkspace, nil
}

// VerifyUserSession checks if the user exists and the session is valid
func (s *AuthService) VerifyUserSession(ctx context.Context, userID, sessionID string) (*domain.User, error) {
	// First check if the session is valid and not expired
	expiresAt, err := s.repo.GetSessionByID(ctx, sessionID, userID)

	if err == sql.ErrNoRows {
		if s.logger != nil {
			s.logger.WithField("user_id", userID).WithField("session_id", sessionID).Error("Session not found")
		}
		return nil, ErrSessionExpired
	}
	if err != nil {
		if s.logger != nil {
			s.logger.WithField("user_id", userID).WithField("session_id", sessionID).WithField("error", err.Error()).Error("Failed to query session")
		}
		return nil, err
	}

	// Check if session is expired
	if time.Now().After(*expiresAt) {
		if s.logger != nil {
			s.logger.WithField("user_id", userID).WithField("session_id", sessionID).WithField("expires_at", expiresAt).Error("Session expired")
		}
		return nil, ErrSessionExpired
	}

	// Get user details
	user, err := s.repo.GetUserByID(ctx, userID)

	if err == sql.ErrNoRows {
		if s.logger != nil {
			s.logger.WithField("user_id", userID).Error("User not found")
		}
		return nil, ErrUserNotFound
	}
	if err != nil {
		if s.logger != nil {
			s.logger.WithField("user_id", userID).WithField("error", err.Error()).Error("Failed to query user")
		}
		return nil, err
	}

	return user, nil
}

// GenerateUserAuthToken generates a PASETO authentication token for a browser session
func (s *AuthService) GenerateUserAuthToken(user *domain.User, sessionID string, expiresAt time.Time) string {
	token := paseto.NewToken()
	token.SetIssuedAt(time.Now())
	token.SetNotBefore(time.Now())
	token.SetExpiration(expiresAt)
	token.SetString(string(domain.UserIDKey), user.ID)
	token.SetString(string(domain.UserTypeKey), string(domain.UserTypeUser))
	token.SetString(string(domain.SessionIDKey), sessionID)
	token.SetString("email", user.Email)

	signed := token.V4Sign(s.privateKey, nil)
	if signed == "" && s.logger != nil {
		s.logger.WithField("user_id", user.ID).WithField("session_id", sessionID).Error("Failed to sign authentication token")
	}

	return signed
}

// GenerateAPIAuthToken generates a long-lived PASETO token for API key authentication
func (s *AuthService) GenerateAPIAuthToken(user *domain.User) string {
	token := paseto.NewToken()
	token.SetIssuedAt(time.Now())
	token.SetNotBefore(time.Now())
	token.SetExpiration(time.Now().Add(time.Hour * 24 * 365 * 10))
	token.SetString(string(domain.UserIDKey), user.ID)
	token.SetString(string(domain.UserTypeKey), string(domain.UserTypeAPIKey))
	token.SetString("email", user.Email)

	signed := token.V4Sign(s.privateKey, nil)
	if signed == "" && s.logger != nil {
		s.logger.WithField("user_id", user.ID).Error("Failed to sign API token")
	}

	return signed
}

// GenerateInvitationToken generates a PASETO token for a workspace invitation
func (s *AuthService) GenerateInvitationToken(invitation *domain.WorkspaceInvitation) string {
	token := paseto.NewToken()
	token.SetIssuedAt(time.Now())
	token.SetNotBefore(time.Now())
	token.SetExpiration(invitation.ExpiresAt)
	token.SetString("invitation_id", invitation.ID)
	token.SetString("workspace_id", invitation.WorkspaceID)
	token.SetString("email", invitation.Email)

	signed := token.V4Sign(s.privateKey, nil)
	if signed == "" && s.logger != nil {
		s.logger.WithField("invitation_id", invitation.ID).Error("Failed to sign invitation token")
	}

	return signed
}

// ValidateInvitationToken validates a PASETO invitation token and returns its claims
func (s *AuthService) ValidateInvitationToken(tokenString string) (invitationID, workspaceID, email string, err error) {
	parser := paseto.NewParser()
	parser.AddRule(paseto.NotExpired())

	verified, err := parser.ParseV4Public(s.publicKey, tokenString, nil)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid invitation token: %w", err)
	}

	invitationID, err = verified.GetString("invitation_id")
	if err != nil {
		return "", "", "", fmt.Errorf("invalid invitation token: missing invitation_id")
	}
	workspaceID, err = verified.GetString("workspace_id")
	if err != nil {
		return "", "", "", fmt.Errorf("invalid invitation token: missing workspace_id")
	}
	email, err = verified.GetString("email")
	if err != nil {
		return "", "", "", fmt.Errorf("invalid invitation token: missing email")
	}

	return invitationID, workspaceID, email, nil
}

// GetUserByID retrieves a user by their ID
func (s *AuthService) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	// Delegate to the repository
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		if s.logger != nil {
			s.logger.WithField("error", err.Error()).WithField("user_id", userID).Error("Failed to get user by ID")
		}
		return nil, err
	}
	return user, nil
}

// GetPrivateKey returns the service's PASETO signing key
func (s *AuthService) GetPrivateKey() paseto.V4AsymmetricSecretKey {
	return s.privateKey
}
