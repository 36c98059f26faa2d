package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rallyup/activityhub/internal/model"
	"rallyup/activityhub/internal/repository"
	"rallyup/activityhub/pkg/crypto"
	jwtpkg "rallyup/activityhub/pkg/jwt"
)

const minPasswordLength = 8

// TokenSet represents a set of tokens returned after authentication.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type RegisterInput struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
	Password  string
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (*TokenSet, *model.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error)
	Logout(ctx context.Context, refreshToken string) error
	// EnsureAdmin creates the bootstrap admin account unless a user with that email exists.
	EnsureAdmin(ctx context.Context, input RegisterInput) error
}

type authService struct {
	userRepo     repository.UserRepository
	sessionStore repository.SessionStore
	jwtManager   *jwtpkg.Manager
	logger       *zap.Logger
}

func NewAuthService(
	userRepo repository.UserRepository,
	sessionStore repository.SessionStore,
	jwtManager *jwtpkg.Manager,
	logger *zap.Logger,
) AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &authService{
		userRepo:     userRepo,
		sessionStore: sessionStore,
		jwtManager:   jwtManager,
		logger:       logger,
	}
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	return s.createUser(ctx, input, model.RoleUser)
}

func (s *authService) EnsureAdmin(ctx context.Context, input RegisterInput) error {
	_, err := s.userRepo.GetByEmail(ctx, strings.TrimSpace(input.Email))
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("check admin existence: %w", err)
	}
	user, err := s.createUser(ctx, input, model.RoleAdmin)
	if err != nil {
		return err
	}
	s.logger.Info("bootstrap admin created", zap.String("user_id", user.ID.String()))
	return nil
}

func (s *authService) createUser(ctx context.Context, input RegisterInput, role model.Role) (*model.User, error) {
	username, err := requiredField("username", input.Username)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	// Pre-check for friendlier conflict error; the unique index still decides.
	_, err = s.userRepo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrUserAlreadyExists
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("check user existence: %w", err)
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:     username,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*TokenSet, *model.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("find user: %w", err)
	}
	if !crypto.CheckPassword(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return tokens, user, nil
}

func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	claims, err := s.parseRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	userID, ok, err := s.sessionStore.Lookup(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if !ok || userID.String() != claims.Subject {
		return nil, ErrRefreshTokenInvalid
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefreshTokenInvalid
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	// Rotate: the presented refresh token is single-use.
	if err := s.sessionStore.Revoke(ctx, claims.ID); err != nil {
		return nil, fmt.Errorf("revoke session: %w", err)
	}
	return s.issueTokens(ctx, user)
}

func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.parseRefreshToken(refreshToken)
	if err != nil {
		return err
	}
	if err := s.sessionStore.Revoke(ctx, claims.ID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *authService) parseRefreshToken(token string) (*jwtpkg.Claims, error) {
	claims, err := s.jwtManager.Validate(token)
	if err != nil || claims.TokenType != jwtpkg.TokenTypeRefresh {
		return nil, ErrRefreshTokenInvalid
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, ErrRefreshTokenInvalid
	}
	return claims, nil
}

func (s *authService) issueTokens(ctx context.Context, user *model.User) (*TokenSet, error) {
	access, err := s.jwtManager.GenerateAccessToken(user.ID, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, claims, err := s.jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	if err := s.sessionStore.Save(ctx, claims.ID, user.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return &TokenSet{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwtManager.AccessTokenTTL().Seconds()),
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", invalid("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email is malformed")
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return invalid("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

var _ AuthService = (*authService)(nil)
