// Package auth owns password login and bearer token verification.
package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/jwt"
	"github.com/stockvn/paygate/pkg/logger"
)

const minPasswordLength = 8

func invalidCredentials() error { return xerrors.Unauthorized("invalid email or password") }

type Service struct {
	logger *logger.Logger
	users  models.UserRepository
	tokens *jwt.Service
	cost   int
}

func NewService(users models.UserRepository, tokens *jwt.Service, logger *logger.Logger) *Service {
	return &Service{logger: logger, users: users, tokens: tokens, cost: bcrypt.DefaultCost}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser registers an account with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, email, password, fullName, telegramUsername string) (*models.User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, xerrors.InvalidInput("invalid email %q", email)
	}
	if len(password) < minPasswordLength {
		return nil, xerrors.InvalidInput("password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:            email,
		PasswordHash:     string(hash),
		FullName:         strings.TrimSpace(fullName),
		TelegramUsername: strings.TrimPrefix(strings.TrimSpace(telegramUsername), "@"),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, xerrors.ErrDuplicate) {
			return nil, xerrors.InvalidInput("email %s is already registered", email)
		}
		return nil, err
	}
	s.logger.Info("User created", "user_id", user.ID, "email", user.Email)
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*models.AuthTokens, error) {
	if email == "" || password == "" {
		return nil, xerrors.InvalidInput("email and password are required")
	}
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("Failed login", "user_id", user.ID)
		return nil, invalidCredentials()
	}
	return s.issue(user.ID)
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	claims, err := s.tokens.ValidateToken(refreshToken, jwt.TokenTypeRefresh)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindUnauthorized, err, "invalid refresh token")
	}
	if _, err := s.users.GetUser(ctx, claims.UserID); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.Unauthorized("unknown user")
		}
		return nil, err
	}
	return s.issue(claims.UserID)
}

// Authenticate resolves an access token to its user id.
func (s *Service) Authenticate(token string) (string, error) {
	claims, err := s.tokens.ValidateToken(token, jwt.TokenTypeAccess)
	if err != nil {
		return "", xerrors.Wrap(xerrors.KindUnauthorized, err, "invalid access token")
	}
	return claims.UserID, nil
}

func (s *Service) issue(userID string) (*models.AuthTokens, error) {
	pair, err := s.tokens.GeneratePair(userID)
	if err != nil {
		return nil, err
	}
	return &models.AuthTokens{
		UserID:       userID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresAt:    pair.ExpiresAt.Unix(),
	}, nil
}
