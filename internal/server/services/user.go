// Package services contains server-side business logic. This file implements
// UserService, which handles registration and login and issues access tokens.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/cryptox"
	"github.com/dmitrijs2005/notesync/internal/server/auth"
	"github.com/dmitrijs2005/notesync/internal/server/config"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	maxUsernameLength = 64
	minPasswordLength = 8
)

// UserService provides authentication-related operations.
type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

func validateCredentials(username, password string) error {
	switch {
	case strings.TrimSpace(username) == "" || username != strings.TrimSpace(username):
		return fmt.Errorf("%w: username must be non-empty without surrounding spaces", common.ErrValidation)
	case utf8.RuneCountInString(username) > maxUsernameLength:
		return fmt.Errorf("%w: username longer than %d characters", common.ErrValidation, maxUsernameLength)
	case len(password) < minPasswordLength:
		return fmt.Errorf("%w: password shorter than %d characters", common.ErrValidation, minPasswordLength)
	}
	return nil
}

// Register creates a new account. A taken username yields
// common.ErrAlreadyExists.
func (s *UserService) Register(ctx context.Context, username, password string) (*models.User, error) {
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	u := &models.User{
		ID:           uuid.NewString(),
		UserName:     username,
		PasswordHash: cryptox.HashPassword([]byte(password)),
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, u)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// Login checks the credentials and returns a signed access token. Unknown
// users and wrong passwords both yield common.ErrUnauthorized.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrUnauthorized
		}
		return "", fmt.Errorf("%w: %v", common.ErrInternal, err)
	}

	ok, err := cryptox.VerifyPassword([]byte(password), u.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInternal, err)
	}
	if !ok {
		return "", common.ErrUnauthorized
	}

	token, err := auth.GenerateToken(u.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInternal, err)
	}
	return token, nil
}

// UserIDFromToken resolves an access token to its user.
func (s *UserService) UserIDFromToken(token string) (string, error) {
	return auth.GetUserIDFromToken(token, s.jwtSecret)
}
