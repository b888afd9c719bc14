// This file defines the authentication service for the relay backend:
// register, login, liveness probe and logout.
package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/notesync/internal/client/syncmeta"
	"github.com/dmitrijs2005/notesync/internal/common"
)

const usernameKey = "relay.username"

// Relay is the account part of the relay remote store.
type Relay interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) error
	Ping(ctx context.Context) error
	Close() error
}

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Register: create a new account on the relay.
//   - Login: obtain an access token and remember the username locally.
//   - Ping: check relay liveness.
//   - Logout: forget the username and the sync bookkeeping, so that a later
//     login to another account starts with a full merge.
type AuthService interface {
	Register(ctx context.Context, username string, password []byte) error
	Login(ctx context.Context, username string, password []byte) error
	Username(ctx context.Context) (string, error)
	Ping(ctx context.Context) error
	Logout(ctx context.Context) error
	Close(ctx context.Context) error
}

type authService struct {
	relay Relay
	meta  metadata.Repository
}

func NewAuthService(relay Relay, meta metadata.Repository) AuthService {
	return &authService{relay: relay, meta: meta}
}

func (a *authService) Register(ctx context.Context, username string, password []byte) error {
	if username == "" || len(password) == 0 {
		return fmt.Errorf("%w: username and password are required", common.ErrValidation)
	}
	if err := a.relay.Register(ctx, username, string(password)); err != nil {
		return fmt.Errorf("register error: %w", err)
	}
	return nil
}

// Login authenticates against the relay and stores the username; the
// password is never persisted.
func (a *authService) Login(ctx context.Context, username string, password []byte) error {
	if err := a.relay.Login(ctx, username, string(password)); err != nil {
		return fmt.Errorf("login error: %w", err)
	}

	prev, ok, err := a.meta.Get(ctx, usernameKey)
	if err != nil {
		return err
	}
	if ok && prev != username {
		if err := syncmeta.New(a.meta).ResetSyncState(ctx); err != nil {
			return err
		}
	}
	return a.meta.Set(ctx, usernameKey, username)
}

func (a *authService) Username(ctx context.Context) (string, error) {
	u, _, err := a.meta.Get(ctx, usernameKey)
	return u, err
}

func (a *authService) Ping(ctx context.Context) error {
	return a.relay.Ping(ctx)
}

func (a *authService) Logout(ctx context.Context) error {
	if err := a.meta.Delete(ctx, usernameKey); err != nil {
		return err
	}
	return syncmeta.New(a.meta).ResetSyncState(ctx)
}

func (a *authService) Close(ctx context.Context) error {
	return a.relay.Close()
}
