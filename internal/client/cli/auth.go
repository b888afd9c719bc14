package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/common"
)

// getSimpleText, getMultiline and getSecret are indirections used to
// facilitate testing.
var (
	getSimpleText = GetSimpleText
	getMultiline  = GetMultiline
	getSecret     = GetSecret
)

func (a *App) requireAccount() error {
	if !a.hasAccount() {
		return fmt.Errorf("%w: backend %q has no account", common.ErrValidation, a.config.Backend)
	}
	return nil
}

func (a *App) credentials(args []string) (string, []byte, error) {
	userName := ""
	if len(args) > 0 {
		userName = args[0]
	} else {
		var err error
		if userName, err = getSimpleText(a.reader, "Enter username", a.out); err != nil {
			return "", nil, err
		}
	}
	password, err := getSecret(a.out, "Enter password")
	if err != nil {
		return "", nil, err
	}
	return userName, password, nil
}

// Register prompts for a username and password and creates a relay account.
// The password is wiped before returning.
func (a *App) Register(ctx context.Context, args []string) error {
	if err := a.requireAccount(); err != nil {
		return err
	}
	userName, password, err := a.credentials(args)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Register(ctx, userName, password); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Success!")
	return nil
}

// Login authenticates with the relay. Switching to another account resets
// the sync bookkeeping so the next cycle merges with that account's notes.
func (a *App) Login(ctx context.Context, args []string) error {
	if err := a.requireAccount(); err != nil {
		return err
	}
	if len(args) == 0 && a.userName != "" {
		args = []string{a.userName}
	}
	userName, password, err := a.credentials(args)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Login(ctx, userName, password); err != nil {
		a.log.Info(ctx, "login unsuccessful", "error", err)
		if isConnectivity(err) {
			a.setMode(ModeOffline)
		}
		return err
	}

	a.mu.Lock()
	a.userName = userName
	a.mu.Unlock()
	a.setMode(ModeOnline)
	fmt.Fprintln(a.out, "Logged in as", userName)
	return nil
}

// Logout forgets the account and the sync state on this device. Local notes
// are kept.
func (a *App) Logout(ctx context.Context, _ []string) error {
	if err := a.requireAccount(); err != nil {
		return err
	}
	if err := a.authService.Logout(ctx); err != nil {
		return err
	}
	a.orch.Lock()

	a.mu.Lock()
	a.userName = ""
	a.mu.Unlock()
	return nil
}
