package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
)

// Sync runs a cycle now. When the remote turns out to be encrypted it asks
// for the passphrase once and retries.
func (a *App) Sync(ctx context.Context, _ []string) error {
	res, err := a.orch.Sync(ctx, models.TriggerManual)
	if errors.Is(err, common.ErrEncryptionRequired) || errors.Is(err, common.ErrDecryptionFailed) {
		fmt.Fprintln(a.out, "Notes are encrypted.")
		if uerr := a.Unlock(ctx, nil); uerr != nil {
			return uerr
		}
		res, err = a.orch.Sync(ctx, models.TriggerManual)
	}
	if err != nil {
		if isConnectivity(err) {
			a.setMode(ModeOffline)
		}
		return err
	}
	a.setMode(ModeOnline)
	a.printResult(res)
	return nil
}

func (a *App) printResult(res *models.SyncResult) {
	fmt.Fprintf(a.out, "Sync %s: %d uploaded, %d downloaded (remote version %d, %s)\n",
		res.Action, res.Stats.Uploaded, res.Stats.Downloaded, res.RemoteVersion,
		res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	if n := len(res.Conflicts); n > 0 {
		fmt.Fprintf(a.out, "%d conflict(s) detected. Type 'conflicts' to review.\n", n)
	}
	if m := res.Media; m != nil {
		if len(m.Uploaded)+len(m.Downloaded)+len(m.DeletedRemote)+len(m.DeletedLocal) > 0 {
			fmt.Fprintf(a.out, "Attachments: %d uploaded, %d downloaded, %d removed remotely, %d removed locally\n",
				len(m.Uploaded), len(m.Downloaded), len(m.DeletedRemote), len(m.DeletedLocal))
		}
		for _, err := range m.Errors {
			fmt.Fprintln(a.out, "Attachment error:", err)
		}
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (a *App) Status(ctx context.Context, _ []string) error {
	meta, err := a.orch.Metadata(ctx)
	if err != nil {
		return err
	}
	conflicts, err := a.orch.Conflicts(ctx)
	if err != nil {
		return err
	}

	last := "never"
	if !meta.LastSync.IsZero() {
		last = meta.LastSync.Local().Format(time.DateTime)
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "backend\t%s\n", a.config.Backend)
	fmt.Fprintf(w, "last sync\t%s\n", last)
	fmt.Fprintf(w, "remote version\t%d\n", meta.RemoteSyncVersion)
	fmt.Fprintf(w, "auto sync\t%s\n", onOff(meta.AutoSync))
	fmt.Fprintf(w, "sync on startup\t%s\n", onOff(meta.SyncOnStartup))
	fmt.Fprintf(w, "encryption\t%s\n", onOff(meta.Encryption.Enabled))
	fmt.Fprintf(w, "passphrase cached\t%s\n", onOff(a.session.HasPassphrase()))
	fmt.Fprintf(w, "conflicts\t%d\n", len(conflicts))
	return w.Flush()
}

func (a *App) Conflicts(ctx context.Context, _ []string) error {
	conflicts, err := a.orch.Conflicts(ctx)
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		fmt.Fprintln(a.out, "No conflicts.")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLOCAL\tLOCAL MODIFIED\tREMOTE\tREMOTE MODIFIED")
	for _, c := range conflicts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", shortID(c.NoteID),
			noteTitle(c.LocalNote), c.LocalModified.Local().Format(time.DateTime),
			noteTitle(c.RemoteNote), c.RemoteModified.Local().Format(time.DateTime))
	}
	return w.Flush()
}

// Resolve applies one side of a conflict, or a manually merged note.
func (a *App) Resolve(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("resolve <id> local|remote|manual")
	}
	conflicts, err := a.orch.Conflicts(ctx)
	if err != nil {
		return err
	}
	var c *models.Conflict
	for _, it := range conflicts {
		if strings.HasPrefix(it.NoteID, args[0]) {
			if c != nil {
				return fmt.Errorf("%w: id prefix %s is ambiguous", common.ErrValidation, args[0])
			}
			c = it
		}
	}
	if c == nil {
		return fmt.Errorf("conflict %s: %w", args[0], common.ErrNotFound)
	}

	choice := models.Resolution(args[1])
	var manual *models.Note
	switch choice {
	case models.ResolutionLocal, models.ResolutionRemote:
	case models.ResolutionManual:
		if manual, err = a.mergeManually(c); err != nil {
			return err
		}
	default:
		return usage("resolve <id> local|remote|manual")
	}

	n, err := a.orch.ResolveConflict(ctx, c.NoteID, choice, manual)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Resolved %s with the %s version.\n", shortID(n.ID), choice)
	return nil
}

// mergeManually shows both versions and asks for the merged title and body.
func (a *App) mergeManually(c *models.Conflict) (*models.Note, error) {
	base := c.LocalNote
	if base == nil {
		base = c.RemoteNote
	}
	if base == nil {
		return nil, fmt.Errorf("%w: conflict has no versions", common.ErrValidation)
	}
	for _, side := range []struct {
		name string
		n    *models.Note
	}{{"local", c.LocalNote}, {"remote", c.RemoteNote}} {
		if side.n == nil {
			fmt.Fprintf(a.out, "--- %s: deleted\n", side.name)
			continue
		}
		fmt.Fprintf(a.out, "--- %s: %s\n%s\n", side.name, side.n.Title, side.n.Content)
	}

	title, err := getSimpleText(a.reader, fmt.Sprintf("Merged title [%s]", base.Title), a.out)
	if err != nil {
		return nil, err
	}
	body, err := getMultiline(a.reader, "Merged text", a.out)
	if err != nil {
		return nil, err
	}

	n := base.Clone()
	if title != "" {
		n.Title = title
	}
	n.Content = body
	return n, nil
}

// Unlock caches the encryption passphrase for this session.
func (a *App) Unlock(ctx context.Context, _ []string) error {
	pw, err := getSecret(a.out, "Passphrase")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)
	if err := a.orch.Unlock(ctx, pw); err != nil {
		if errors.Is(err, common.ErrDecryptionFailed) {
			return errors.New("wrong passphrase")
		}
		return err
	}
	return nil
}

func (a *App) Lock(_ context.Context, _ []string) error {
	a.orch.Lock()
	return nil
}

func (a *App) Encryption(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("encryption on|off")
	}
	switch args[0] {
	case "on":
		pw, err := a.newSecret("Passphrase")
		if err != nil {
			return err
		}
		defer common.WipeByteArray(pw)
		if err := a.orch.EnableEncryption(ctx, pw); err != nil {
			return err
		}
	case "off":
		if err := a.orch.DisableEncryption(ctx); err != nil {
			return err
		}
	default:
		return usage("encryption on|off")
	}
	fmt.Fprintln(a.out, "Encryption", args[0]+". The next sync rewrites the remote copy.")
	return nil
}

// Set changes a sync preference.
func (a *App) Set(ctx context.Context, args []string) error {
	if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
		return usage("set autosync|startup on|off")
	}
	on := args[1] == "on"
	switch args[0] {
	case "autosync":
		return a.orch.SetAutoSync(ctx, on)
	case "startup":
		return a.orch.SetSyncOnStartup(ctx, on)
	default:
		return usage("set autosync|startup on|off")
	}
}
