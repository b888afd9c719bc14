package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/notesync/internal/client/config"
	"github.com/dmitrijs2005/notesync/internal/client/media"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/remote"
	"github.com/dmitrijs2005/notesync/internal/client/services"
	"github.com/dmitrijs2005/notesync/internal/client/store"
	"github.com/dmitrijs2005/notesync/internal/client/syncer"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/filex"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config      *config.Config
	log         logging.Logger
	store       *store.Store
	session     *syncer.Session
	notes       services.NoteService
	authService services.AuthService
	orch        *syncer.Orchestrator
	sched       *syncer.Scheduler
	watcher     *media.Watcher
	closers     []func() error

	reader *bufio.Reader
	out    io.Writer

	mu       sync.Mutex
	mode     Mode
	userName string
}

// NewApp opens the data directory, the local database and the configured
// remote, and wires the sync engine. Only one App may hold a data directory.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	a := &App{config: c, log: log, reader: bufio.NewReader(os.Stdin), out: os.Stdout}

	if err := a.open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	c := a.config
	if _, err := filex.EnsureDir(c.DataDir); err != nil {
		return err
	}
	mediaDir, err := filex.EnsureDir(c.MediaDir())
	if err != nil {
		return err
	}

	session, err := syncer.NewSession(c.DataDir)
	if err != nil {
		return err
	}
	a.session = session
	a.closers = append(a.closers, session.Close)

	st, err := store.Open(ctx, c.DatabasePath())
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	if c.ConversationMaxAge > 0 {
		if n, err := st.PruneConversations(ctx, c.ConversationMaxAge); err != nil {
			a.log.Warn(ctx, "conversation pruning failed", "error", err)
		} else if n > 0 {
			a.log.Info(ctx, "old conversations pruned", "count", n)
		}
	}

	rs, relay, err := openRemote(ctx, c)
	if err != nil {
		return err
	}
	if relay != nil {
		a.authService = services.NewAuthService(relay, st.Metadata)
		a.closers = append(a.closers, relay.Close)
		if a.userName, err = a.authService.Username(ctx); err != nil {
			return err
		}
	}

	var changes <-chan struct{}
	if w, err := media.NewWatcher(mediaDir, c.MediaDebounce, a.log); err != nil {
		a.log.Warn(ctx, "media watcher disabled", "error", err)
	} else {
		a.watcher = w
		a.closers = append(a.closers, w.Close)
		changes = w.Changes()
	}

	a.wire(st, session, rs, media.NewReconciler(mediaDir, rs, c.MediaWorkers, a.log), changes)
	return nil
}

// wire builds the services and the sync engine over an opened store.
func (a *App) wire(st *store.Store, session *syncer.Session, rs remote.Store, rec syncer.MediaReconciler, changes <-chan struct{}) {
	c := a.config
	a.notes = services.NewNoteService(st)
	a.orch = syncer.New(session, st, rs, a.log, syncer.Options{
		ProbeTimeout: c.ProbeTimeout,
		Media:        rec,
	})
	a.sched = syncer.NewScheduler(a.orch, syncer.SchedulerConfig{
		SyncInterval:        c.SyncInterval,
		StartupProbeTimeout: c.StartupProbeTimeout,
		ShutdownTimeout:     c.ShutdownTimeout,
	}, changes, a.log)
}

// openRemote returns the remote store for the configured backend. relay is
// non-nil only for the grpc backend, which has an account to log into.
func openRemote(ctx context.Context, c *config.Config) (remote.Store, *remote.GRPCStore, error) {
	switch c.Backend {
	case config.BackendS3:
		s, err := remote.NewS3Store(ctx, remote.S3Config{
			Endpoint:     c.S3.Endpoint,
			Region:       c.S3.Region,
			Bucket:       c.S3.Bucket,
			AccessKey:    c.S3.AccessKey,
			SecretKey:    c.S3.SecretKey,
			SessionToken: c.S3.SessionToken,
			Prefix:       c.S3.Prefix,
			UsePathStyle: c.S3.UsePathStyle,
		})
		return s, nil, err
	case config.BackendGRPC:
		s, err := remote.NewGRPCStore(c.RelayAddr)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.BackendMemory:
		return remote.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown backend %q", common.ErrValidation, c.Backend)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != mode {
		a.mode = mode
		a.log.Info(context.Background(), "connectivity changed", "mode", mode)
	}
}

func (a *App) getStatus() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	if a.session != nil && a.session.HasPassphrase() {
		s += "unlocked "
	}
	s += string(a.mode)
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

func (a *App) hasAccount() bool {
	return a.authService != nil
}

// Run starts background sync, serves the REPL until exit and then shuts the
// scheduler down, which may run one final cycle.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(a.out, "Welcome to notesync (type 'help' for commands)")

	if a.watcher != nil {
		go a.watcher.Run(ctx)
	}
	go a.watchEvents(ctx)

	if a.hasAccount() {
		if err := a.Login(ctx, nil); err != nil {
			fmt.Fprintln(a.out, "Login failed:", err)
		}
	}
	a.sched.Start(ctx)

	runREPL(ctx, a, a.getStatus, a.reader)

	fmt.Fprintln(a.out, "Syncing before exit...")
	if err := a.sched.Shutdown(context.WithoutCancel(ctx)); err != nil {
		a.log.Warn(ctx, "shutdown incomplete", "error", err)
	}
}

// watchEvents reports background cycles. Manual syncs print their own
// result.
func (a *App) watchEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.orch.Events():
			a.handleEvent(ev)
		}
	}
}

func (a *App) handleEvent(ev models.Event) {
	switch ev.Kind {
	case models.EventCompleted:
		a.setMode(ModeOnline)
	case models.EventFailed:
		if isConnectivity(ev.Err) {
			a.setMode(ModeOffline)
		}
	}

	if ev.Result == nil || ev.Result.Trigger == models.TriggerManual {
		return
	}
	switch ev.Kind {
	case models.EventDataUpdated:
		fmt.Fprintln(a.out, "\nNotes were updated from another device.")
	case models.EventPassphraseRequired:
		fmt.Fprintln(a.out, "\nRemote notes are encrypted. Type 'unlock' to enter the passphrase.")
	case models.EventCompleted:
		if ev.Result != nil && len(ev.Result.Conflicts) > 0 {
			fmt.Fprintf(a.out, "\n%d conflict(s) detected. Type 'conflicts' to review.\n", len(ev.Result.Conflicts))
		}
	}
}

func isConnectivity(err error) bool {
	return errors.Is(err, common.ErrOffline) || errors.Is(err, common.ErrUnavailable)
}
