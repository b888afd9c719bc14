package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 2 * time.Second

// Watcher signals changes in the asset directory. Bursts of filesystem
// events are collapsed into one signal per debounce window.
type Watcher struct {
	fw       *fsnotify.Watcher
	debounce time.Duration
	out      chan struct{}
	log      logging.Logger
}

func NewWatcher(dir string, debounce time.Duration, log logging.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{
		fw:       fw,
		debounce: debounce,
		out:      make(chan struct{}, 1),
		log:      log.With("module", "media-watcher"),
	}, nil
}

// Changes delivers debounced change signals. A signal not yet consumed
// absorbs later ones.
func (w *Watcher) Changes() <-chan struct{} { return w.out }

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ignored(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn(ctx, "watcher error", "error", err)
		case <-fire:
			fire = nil
			select {
			case w.out <- struct{}{}:
			default:
			}
		}
	}
}

// ignored filters out temporary files and pure attribute changes.
func ignored(ev fsnotify.Event) bool {
	name := ev.Name
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return true
	}
	return ev.Op == fsnotify.Chmod
}

func (w *Watcher) Close() error {
	return w.fw.Close()
}
