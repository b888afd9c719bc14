// Package media keeps the local attachment directory and the remote media
// collection in line with the attachments referenced from note bodies.
package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/remote"
	"github.com/dmitrijs2005/notesync/internal/filex"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Scheme prefixes attachment references in note content.
const Scheme = "attachment://"

const DefaultWorkers = 4

var refPattern = regexp.MustCompile(`attachment://([A-Za-z0-9._-]+)`)

// References returns the set of attachment IDs referenced from the notes.
func References(notes map[string]*models.Note) map[string]struct{} {
	refs := make(map[string]struct{})
	for _, n := range notes {
		for _, m := range refPattern.FindAllStringSubmatch(n.Content, -1) {
			if validID(m[1]) {
				refs[m[1]] = struct{}{}
			}
		}
	}
	return refs
}

// validID rejects names that would escape the asset directory.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.HasPrefix(id, ".")
}

type Reconciler struct {
	dir     string
	remote  remote.Store
	workers int
	log     logging.Logger
}

func NewReconciler(dir string, rs remote.Store, workers int, log logging.Logger) *Reconciler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Reconciler{dir: dir, remote: rs, workers: workers, log: log.With("module", "media")}
}

type report struct {
	mu sync.Mutex
	models.MediaReport
}

func (r *report) add(list *[]string, id string) {
	r.mu.Lock()
	*list = append(*list, id)
	r.mu.Unlock()
}

func (r *report) fail(err error) {
	r.mu.Lock()
	r.Errors = append(r.Errors, err)
	r.mu.Unlock()
}

// Reconcile uploads referenced local assets the remote lacks (or holds with a
// different size), downloads referenced assets missing locally and deletes
// unreferenced assets on each side. Failures are collected in the report and
// never abort the pass.
func (r *Reconciler) Reconcile(ctx context.Context, notes map[string]*models.Note) *models.MediaReport {
	rep := &report{}

	refs := References(notes)
	local, err := filex.ListSizes(r.dir)
	if err != nil {
		rep.fail(fmt.Errorf("list local media: %w", err))
		return r.finish(ctx, rep)
	}
	objs, err := r.remote.List(ctx, remote.MediaPrefix)
	if err != nil {
		rep.fail(fmt.Errorf("list remote media: %w", err))
		return r.finish(ctx, rep)
	}
	remoteSizes := make(map[string]int64, len(objs))
	for _, o := range objs {
		remoteSizes[strings.TrimPrefix(o.Key, remote.MediaPrefix)] = o.Size
	}

	// Attachments of password-protected notes cannot be seen, so nothing is
	// treated as orphaned while such notes exist.
	cleanup := !hasProtected(notes)
	if !cleanup {
		r.log.Info(ctx, "skipping media cleanup, protected notes present")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, id := range sortedKeys(local) {
		size := local[id]
		if _, ok := refs[id]; !ok {
			continue
		}
		if rs, ok := remoteSizes[id]; ok && rs == size {
			continue
		}
		g.Go(func() error {
			if err := r.upload(gctx, id); err != nil {
				rep.fail(err)
				return nil
			}
			rep.add(&rep.Uploaded, id)
			return nil
		})
	}

	for _, id := range sortedKeys(refs) {
		_, haveLocal := local[id]
		_, haveRemote := remoteSizes[id]
		if haveLocal || !haveRemote {
			continue
		}
		g.Go(func() error {
			if err := r.download(gctx, id); err != nil {
				rep.fail(err)
				return nil
			}
			rep.add(&rep.Downloaded, id)
			return nil
		})
	}
	_ = g.Wait()

	if cleanup {
		for _, id := range sortedKeys(remoteSizes) {
			if _, ok := refs[id]; ok {
				continue
			}
			if err := r.remote.Delete(ctx, remote.MediaPrefix+id); err != nil {
				rep.fail(fmt.Errorf("delete remote media %s: %w", id, err))
				continue
			}
			rep.DeletedRemote = append(rep.DeletedRemote, id)
		}
		for _, id := range sortedKeys(local) {
			if _, ok := refs[id]; ok {
				continue
			}
			if err := os.Remove(filepath.Join(r.dir, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				rep.fail(fmt.Errorf("delete local media %s: %w", id, err))
				continue
			}
			rep.DeletedLocal = append(rep.DeletedLocal, id)
		}
	}

	return r.finish(ctx, rep)
}

func (r *Reconciler) finish(ctx context.Context, rep *report) *models.MediaReport {
	out := rep.MediaReport
	slices.Sort(out.Uploaded)
	slices.Sort(out.Downloaded)
	for _, err := range out.Errors {
		r.log.Warn(ctx, "media reconcile error", "error", err)
	}
	r.log.Info(ctx, "media reconciled",
		"uploaded", len(out.Uploaded),
		"downloaded", len(out.Downloaded),
		"deleted_remote", len(out.DeletedRemote),
		"deleted_local", len(out.DeletedLocal),
		"errors", len(out.Errors))
	return &out
}

func (r *Reconciler) upload(ctx context.Context, id string) error {
	data, err := os.ReadFile(filepath.Join(r.dir, id))
	if err != nil {
		return fmt.Errorf("read media %s: %w", id, err)
	}
	if err := r.remote.Put(ctx, remote.MediaPrefix+id, data, nil); err != nil {
		return fmt.Errorf("upload media %s: %w", id, err)
	}
	return nil
}

func (r *Reconciler) download(ctx context.Context, id string) error {
	data, _, err := r.remote.Get(ctx, remote.MediaPrefix+id)
	if err != nil {
		return fmt.Errorf("download media %s: %w", id, err)
	}
	if _, err := filex.EnsureDir(r.dir); err != nil {
		return err
	}
	if err := filex.WriteAtomic(r.dir, id, data); err != nil {
		return fmt.Errorf("store media %s: %w", id, err)
	}
	return nil
}

func hasProtected(notes map[string]*models.Note) bool {
	for _, n := range notes {
		if n.PasswordProtected {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
