// Package watch keeps outputs fresh while authors edit: a filesystem watcher
// feeds a debouncer that coalesces change bursts into incremental rebuilds,
// with an optional periodic full rebuild and diagnostics publishing.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	docerrors "git.home.luguber.info/inful/docscope/internal/errors"
	"git.home.luguber.info/inful/docscope/internal/logfields"
	"git.home.luguber.info/inful/docscope/internal/pipeline"
	"git.home.luguber.info/inful/docscope/internal/source"
)

// Watcher translates filesystem events under the content root into debouncer
// requests. Directories are watched recursively; new subdirectories are added
// as they appear.
type Watcher struct {
	src    *source.FSSource
	fsw    *fsnotify.Watcher
	out    chan<- Request
	logger *slog.Logger
}

// NewWatcher creates a watcher over the source's content root.
func NewWatcher(src *source.FSSource, out chan<- Request, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, docerrors.Wrap(err, docerrors.CategoryWatch, docerrors.SeverityFatal, "create filesystem watcher")
	}
	w := &Watcher{src: src, fsw: fsw, out: out, logger: logger}
	if err := w.addRecursive(src.Root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); strings.HasPrefix(name, ".") && p != root {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
	if err != nil {
		return docerrors.Wrap(err, docerrors.CategoryWatch, docerrors.SeverityFatal, "watch content tree")
	}
	return nil
}

// Run forwards events until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Filesystem watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	// Newly created directories must be added for events to keep flowing.
	// On a plain file this walk visits no directory and adds nothing.
	if ev.Op.Has(fsnotify.Create) {
		_ = w.addRecursive(ev.Name)
	}
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return
	}

	if filepath.Base(ev.Name) == filepath.Base(w.src.ManifestPath()) {
		w.logger.Debug("Manifest changed", logfields.Path(ev.Name))
		w.send(Request{Full: true, Reason: "manifest"})
		return
	}

	key, isFragment, ok := w.src.KeyForPath(ev.Name)
	if !ok {
		return
	}
	cacheKey := pipeline.DocKey(key)
	if isFragment {
		cacheKey = pipeline.FragmentKey(key)
	}
	w.logger.Debug("Content changed", logfields.Path(ev.Name), logfields.Document(key))
	w.send(Request{Key: cacheKey, Reason: "file_change"})
}

func (w *Watcher) send(req Request) {
	select {
	case w.out <- req:
	default:
		// The debouncer is momentarily saturated; dropping is safe because a
		// pending batch already forces a rebuild.
		w.logger.Debug("Dropped change request", slog.String("reason", req.Reason))
	}
}
