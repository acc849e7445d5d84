package directory

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// WatchHandle is returned by Watch; Stop ends the subscription.
type WatchHandle struct {
	stop func()
}

// Stop ends the watch subscription.
func (h *WatchHandle) Stop() { h.stop() }

// Watch notifies callback whenever the named file changes — in practice
// the single file the reader needs to reload on commit. Editors and some
// filesystems replace files via rename-into-place, so both Write and
// Create events on the watched name trigger callback.
func (d *Directory) Watch(name string, callback func()) (*WatchHandle, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(d.root); err != nil {
		w.Close()
		return nil, err
	}

	target := d.path(name)
	var once sync.Once
	stopCh := make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					callback()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("directory watch error", "path", target, "err", err)
			case <-stopCh:
				return
			}
		}
	}()

	return &WatchHandle{stop: func() {
		once.Do(func() {
			close(stopCh)
			w.Close()
		})
	}}, nil
}
