package settings

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alone132405/panel-bot-sub001/internal/broadcast"
)

// Watcher pushes a settings_changed event whenever a document in the store
// directory is written on disk, so dashboards refresh when the bot or an
// operator edits a file out-of-band.
type Watcher struct {
	store *Store
	pub   broadcast.Publisher
	// coalesce editor save storms per identifier
	debounce time.Duration
}

func NewWatcher(store *Store, pub broadcast.Publisher) *Watcher {
	return &Watcher{store: store, pub: pub, debounce: 250 * time.Millisecond}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.store.Dir()); err != nil {
		return err
	}
	last := map[string]time.Time{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".tmp") {
				continue
			}
			id := strings.TrimSuffix(name, ".json")
			now := time.Now()
			if t, ok := last[id]; ok && now.Sub(t) < w.debounce {
				continue
			}
			last[id] = now
			w.pub.Publish(ctx, broadcast.Event{
				Type:    broadcast.TypeSettingsChanged,
				Channel: id,
				Data:    map[string]any{"identifier": id, "timestamp": now.UnixMilli()},
			})
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("settings watcher", "error", err)
		}
	}
}
