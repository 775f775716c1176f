package asset

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch logs receipts arriving in or leaving dir until ctx is done.
//
// It lets an operator top up the fresh directory while the loop runs and see the inventory
// change in the log. Watch returns nil when ctx is cancelled.
func Watch(ctx context.Context, dir string, log *zap.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log = log.With(zap.String("fresh_dir", dir))
	log.Debug("watching receipts")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			switch {
			case ev.Has(fsnotify.Create):
				log.Info("receipt added", zap.String("receipt", name))
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				log.Info("receipt left fresh directory", zap.String("receipt", name))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("receipt watcher error", zap.Error(err))
		}
	}
}
