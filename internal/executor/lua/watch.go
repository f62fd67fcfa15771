package lua

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ErrNotReloadable is returned by Watch for executors built from source.
var ErrNotReloadable = errors.New("executor has no script file")

// Watch reloads the script whenever it is written or replaced, until ctx
// ends. The containing directory is watched so editors that save by
// rename are picked up. onReload, if non-nil, is called after every
// reload attempt with its error.
func (e *Executor) Watch(ctx context.Context, onReload func(error)) error {
	if e.path == "" {
		return ErrNotReloadable
	}

	target, err := filepath.Abs(e.path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			err := e.Reload()
			if err != nil {
				e.logger.Warn().Err(err).Str("path", e.path).Msg("lua reload failed, keeping previous script")
			} else {
				e.logger.Info().Str("path", e.path).Msg("lua script reloaded")
			}
			if onReload != nil {
				onReload(err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn().Err(err).Msg("lua watcher error")
		}
	}
}
