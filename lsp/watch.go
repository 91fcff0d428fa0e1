package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchFixtures reloads the fixtures file at path into s whenever it changes,
// until ctx is done. The parent directory is watched so that editors replacing
// the file by rename are noticed. A file that fails to parse is logged and the
// previous fixtures stay in effect.
//
// The file is loaded once before watching starts; an error from that first
// load is returned.
func WatchFixtures(ctx context.Context, s *Server, path string, log *slog.Logger) error {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve fixtures path: %w", err)
	}

	f, err := LoadFixtures(abs)
	if err != nil {
		return err
	}
	s.SetFixtures(f)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			f, err := LoadFixtures(abs)
			if err != nil {
				log.WarnContext(ctx, "fixtures.reload.err", slog.String("path", abs), slog.String("err", err.Error()))
				continue
			}
			s.SetFixtures(f)
			log.InfoContext(ctx, "fixtures.reload.ok", slog.String("path", abs))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.DebugContext(ctx, "fixtures.watch.err", slog.String("err", err.Error()))
		}
	}
}
