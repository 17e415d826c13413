package codegen

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces bursts of filesystem events (editor saves
// often produce several) into one regeneration.
const watchDebounce = 250 * time.Millisecond

// Watch regenerates on changes to the operation roots and the config
// file until ctx is cancelled. Regeneration failures are logged and
// watching continues.
func (g *Generator) Watch(ctx context.Context, src Source, cfg Config, configPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, root := range cfg.OperationRoots {
		if _, err := os.Stat(root); err != nil {
			slog.Warn("skipping missing operation root", "root", root, "error", err)
			continue
		}
		if err := watcher.Add(root); err != nil {
			slog.Warn("failed to watch operation root", "root", root, "error", err)
		}
	}
	if configPath != "" {
		if err := watcher.Add(configPath); err != nil {
			slog.Warn("failed to watch config file", "path", configPath, "error", err)
		}
	}

	// Initial generation before settling into the event loop.
	if _, err := g.Generate(ctx, src, cfg); err != nil {
		slog.Error("generation failed", "error", err)
	}

	var timer *time.Timer
	regen := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case regen <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		case <-regen:
			slog.Info("change detected, regenerating")
			if _, err := g.Generate(ctx, src, cfg); err != nil {
				slog.Error("generation failed", "error", err)
			}
		}
	}
}
