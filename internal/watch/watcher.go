// Package watch hot-reloads prompt templates when the config file changes.
package watch

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"nextsignal/config"
)

// Watcher monitors the config file and reloads the prompt templates on
// write. A failed reload keeps the previous templates active.
type Watcher struct {
	prompts *config.PromptManager
}

func New(prompts *config.PromptManager) *Watcher {
	return &Watcher{prompts: prompts}
}

// Start begins watching the config file's directory until ctx is done.
// Watching the directory instead of the file survives editors and config
// tooling that replace the file on save.
func (w *Watcher) Start(ctx context.Context) error {
	path := w.prompts.Path()
	if path == "" {
		log.Println("prompt watcher disabled, no config path")
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := w.prompts.Reload(); err != nil {
					log.Printf("prompt reload failed, keeping previous templates: %v", err)
					continue
				}
				log.Printf("prompt templates reloaded from %s", target)
			case err := <-watcher.Errors:
				log.Printf("watcher error: %v", err)
			}
		}
	}()
	return watcher.Add(filepath.Dir(target))
}
