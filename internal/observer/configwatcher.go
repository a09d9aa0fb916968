package observer

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigChangeCallback is called with the config path after it changes
type ConfigChangeCallback func(path string)

// ConfigWatcher reloads settings when the config file is edited while serving.
// It watches the parent directory so editors that replace the file by rename
// are still seen.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	callback ConfigChangeCallback
	debounce time.Duration

	timer *time.Timer
	mu    sync.Mutex

	cancel context.CancelFunc
}

// NewConfigWatcher creates a watcher for the config file at path
func NewConfigWatcher(path string, callback ConfigChangeCallback) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	return &ConfigWatcher{
		watcher:  watcher,
		path:     abs,
		callback: callback,
		debounce: 300 * time.Millisecond,
	}, nil
}

// Start begins watching for file changes
func (cw *ConfigWatcher) Start(ctx context.Context) {
	ctx, cw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-cw.watcher.Events:
				if !ok {
					return
				}
				cw.handleEvent(event)
			case err, ok := <-cw.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config watcher: %v", err)
			}
		}
	}()
}

// Stop stops watching for file changes
func (cw *ConfigWatcher) Stop() {
	if cw.cancel != nil {
		cw.cancel()
	}
	cw.mu.Lock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.mu.Unlock()
	cw.watcher.Close()
}

func (cw *ConfigWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != cw.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()

	// Reset or start debounce timer
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.debounce, cw.flush)
}

func (cw *ConfigWatcher) flush() {
	if cw.callback != nil {
		cw.callback(cw.path)
	}
}

// SetDebounce sets the debounce duration for batching file changes
func (cw *ConfigWatcher) SetDebounce(d time.Duration) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.debounce = d
}
