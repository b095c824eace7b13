package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/waveline-ai/waveline/internal/event"
)

// Watcher publishes a reload signal when one of the loaded config
// locations changes on disk. Consumers decide what a reload means;
// the watcher only announces that the document is stale.
type Watcher struct {
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// NewWatcher watches the user, XDG, and project config directories.
// Directories that do not exist are skipped; returns nil if nothing
// can be watched.
func NewWatcher(directory string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch directories rather than files. On some systems watching
	// the file directly does not survive editors that rename-on-save.
	dirs := []string{GetConfigDir(), XDGConfigPath()}
	if directory != "" {
		dirs = append(dirs, filepath.Join(directory, ".waveline"))
	}

	watched := 0
	for _, dir := range dirs {
		if err := w.Add(dir); err == nil {
			watched++
		}
	}
	if watched == 0 {
		w.Close()
		log.Debug().Msg("no config directories present, watcher disabled")
		return nil, nil
	}

	return &Watcher{
		watcher: w,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching for config changes.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if name != "config.json" && name != "config.jsonc" {
				continue
			}
			log.Info().Str("path", ev.Name).Msg("config file changed")
			event.Publish(event.Event{
				Type: event.ConfigReloaded,
				Data: event.ConfigReloadedData{Path: ev.Name},
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("config watcher error")
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
		// Already stopped
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}
