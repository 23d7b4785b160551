package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher reloads config.json on external edits and hands the new value to
// onReload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onReload func(*Config)
	done     chan struct{}
}

// NewWatcher starts watching configPath's containing directory (fsnotify
// watches directories more reliably than bare files across editors that
// replace-on-save) and invokes onReload whenever configPath itself changes.
func NewWatcher(configPath string, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(configPath)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w := &Watcher{watcher: fw, path: filepath.Clean(configPath), onReload: onReload, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path, "")
			if err != nil {
				log.Warnf("config watcher: reload %s: %v", w.path, err)
				continue
			}
			w.onReload(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("config watcher: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
