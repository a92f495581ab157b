package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/flowforge/rxtoe/logging"
)

// Watch hot-reloads the log level from configPath whenever it changes on
// disk, following neoAgent's fsnotify-driven config reload, and hands the
// reloaded Config (including MetricsEnabled) to the onReload callback. It does not reload queue depths or MSS, which only take effect at
// pipeline construction.
type Watch struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// StartWatch begins watching configPath, applying LogLevel changes to the
// shared logging level and passing each reloaded Config to onReload as
// they're written. Reload failures are
// logged and ignored — the previous configuration keeps running.
func StartWatch(configPath string, onReload func(Config)) (*Watch, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &Watch{watcher: watcher, done: make(chan struct{})}

	go w.loop(configPath, onReload)

	return w, nil
}

func (w *Watch) loop(configPath string, onReload func(Config)) {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := Load(nil, configPath)
			if err != nil {
				logging.Pipeline.Warn("config reload failed, keeping previous configuration")
				continue
			}

			logging.Level.SetLevel(ParseLevel(cfg.LogLevel))

			if onReload != nil {
				onReload(cfg)
			}
		case <-w.done:
			return
		}
	}
}

// Close stops watching.
func (w *Watch) Close() error {
	close(w.done)
	return w.watcher.Close()
}
