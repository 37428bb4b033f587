// Package routetable loads the route table from a YAML configuration
// file and keeps it live: missing files are created with an empty
// default, the file is parsed into a domain.RouteTable on load, and an
// fsnotify watcher reloads it whenever the file changes on disk.
package routetable

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/StartiOne/upstream-proxy/internal/domain"
)

// Repository holds the current route table and keeps it current
// against an on-disk YAML file.
type Repository struct {
	configFile string
	logger     domain.Logger
	table      atomic.Pointer[domain.RouteTable]
	watcher    *fsnotify.Watcher
	done       chan struct{}
}

// New loads configFile (creating an empty default file if absent) and
// starts watching it for changes. Pass an empty configFile to start
// from an empty table with reconfiguration only ever happening via
// SetEntries (e.g. when embedding the proxy programmatically).
func New(configFile string, logger domain.Logger) (*Repository, error) {
	r := &Repository{configFile: configFile, logger: logger, done: make(chan struct{})}

	if configFile != "" {
		cfg, err := loadConfigFile(configFile)
		if err != nil {
			return nil, err
		}
		r.store(cfg.toEntries())

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		if err := watcher.Add(configFile); err != nil {
			watcher.Close()
			return nil, err
		}
		r.watcher = watcher
		go r.watch()
	} else {
		r.store(nil)
	}

	return r, nil
}

func (r *Repository) store(entries []domain.RouteEntry) {
	r.table.Store(domain.BuildRouteTable(entries))
}

// Table returns the current route table snapshot.
func (r *Repository) Table() *domain.RouteTable {
	return r.table.Load()
}

// SetEntries atomically replaces the route table with one built from
// entries, without touching the backing file. A later reload of the
// file replaces the table again.
func (r *Repository) SetEntries(entries []domain.RouteEntry) {
	r.store(entries)
}

// Reload re-reads the backing file and atomically swaps in the
// resulting table.
func (r *Repository) Reload() error {
	if r.configFile == "" {
		return nil
	}
	cfg, err := loadConfigFile(r.configFile)
	if err != nil {
		return err
	}
	r.store(cfg.toEntries())
	return nil
}

func (r *Repository) watch() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := r.Reload(); err != nil {
				if r.logger != nil {
					r.logger.Error("failed to reload route config", err, map[string]interface{}{"path": r.configFile})
				}
				continue
			}
			if r.logger != nil {
				r.logger.Info("route config reloaded", map[string]interface{}{"path": r.configFile})
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			if r.logger != nil {
				r.logger.Error("route config watcher error", err, nil)
			}
		case <-r.done:
			return
		}
	}
}

// Close stops watching the backing file.
func (r *Repository) Close() error {
	close(r.done)
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
