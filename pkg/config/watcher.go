package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// TableChangeHandler is called when the external command-table file changes.
type TableChangeHandler func([]CommandEntry) error

// TableWatcher monitors an external command-table YAML file and triggers
// reload so new commands become routable without a restart.
type TableWatcher struct {
	path     string
	handlers []TableChangeHandler
	watcher  *fsnotify.Watcher
	mu       sync.RWMutex
	stopCh   chan struct{}
	watching bool
}

// NewTableWatcher creates a watcher over the given table file. An empty
// path yields a watcher that never fires.
func NewTableWatcher(path string) *TableWatcher {
	return &TableWatcher{
		path:   path,
		stopCh: make(chan struct{}),
	}
}

// AddHandler registers a handler to be called with the reloaded entries.
func (w *TableWatcher) AddHandler(handler TableChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Start begins watching the table file for changes.
func (w *TableWatcher) Start() error {
	if w.path == "" {
		return nil
	}

	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	w.watching = true
	w.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", w.path, err)
	}
	w.watcher = watcher

	go w.loop()
	return nil
}

// Stop stops watching the table file.
func (w *TableWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.watching {
		return
	}
	w.watching = false
	close(w.stopCh)
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *TableWatcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			entries, err := LoadCommandTable(w.path)
			if err != nil {
				// Keep the previous table on parse errors.
				continue
			}
			w.notify(entries)

		case <-w.watcher.Errors:
			// fsnotify errors are transient; keep watching.

		case <-w.stopCh:
			return
		}
	}
}

func (w *TableWatcher) notify(entries []CommandEntry) {
	w.mu.RLock()
	handlers := make([]TableChangeHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.RUnlock()

	for _, handler := range handlers {
		_ = handler(entries)
	}
}

// LoadCommandTable reads command-table entries from a YAML file.
func LoadCommandTable(path string) ([]CommandEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading command table: %w", err)
	}

	var entries []CommandEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing command table: %w", err)
	}

	return entries, nil
}
