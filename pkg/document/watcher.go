package document

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// StalenessHandler is invoked when a watched document source changes on disk.
type StalenessHandler func(documentID, reason string)

// StalenessWatcher flags documents whose on-disk source changed while their
// stored snapshot is in use. Staleness is advisory: an in-flight replacement
// keeps running and the signal is surfaced as a warning.
type StalenessWatcher struct {
	watcher *fsnotify.Watcher
	handler StalenessHandler
	logger  zerolog.Logger

	mu    sync.Mutex
	paths map[string]string // absolute source path -> document ID

	done chan struct{}
	once sync.Once
}

// NewStalenessWatcher creates a watcher delivering change signals to the
// handler. Call Start to begin dispatching and Close to stop.
func NewStalenessWatcher(handler StalenessHandler, logger zerolog.Logger) (*StalenessWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &StalenessWatcher{
		watcher: fsWatcher,
		handler: handler,
		logger:  logger.With().Str("component", "staleness-watcher").Logger(),
		paths:   make(map[string]string),
		done:    make(chan struct{}),
	}, nil
}

// Watch registers a document source path.
func (w *StalenessWatcher) Watch(path, documentID string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	w.mu.Lock()
	w.paths[abs] = documentID
	w.mu.Unlock()

	if err := w.watcher.Add(abs); err != nil {
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}

	w.logger.Debug().Str("path", abs).Str("document_id", documentID).Msg("Watching document source")
	return nil
}

// Start dispatches file events until Close is called.
func (w *StalenessWatcher) Start() {
	go w.loop()
}

func (w *StalenessWatcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			w.mu.Lock()
			documentID, watched := w.paths[filepath.Clean(event.Name)]
			w.mu.Unlock()
			if !watched {
				continue
			}

			w.logger.Warn().
				Str("path", event.Name).
				Str("document_id", documentID).
				Str("op", event.Op.String()).
				Msg("Document source changed on disk")
			if w.handler != nil {
				w.handler(documentID, fmt.Sprintf("%s (%s)", event.Name, event.Op))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("File watcher error")
		}
	}
}

// Close stops dispatching and releases the underlying watcher.
func (w *StalenessWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
