package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultSettle is how long a file must go without writes before it is imported.
const DefaultSettle = 500 * time.Millisecond

// ImportFunc is called after each successful import.
type ImportFunc func(ctx context.Context, res Result)

// FolderWatcher imports matching files already in a directory and then
// every file created or rewritten there.
type FolderWatcher struct {
	importer *Importer
	onImport ImportFunc
	settle   time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewFolderWatcher watches the importer's directory. onImport may be nil.
func NewFolderWatcher(importer *Importer, onImport ImportFunc) *FolderWatcher {
	return &FolderWatcher{
		importer: importer,
		onImport: onImport,
		settle:   DefaultSettle,
		logger:   importer.opts.Logger.Named("watch"),
		pending:  make(map[string]time.Time),
	}
}

// Run performs the initial pass and then watches until ctx is cancelled.
func (fw *FolderWatcher) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer w.Close()

	if err := w.Add(fw.importer.opts.Dir); err != nil {
		return fmt.Errorf("watch add: %w", err)
	}

	results, err := fw.importer.ImportDir(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		fw.notify(ctx, res)
	}

	fw.logger.Info("watching directory", zap.String("dir", fw.importer.opts.Dir))
	ticker := time.NewTicker(fw.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !fw.importer.Matches(ev.Name) {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				fw.mu.Lock()
				fw.pending[ev.Name] = time.Now()
				fw.mu.Unlock()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				fw.mu.Lock()
				delete(fw.pending, ev.Name)
				fw.mu.Unlock()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fw.logger.Warn("watch error", zap.Error(err))
		case <-ticker.C:
			fw.flush(ctx, time.Now())
		}
	}
}

// flush imports files whose last write is older than the settle delay.
func (fw *FolderWatcher) flush(ctx context.Context, now time.Time) {
	var ready []string
	fw.mu.Lock()
	for path, last := range fw.pending {
		if now.Sub(last) >= fw.settle {
			ready = append(ready, path)
			delete(fw.pending, path)
		}
	}
	fw.mu.Unlock()

	for _, path := range ready {
		res, err := fw.importer.ImportFile(ctx, path)
		if err != nil {
			fw.logger.Warn("failed to import file", zap.String("file", filepath.Base(path)), zap.Error(err))
			continue
		}
		fw.notify(ctx, res)
	}
}

func (fw *FolderWatcher) notify(ctx context.Context, res Result) {
	if fw.onImport != nil {
		fw.onImport(ctx, res)
	}
}
