package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/landfill/clairkeys/logger"
	"github.com/landfill/clairkeys/model"
	"github.com/landfill/clairkeys/repository"
	"github.com/landfill/clairkeys/storage"
)

// importOwnerID owns sheets ingested from the watch directory. Dropped files
// carry no user; they land on this system account as public sheets.
const importOwnerID = 0

// settleDelay is how long a file must be left alone before it is picked up.
// Editors and scp write in bursts; reading mid-write yields truncated JSON.
const settleDelay = 500 * time.Millisecond

// Watcher ingests animation JSON dropped into a local directory: validate,
// upload to object storage, register a completed public sheet record. It is
// the bulk path around the per-upload OMR flow.
type Watcher struct {
	dir    string
	sheets repository.SheetRepository

	fs *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher over dir. The directory must exist.
func NewWatcher(dir string, sheets repository.SheetRepository) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, err
	}
	return &Watcher{
		dir:     dir,
		sheets:  sheets,
		fs:      fs,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run processes filesystem events until ctx is cancelled. Existing files in
// the directory are ingested first.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	w.ingestExisting(ctx)
	logger.Info("import watcher started", logger.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isAnimationFile(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logger.Error("import watcher error", logger.ErrorField(err))
		}
	}
}

// schedule debounces a path: every new event resets its settle timer.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(settleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		if err := w.ingest(ctx, path); err != nil {
			logger.Error("failed to import animation file",
				logger.String("path", path),
				logger.ErrorField(err))
		}
	})
}

func (w *Watcher) ingestExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logger.Warn("cannot scan import directory", logger.ErrorField(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isAnimationFile(entry.Name()) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if err := w.ingest(ctx, path); err != nil {
			logger.Error("failed to import animation file",
				logger.String("path", path),
				logger.ErrorField(err))
		}
	}
}

// ingest validates one dropped file and registers it as a completed public
// sheet. The source file is removed on success so re-scans stay idempotent.
func (w *Watcher) ingest(ctx context.Context, path string) error {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data, err := model.ParseAnimationData(raw)
	if err != nil {
		return err
	}

	title := data.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	sheet := &model.SheetMusic{
		UserID:   importOwnerID,
		Title:    title,
		Composer: data.Composer,
		Status:   model.SheetStatusCompleted,
		IsPublic: true,
	}
	if err := w.sheets.Create(sheet); err != nil {
		return err
	}

	key := storage.AnimationKey(sheet.ID)
	if err := storage.UploadAnimation(ctx, key, raw); err != nil {
		return err
	}
	if err := w.sheets.SetAnimationKey(sheet.ID, key); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		logger.Warn("imported file left behind", logger.String("path", path))
	}

	logger.Info("animation imported",
		logger.String("title", title),
		logger.Int64("sheet", sheet.ID),
		logger.Int("notes", len(data.Notes)))
	return nil
}

func isAnimationFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
