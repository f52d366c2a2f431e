// Package inbox ingests manually supplied evidence dropped into
// <inbox>/<control_code>/<file>.
package inbox

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	debounceDefault = 500 * time.Millisecond
	maxQueueSize    = 200
)

// Watcher feeds settled files to handler through a fixed worker pool.
type Watcher struct {
	root     string
	handler  func(ctx context.Context, path string)
	workers  int
	debounce time.Duration
}

func NewWatcher(root string, workers int, handler func(ctx context.Context, path string)) *Watcher {
	if workers <= 0 {
		workers = 1
	}
	return &Watcher{root: root, handler: handler, workers: workers, debounce: debounceDefault}
}

// Run blocks until ctx is cancelled. Files already present are queued at
// startup.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := os.MkdirAll(w.root, 0o750); err != nil {
		return err
	}
	if err := watcher.Add(w.root); err != nil {
		return err
	}
	existing, err := w.scan(watcher)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	ready := make(map[string]bool)
	for _, p := range existing {
		ready[p] = true
	}

	queue := make(chan string, maxQueueSize)
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range queue {
				w.handle(ctx, p)
			}
		}()
	}

	flush := func() {
		mu.Lock()
		batch := make([]string, 0, len(ready))
		for p := range ready {
			batch = append(batch, p)
		}
		ready = make(map[string]bool)
		mu.Unlock()
		for _, p := range batch {
			select {
			case queue <- p:
			case <-ctx.Done():
				return
			}
		}
	}

	timer := time.NewTimer(w.debounce)
	if len(existing) == 0 {
		timer.Stop()
	}
	defer func() {
		timer.Stop()
		close(queue)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			flush()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if filepath.Dir(event.Name) == filepath.Clean(w.root) && !ignored(event.Name) {
					_ = watcher.Add(event.Name)
					if files, err := listFiles(event.Name); err == nil {
						mu.Lock()
						for _, f := range files {
							ready[f] = true
						}
						mu.Unlock()
					}
				}
				continue
			}
			if !w.isEvidenceFile(event.Name) {
				continue
			}
			mu.Lock()
			ready[event.Name] = true
			mu.Unlock()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("inbox watcher: %v", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, p string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("inbox: panic handling %s: %v", p, r)
		}
	}()
	w.handler(ctx, p)
}

// scan adds a watch on each control directory and returns files that
// arrived while the watcher was down.
func (w *Watcher) scan(watcher *fsnotify.Watcher) ([]string, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || ignored(e.Name()) {
			continue
		}
		dir := filepath.Join(w.root, e.Name())
		if err := watcher.Add(dir); err != nil {
			return nil, err
		}
		files, err := listFiles(dir)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || ignored(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

// isEvidenceFile accepts regular files exactly one level below root.
func (w *Watcher) isEvidenceFile(p string) bool {
	if ignored(filepath.Base(p)) {
		return false
	}
	control := filepath.Dir(p)
	return filepath.Dir(control) == filepath.Clean(w.root) && !ignored(filepath.Base(control))
}

// ignored skips hidden entries (including .processed and .failed) and
// partial uploads.
func ignored(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, ".part")
}
