package shader

import (
	"path/filepath"
	"strings"
	"sync"

	"feedbackwarp/internal/utils"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports shader files in a directory that were written or created.
// Events for the same file are coalesced until the next Pending call.
type Watcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
	notify  chan struct{}
}

func NewWatcher(dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher: fw,
		done:    make(chan struct{}),
		pending: make(map[string]struct{}),
		notify:  make(chan struct{}, 1),
	}
	w.wg.Add(1)
	go w.loop()
	utils.Info("Shader: watching %s for changes", dir)
	return w, nil
}

func isShaderFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".vert", ".frag", ".glsl":
		return true
	}
	return false
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isShaderFile(event.Name) {
				continue
			}
			w.mu.Lock()
			w.pending[filepath.Base(event.Name)] = struct{}{}
			w.mu.Unlock()
			select {
			case w.notify <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			utils.Warn("Shader: watcher error: %v", err)
		}
	}
}

// Changed is signalled after new events arrive.
func (w *Watcher) Changed() <-chan struct{} {
	return w.notify
}

// Pending returns and clears the base names of changed files.
func (w *Watcher) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return nil
	}
	names := make([]string, 0, len(w.pending))
	for name := range w.pending {
		names = append(names, name)
	}
	clear(w.pending)
	return names
}

func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
