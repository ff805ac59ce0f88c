package assign

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a roster when its backing file changes. Running
// executions keep their snapshot; only tasks submitted after the reload
// see the new roster.
type Watcher struct {
	roster  *Roster
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchRoster starts watching the roster file for writes. It returns
// immediately; reloads happen on a background goroutine until Close.
func WatchRoster(roster *Roster, path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		roster:  roster,
		path:    path,
		watcher: fw,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reloaded, err := LoadRoster(w.path)
			if err != nil {
				// Keep the current roster on a bad edit.
				log.Printf("[assign] roster reload failed, keeping previous roster: %v", err)
				continue
			}
			w.roster.Replace(reloaded.Snapshot())
			log.Printf("[assign] roster reloaded from %s (%d agents)", w.path, w.roster.Size())
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[assign] roster watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
