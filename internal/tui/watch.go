package tui

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

// fileChangedMsg carries the new contents of the watched file.
type fileChangedMsg struct {
	text string
}

// fileErrorMsg reports a watch or read failure.
type fileErrorMsg struct {
	err error
}

const watchDebounce = 100 * time.Millisecond

// fileWatcher reports external writes to one file. The parent directory is
// watched so editors that save by rename are seen too.
type fileWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	msgs     chan tea.Msg
	done     chan struct{}
	stopOnce sync.Once
}

func newFileWatcher(path string) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}

	fw := &fileWatcher{
		path:    abs,
		watcher: w,
		msgs:    make(chan tea.Msg, 1),
		done:    make(chan struct{}),
	}
	go fw.loop()
	return fw, nil
}

func (fw *fileWatcher) loop() {
	defer close(fw.msgs)

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-fw.done:
			return

		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != fw.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				timer.Reset(watchDebounce)
			}

		case <-timer.C:
			data, err := os.ReadFile(fw.path)
			var msg tea.Msg = fileChangedMsg{text: string(data)}
			if err != nil {
				msg = fileErrorMsg{err: err}
			}
			if !fw.send(msg) {
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			if !fw.send(fileErrorMsg{err: err}) {
				return
			}
		}
	}
}

func (fw *fileWatcher) send(msg tea.Msg) bool {
	select {
	case fw.msgs <- msg:
		return true
	case <-fw.done:
		return false
	}
}

// wait returns a command that blocks until the next change. It must be
// re-issued after every message it delivers.
func (fw *fileWatcher) wait() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-fw.msgs
		if !ok {
			return nil
		}
		return msg
	}
}

func (fw *fileWatcher) Close() {
	fw.stopOnce.Do(func() {
		close(fw.done)
		_ = fw.watcher.Close()
	})
}
