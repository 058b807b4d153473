// Package portfile discovers the network port chosen by a just-spawned
// server process. The server announces the port by writing it,
// newline-terminated, to a well-known file inside a directory the launcher
// owns exclusively; the watcher observes the directory and resolves the
// first complete write into a single result.
package portfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher waits for a port file to be written. Create it before spawning the
// writer so no write can be missed, and Close it once a result has been
// obtained.
type Watcher struct {
	log     *zap.SugaredLogger
	path    string
	fsw     *fsnotify.Watcher
	results chan result
	done    chan struct{}
}

type result struct {
	port uint16
	err  error
}

// New registers a watch on dir for writes to name. The directory must exist,
// must not yet contain name, and belongs to the watcher until Close.
func New(log *zap.SugaredLogger, dir, name string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %q: %w", dir, err)
	}
	w := &Watcher{
		log:     log.Named("portfile_watcher"),
		path:    filepath.Join(dir, name),
		fsw:     fsw,
		results: make(chan result, 1),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// loop runs on the notification goroutine, outside the launcher's own
// control flow. The first outcome latches into the results channel
// (capacity 1) and the loop stops; anything after that is discarded.
func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.log.Debugw("filesystem event", "op", ev.Op.String(), "name", ev.Name)
			port, complete, err := w.tryRead()
			if err != nil {
				w.deliver(0, err)
				return
			}
			if complete {
				w.deliver(port, nil)
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.deliver(0, fmt.Errorf("watching directory for port file: %w", err))
			return
		}
	}
}

// tryRead reports whether the port file holds a complete line yet. A missing
// file means the write has not started; content without a trailing newline
// means the writer has not flushed the full line. Any other read error, and
// any parse failure, is fatal to discovery.
func (w *Watcher) tryRead() (uint16, bool, error) {
	contents, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading port file: %w", err)
	}
	s := string(contents)
	if !strings.HasSuffix(s, "\n") {
		return 0, false, nil
	}
	port, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, false, fmt.Errorf("parsing port from port file: %w", err)
	}
	return uint16(port), true, nil
}

func (w *Watcher) deliver(port uint16, err error) {
	select {
	case w.results <- result{port: port, err: err}:
	default:
		// already latched
	}
}

// Port blocks until the port has been discovered, discovery has failed, or
// ctx is done. Exactly one outcome is ever produced per watch.
func (w *Watcher) Port(ctx context.Context) (uint16, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-w.results:
		return res.port, res.err
	}
}

// Close cancels the watch and waits for the notification loop to stop. The
// directory may be reused once Close returns. Safe to call more than once.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
