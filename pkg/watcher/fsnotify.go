package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// fsSource turns recursive filesystem notifications under root into change
// events. The nearest existing ancestor of root is watched as well, so the
// root may be absent at startup or removed and recreated by a clean build.
type fsSource struct {
	log  logrus.FieldLogger
	fsw  *fsnotify.Watcher
	root string
}

func newFSSource(log logrus.FieldLogger, root string) (*fsSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}

	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	src := &fsSource{log: log, fsw: fsw, root: filepath.Clean(abs)}

	if err := src.attach(); err != nil {
		_ = fsw.Close()

		return nil, err
	}

	return src, nil
}

// attach watches the deepest existing ancestor of root and, when root
// exists, root and all its subdirectories.
func (s *fsSource) attach() error {
	dir := filepath.Dir(s.root)

	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			if err := s.fsw.Add(dir); err != nil {
				return fmt.Errorf("adding watch for %s: %w", dir, err)
			}

			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	if _, err := os.Stat(s.root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return err
	}

	return s.addRecursive(s.root)
}

// addRecursive registers dir and all its subdirectories.
func (s *fsSource) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories may vanish while a bundler rewrites its output.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if !d.IsDir() {
			return nil
		}

		if err := s.fsw.Add(path); err != nil {
			return fmt.Errorf("adding watch for %s: %w", path, err)
		}

		return nil
	})
}

// underRoot reports whether path is root or inside it.
func (s *fsSource) underRoot(path string) bool {
	return path == s.root || strings.HasPrefix(path, s.root+string(filepath.Separator))
}

// onRootPath reports whether path is a strict ancestor of root.
func (s *fsSource) onRootPath(path string) bool {
	return strings.HasPrefix(s.root, path+string(filepath.Separator))
}

// Forward calls trigger for every relevant event until ctx is done or the
// underlying watcher is closed.
func (s *fsSource) Forward(ctx context.Context, trigger func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.fsw.Events:
			if !ok {
				return
			}

			if ev.Op == fsnotify.Chmod {
				continue
			}

			name := filepath.Clean(ev.Name)

			switch {
			case s.onRootPath(name):
				// An ancestor of root appeared; descend towards root.
				if ev.Has(fsnotify.Create) {
					if err := s.attach(); err != nil {
						s.log.WithError(err).WithField("path", name).
							Warn("Failed to re-attach watch")
					}
				}

				continue
			case name == s.root:
				if ev.Has(fsnotify.Create) {
					if err := s.attach(); err != nil {
						s.log.WithError(err).WithField("path", name).
							Warn("Failed to re-attach watch")
					}
				}
			case s.underRoot(name):
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(name); err == nil && info.IsDir() {
						if err := s.addRecursive(name); err != nil {
							s.log.WithError(err).WithField("path", name).
								Warn("Failed to watch new directory")
						}
					}
				}
			default:
				// Siblings of root in the watched parent.
				continue
			}

			s.log.WithFields(logrus.Fields{
				"path": name,
				"op":   ev.Op.String(),
			}).Trace("Filesystem event")

			trigger()
		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}

			s.log.WithError(err).Warn("Filesystem watch error")
		}
	}
}

func (s *fsSource) Close() error {
	return s.fsw.Close()
}
