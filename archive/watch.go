package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/epr-lab/goxepr/bes3t"
)

// watched reports whether a change to the file at p can change the index
func watched(p string) bool {
	switch strings.ToUpper(filepath.Ext(p)) {
	case bes3t.ExtDSC, bes3t.ExtDTA:
		return true
	}
	return false
}

// Watch rescans the archive whenever a dataset below Root changes, at most
// once per interval, and calls fn with the new listing.  Folders created after
// the watch starts are watched too.  It blocks until ctx is done.
func (a *Archive) Watch(ctx context.Context, interval time.Duration, fn func([]Entry)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	addTree := func(root string) error {
		return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return w.Add(p)
			}
			return nil
		})
	}
	if err := addTree(a.Root); err != nil {
		return err
	}

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(ev.Name); err != nil {
						a.logf("archive: watching %s: %v", ev.Name, err)
					}
					// datasets written before the folder was watched
					if !pending {
						pending = true
						timer.Reset(limiter.Reserve().Delay())
					}
					continue
				}
			}
			if !watched(ev.Name) || pending {
				continue
			}
			pending = true
			timer.Reset(limiter.Reserve().Delay())
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.logf("archive: watcher error: %v", err)
		case <-timer.C:
			pending = false
			if err := a.Scan(); err != nil {
				a.logf("archive: rescan of %s failed: %v", a.Root, err)
				continue
			}
			fn(a.List())
		}
	}
}
