package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/epr-lab/goxepr/archive"
	"github.com/epr-lab/goxepr/bes3t"
	"github.com/epr-lab/goxepr/generichttp"
	"github.com/epr-lab/goxepr/generichttp/xepr"
	"github.com/epr-lab/goxepr/recorder"
	"github.com/epr-lab/goxepr/server/middleware/locker"
)

// Config is a struct that holds the initialization parameters for the
// server.  It is to be populated by koanf.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// Root is the folder tree of datasets served under /archive
	Root string `yaml:"Root"`

	// Autosave is the folder datasets saved without a path are recorded into
	Autosave string `yaml:"Autosave"`

	// Prefix is the file name prefix of recorded datasets
	Prefix string `yaml:"Prefix"`

	// Endpoint is the URL the working dataset is served on
	Endpoint string `yaml:"Endpoint"`

	// Watch rescans the archive whenever a dataset below Root changes
	Watch bool `yaml:"Watch"`

	// RescanInterval is the least time between two rescans, e.g. "2s"
	RescanInterval string `yaml:"RescanInterval"`

	// MaxWait bounds how long a dataset that is still being written is waited
	// for, e.g. "3s"
	MaxWait string `yaml:"MaxWait"`

	// StrictVersion refuses layers of a version the parser does not know,
	// instead of logging a warning
	StrictVersion bool `yaml:"StrictVersion"`
}

func duration(s string, dflt time.Duration) time.Duration {
	if s == "" {
		return dflt
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("bad duration %q, using %v: %v", s, dflt, err)
		return dflt
	}
	return d
}

// BuildMux mounts the archive and the working dataset on a chi router.  The
// router serves a special route, /endpoints, which returns a map of
// mount point to routes as JSON.  When the archive is watched the watcher
// runs until ctx is done.
func BuildMux(ctx context.Context, c Config) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	var opts []bes3t.Option
	if c.StrictVersion {
		opts = append(opts, bes3t.WithStrictVersion())
	}

	arc := archive.New(c.Root, opts...)
	arc.MaxWait = duration(c.MaxWait, arc.MaxWait)
	if err := arc.Scan(); err != nil {
		log.Printf("unable to index %s: %v", c.Root, err)
	} else {
		log.Printf("indexed %d datasets below %s", len(arc.List()), c.Root)
	}
	if c.Watch {
		interval := duration(c.RescanInterval, 2*time.Second)
		go func() {
			err := arc.Watch(ctx, interval, func(l []archive.Entry) {
				log.Printf("archive changed, %d datasets", len(l))
			})
			if err != nil {
				log.Printf("archive watcher stopped: %v", err)
			}
		}()
	}
	root.Mount("/archive", http.StripPrefix("/archive", archive.NewMux(arc)))
	supergraph["/archive"] = archive.Endpoints()

	rec := recorder.New(c.Autosave, c.Prefix)
	ws := xepr.NewWorkspace(rec, opts...)
	lock := locker.New()
	locker.Inject(ws, lock)
	r := chi.NewRouter()
	r.Use(lock.Check)
	ws.RT().Bind(r)
	stem := generichttp.SubMuxSanitize(c.Endpoint)
	root.Mount(stem, r)
	supergraph[stem] = ws.RT().Endpoints()

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}
