package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"

	"goji.io"
	"goji.io/pat"

	"github.com/epr-lab/goxepr/bes3t"
	"github.com/epr-lab/goxepr/export"
	"github.com/epr-lab/goxepr/server"
)

// name joins the dir and name route parameters.  pat.Param panics on
// parameters the route does not have, so the one segment routes pass
// withDir false.
func name(r *http.Request, withDir bool) string {
	n := pat.Param(r, "name")
	if withDir {
		n = path.Join(pat.Param(r, "dir"), n)
	}
	return n
}

// NewMux returns a goji mux serving the archive:
//
//	GET  /list                  JSON listing of the index
//	POST /rescan                rebuild the index, reply with the listing
//	GET  /dsc/[dir/]name        the raw header
//	GET  /fits/[dir/]name       the dataset as a FITS image
//	GET  /csv/[dir/]name        the dataset as a CSV table
//	GET  /checksum/[dir/]name   CRC-32 of the ordinate file
//
// Mount it below a prefix with http.StripPrefix.
func NewMux(a *Archive) *goji.Mux {
	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/list"), func(w http.ResponseWriter, r *http.Request) {
		server.ReplyWithJSON(w, a.List())
	})
	mux.HandleFunc(pat.Post("/rescan"), func(w http.ResponseWriter, r *http.Request) {
		if err := a.Scan(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		server.ReplyWithJSON(w, a.List())
	})

	type route struct {
		prefix string
		h      func(w http.ResponseWriter, r *http.Request, name string)
	}
	routes := []route{
		{"/dsc", a.serveDSC},
		{"/fits", a.serveExport("application/fits", export.WriteFits)},
		{"/csv", a.serveExport("text/csv", export.WriteCSV)},
		{"/checksum", a.serveChecksum},
	}
	for _, rt := range routes {
		h := rt.h
		mux.HandleFunc(pat.Get(rt.prefix+"/:name"), func(w http.ResponseWriter, r *http.Request) {
			h(w, r, name(r, false))
		})
		mux.HandleFunc(pat.Get(rt.prefix+"/:dir/:name"), func(w http.ResponseWriter, r *http.Request) {
			h(w, r, name(r, true))
		})
	}
	return mux
}

func (a *Archive) serveDSC(w http.ResponseWriter, r *http.Request, name string) {
	server.ReplyWithFile(w, r, name+bes3t.ExtDSC, a.Root)
}

func (a *Archive) serveChecksum(w http.ResponseWriter, r *http.Request, name string) {
	c, err := Checksum(a.Path(name) + bes3t.ExtDTA)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}
	server.ReplyWithJSON(w, struct {
		Name     string `json:"name"`
		Checksum uint32 `json:"crc32"`
	}{name, c})
}

func (a *Archive) serveExport(contentType string, write func(io.Writer, *bes3t.Dataset) error) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, name string) {
		d, err := a.Open(r.Context(), name)
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, ErrNotFound) {
				code = http.StatusNotFound
			}
			fstr := fmt.Sprintf("unable to open %s %s", name, err)
			log.Println(fstr)
			http.Error(w, fstr, code)
			return
		}
		buf := &bytes.Buffer{}
		if err := write(buf, d); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Write(buf.Bytes())
	}
}

// Endpoints lists the routes served by NewMux, in the form of
// generichttp.RouteTable.Endpoints
func Endpoints() []string {
	return []string{
		"POST /rescan",
		"GET /list",
		"GET /dsc/{name}",
		"GET /fits/{name}",
		"GET /csv/{name}",
		"GET /checksum/{name}",
	}
}
