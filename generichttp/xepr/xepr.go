// Package xepr exposes a working BES3T dataset over HTTP.
//
// One dataset at a time is loaded into a Workspace, inspected and edited
// through its parameters and ordinate, and saved, either to a named path or
// through a recorder to the next numbered file.
package xepr

import (
	"bytes"
	"encoding/json"
	"errors"
	"go/types"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/go-chi/chi"

	"github.com/epr-lab/goxepr/bes3t"
	"github.com/epr-lab/goxepr/export"
	"github.com/epr-lab/goxepr/generichttp"
	"github.com/epr-lab/goxepr/recorder"
	"github.com/epr-lab/goxepr/server"
)

// ErrNoDataset is returned by every dataset route before anything is loaded
var ErrNoDataset = errors.New("xepr: no dataset loaded")

// Par is the JSON form of a parameter
type Par struct {
	Name    string      `json:"name"`
	Value   interface{} `json:"value"`
	Unit    string      `json:"unit,omitempty"`
	Comment string      `json:"comment,omitempty"`

	// Text is the parameter as written in the .DSC file
	Text string `json:"text"`
}

func newPar(name string, p *bes3t.Param) Par {
	return Par{Name: name, Value: p.Value(), Unit: p.Unit(), Comment: p.Comment(), Text: p.String()}
}

// Group is the JSON form of a group; Pars are names in file order
type Group struct {
	Name string   `json:"name"`
	Pars []string `json:"pars"`
}

// Layer is the JSON form of a layer
type Layer struct {
	Type    bes3t.LayerType `json:"type"`
	Name    string          `json:"name"`
	Version string          `json:"version"`
	Groups  []Group         `json:"groups"`
}

// Workspace holds the dataset being worked on.  It is safe for concurrent use.
type Workspace struct {
	mu   sync.Mutex
	d    *bes3t.Dataset
	path string
	rec  *recorder.Recorder
	opts []bes3t.Option

	// RouteTable maps methods and paths to handlers
	RouteTable generichttp.RouteTable
}

// NewWorkspace returns an empty workspace.  rec, which may be nil, is used to
// save datasets when no path is given and gets its /autosave routes.
func NewWorkspace(rec *recorder.Recorder, opts ...bes3t.Option) *Workspace {
	ws := &Workspace{rec: rec, opts: opts}
	rt := generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/load"}:         generichttp.SetString(ws.Load),
		{Method: http.MethodPost, Path: "/save"}:         ws.httpSave,
		{Method: http.MethodGet, Path: "/path"}:          generichttp.GetString(ws.Path),
		{Method: http.MethodGet, Path: "/pulsed"}:        generichttp.GetBool(ws.IsPulsed),
		{Method: http.MethodGet, Path: "/pars"}:          ws.httpPars,
		{Method: http.MethodGet, Path: "/par/{name}"}:    ws.httpGetPar,
		{Method: http.MethodPost, Path: "/par/{name}"}:   ws.httpSetPar,
		{Method: http.MethodDelete, Path: "/par/{name}"}: ws.httpDeletePar,
		{Method: http.MethodGet, Path: "/layers"}:        ws.httpLayers,
		{Method: http.MethodGet, Path: "/x"}:             ws.httpAxis(func(d *bes3t.Dataset) []float64 { return d.X }),
		{Method: http.MethodGet, Path: "/y"}:             ws.httpAxis(func(d *bes3t.Dataset) []float64 { return d.Y }),
		{Method: http.MethodGet, Path: "/z"}:             ws.httpAxis(func(d *bes3t.Dataset) []float64 { return d.Z }),
		{Method: http.MethodGet, Path: "/o"}:             ws.httpGetO,
		{Method: http.MethodPost, Path: "/o"}:            ws.httpSetO,
		{Method: http.MethodGet, Path: "/fits"}:          ws.httpExport("application/fits", export.WriteFits),
		{Method: http.MethodGet, Path: "/csv"}:           ws.httpExport("text/csv", export.WriteCSV),
	}
	ws.RouteTable = rt
	if rec != nil {
		recorder.NewHTTPWrapper(rec).Inject(ws)
	}
	return ws
}

// RT satisfies generichttp.HTTPer
func (ws *Workspace) RT() generichttp.RouteTable {
	return ws.RouteTable
}

// Load replaces the working dataset with the one at path.  The previous
// dataset is kept if loading fails.
func (ws *Workspace) Load(path string) error {
	d, err := bes3t.Load(path, ws.opts...)
	if err != nil {
		return err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.d = d
	ws.path = bes3t.BasePath(path)
	return nil
}

// Save writes the working dataset to path, or through the recorder when path
// is empty, and returns the base path written
func (ws *Workspace) Save(path string) (string, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.d == nil {
		return "", ErrNoDataset
	}
	if path == "" {
		if ws.rec == nil {
			return "", errors.New("xepr: no path given and no recorder configured")
		}
		base, err := ws.rec.Save(ws.d)
		if err != nil {
			return "", err
		}
		ws.path = base
		return base, nil
	}
	if err := ws.d.Save(path); err != nil {
		return "", err
	}
	ws.path = bes3t.BasePath(path)
	return ws.path, nil
}

// Path is the base path the working dataset was last loaded from or saved to
func (ws *Workspace) Path() (string, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.d == nil {
		return "", ErrNoDataset
	}
	return ws.path, nil
}

// IsPulsed reports whether the working dataset is a pulsed measurement
func (ws *Workspace) IsPulsed() (bool, error) {
	var pulsed bool
	err := ws.with(func(d *bes3t.Dataset) error {
		pulsed = d.IsPulsed()
		return nil
	})
	return pulsed, err
}

// with calls fn with the working dataset under the lock
func (ws *Workspace) with(fn func(d *bes3t.Dataset) error) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.d == nil {
		return ErrNoDataset
	}
	return fn(ws.d)
}

// status maps an error to the HTTP status reported for it
func status(err error) int {
	switch {
	case errors.Is(err, ErrNoDataset):
		return http.StatusConflict
	case errors.Is(err, bes3t.ErrNoParam), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, bes3t.ErrValue), errors.Is(err, bes3t.ErrFormat):
		return http.StatusBadRequest
	case errors.Is(err, export.ErrDims):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func reply(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), status(err))
}

func (ws *Workspace) httpSave(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	s := generichttp.StrT{}
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil && err != io.EOF {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	base, err := ws.Save(s.Str)
	if err != nil {
		reply(w, err)
		return
	}
	generichttp.HumanPayload{T: types.String, String: base}.EncodeAndRespond(w, r)
}

func (ws *Workspace) httpPars(w http.ResponseWriter, r *http.Request) {
	var pars []Par
	err := ws.with(func(d *bes3t.Dataset) error {
		pp := d.Pars()
		for _, name := range pp.Names() {
			p, err := pp.Get(name)
			if err != nil {
				return err
			}
			pars = append(pars, newPar(name, p))
		}
		return nil
	})
	if err != nil {
		reply(w, err)
		return
	}
	server.ReplyWithJSON(w, pars)
}

func (ws *Workspace) httpGetPar(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var par Par
	err := ws.with(func(d *bes3t.Dataset) error {
		p, err := d.Pars().Get(name)
		if err != nil {
			return err
		}
		par = newPar(name, p)
		return nil
	})
	if err != nil {
		reply(w, err)
		return
	}
	server.ReplyWithJSON(w, par)
}

// httpSetPar takes the parameter in its .DSC text form, {"str": "3400 G"}
func (ws *Workspace) httpSetPar(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s := generichttp.StrT{}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := bes3t.ParseParam(strings.TrimSpace(s.Str))
	if err != nil {
		reply(w, err)
		return
	}
	err = ws.with(func(d *bes3t.Dataset) error {
		d.Pars().Set(name, p)
		return nil
	})
	if err != nil {
		reply(w, err)
		return
	}
	server.ReplyWithJSON(w, newPar(name, p))
}

func (ws *Workspace) httpDeletePar(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := ws.with(func(d *bes3t.Dataset) error {
		return d.Pars().Delete(name)
	})
	if err != nil {
		reply(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (ws *Workspace) httpLayers(w http.ResponseWriter, r *http.Request) {
	var layers []Layer
	err := ws.with(func(d *bes3t.Dataset) error {
		for _, l := range d.Layers() {
			out := Layer{Type: l.Type(), Name: l.Name(), Version: l.Version, Groups: []Group{}}
			for _, g := range l.Groups() {
				out.Groups = append(out.Groups, Group{Name: g.Name, Pars: g.Names()})
			}
			layers = append(layers, out)
		}
		return nil
	})
	if err != nil {
		reply(w, err)
		return
	}
	server.ReplyWithJSON(w, layers)
}

func (ws *Workspace) httpAxis(axis func(*bes3t.Dataset) []float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var vals []float64
		err := ws.with(func(d *bes3t.Dataset) error {
			vals = append([]float64{}, axis(d)...)
			return nil
		})
		if err != nil {
			reply(w, err)
			return
		}
		server.ReplyWithJSON(w, vals)
	}
}

func (ws *Workspace) httpGetO(w http.ResponseWriter, r *http.Request) {
	var chs []bes3t.Channel
	err := ws.with(func(d *bes3t.Dataset) error {
		var err error
		chs, err = d.O()
		return err
	})
	if err != nil {
		reply(w, err)
		return
	}
	server.ReplyWithJSON(w, chs)
}

// httpSetO takes a JSON array of channels shaped like the stored ordinate
func (ws *Workspace) httpSetO(w http.ResponseWriter, r *http.Request) {
	var chs []bes3t.Channel
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&chs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err := ws.with(func(d *bes3t.Dataset) error {
		return d.SetO(chs...)
	})
	if err != nil {
		reply(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (ws *Workspace) httpExport(contentType string, write func(io.Writer, *bes3t.Dataset) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buf := &bytes.Buffer{}
		err := ws.with(func(d *bes3t.Dataset) error {
			return write(buf, d)
		})
		if err != nil {
			reply(w, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Write(buf.Bytes())
	}
}
