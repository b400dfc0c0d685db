package xepr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"

	"github.com/epr-lab/goxepr/bes3t"
	"github.com/epr-lab/goxepr/generichttp"
	"github.com/epr-lab/goxepr/recorder"
	"github.com/epr-lab/goxepr/util"
)

func writeSweep(t *testing.T, dir string) string {
	t.Helper()
	d := bes3t.New()
	tf := d.Desc.EnsureGroup("Dataset Type and Format")
	tf.Set("BSEQ", bes3t.NewParam("BIG", ""))
	tf.Set("IKKF", bes3t.NewParam("REAL", ""))
	tf.Set("XTYP", bes3t.NewParam("IDX", ""))
	d.Desc.EnsureGroup("Item Formats").Set("IRFMT", bes3t.NewParam("D", ""))
	rng := d.Desc.EnsureGroup("Data Ranges and Resolutions")
	rng.Set("XPTS", bes3t.NewParam(3, ""))
	rng.Set("XMIN", bes3t.NewParam(3300.0, ""))
	rng.Set("XWID", bes3t.NewParam(200.0, ""))
	d.SPL.EnsureGroup("").Set("MWFQ", bes3t.NewParam(9.4e9, "Hz"))
	d.X = util.Linspace(3300, 3500, 3)
	if err := d.SetO(bes3t.RealChannel([]int{3}, []float64{1, 2, 3})); err != nil {
		t.Fatal(err)
	}
	base := filepath.Join(dir, "sweep")
	if err := d.Save(base); err != nil {
		t.Fatal(err)
	}
	return base
}

type client struct {
	t *testing.T
	r chi.Router
}

func (c client) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c.r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func (c client) decode(w *httptest.ResponseRecorder, v interface{}) {
	c.t.Helper()
	if w.Code != http.StatusOK {
		c.t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		c.t.Fatal(err)
	}
}

func setup(t *testing.T, rec *recorder.Recorder) (*Workspace, client, string) {
	dir := t.TempDir()
	base := writeSweep(t, dir)
	ws := NewWorkspace(rec)
	r := chi.NewRouter()
	ws.RT().Bind(r)
	return ws, client{t: t, r: r}, base
}

func TestNothingLoaded(t *testing.T) {
	_, c, _ := setup(t, nil)
	for _, path := range []string{"/pars", "/par/MWFQ", "/x", "/o", "/fits", "/layers"} {
		if w := c.do(http.MethodGet, path, ""); w.Code != http.StatusConflict {
			t.Errorf("%s: expected 409 got %d", path, w.Code)
		}
	}
}

func TestLoadAndInspect(t *testing.T) {
	_, c, base := setup(t, nil)
	if w := c.do(http.MethodPost, "/load", `{"str": "`+base+`.DTA"}`); w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}

	s := generichttp.StrT{}
	c.decode(c.do(http.MethodGet, "/path", ""), &s)
	if s.Str != base {
		t.Errorf("expected %s got %s", base, s.Str)
	}

	par := Par{}
	c.decode(c.do(http.MethodGet, "/par/MWFQ", ""), &par)
	if par.Unit != "Hz" || par.Value != 9.4e9 || par.Text != "9.400000e+09 Hz" {
		t.Errorf("unexpected MWFQ %+v", par)
	}

	var pars []Par
	c.decode(c.do(http.MethodGet, "/pars", ""), &pars)
	names := []string{}
	for _, p := range pars {
		names = append(names, p.Name)
	}
	want := []string{"BSEQ", "IKKF", "XTYP", "IRFMT", "XPTS", "XMIN", "XWID", "MWFQ"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	var x []float64
	c.decode(c.do(http.MethodGet, "/x", ""), &x)
	if diff := cmp.Diff([]float64{3300, 3400, 3500}, x); diff != "" {
		t.Errorf("x mismatch (-want +got):\n%s", diff)
	}

	var layers []Layer
	c.decode(c.do(http.MethodGet, "/layers", ""), &layers)
	if len(layers) != 4 || layers[0].Type != bes3t.TypeDESC || len(layers[0].Groups) != 3 {
		t.Errorf("unexpected layers %+v", layers)
	}

	b := generichttp.BoolT{}
	c.decode(c.do(http.MethodGet, "/pulsed", ""), &b)
	if b.Bool {
		t.Error("expected a CW dataset")
	}

	if w := c.do(http.MethodGet, "/par/NOPE", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 got %d", w.Code)
	}
	if w := c.do(http.MethodPost, "/load", `{"str": "/does/not/exist"}`); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 got %d", w.Code)
	}
	// the failed load keeps the dataset
	c.decode(c.do(http.MethodGet, "/path", ""), &s)
	if s.Str != base {
		t.Errorf("expected %s got %s", base, s.Str)
	}
}

func TestEditAndSave(t *testing.T) {
	dir := t.TempDir()
	rec := recorder.New(dir, "cw")
	ws, c, base := setup(t, rec)
	if err := ws.Load(base); err != nil {
		t.Fatal(err)
	}

	par := Par{}
	c.decode(c.do(http.MethodPost, "/par/MWFQ", `{"str": "9.5e9 Hz"}`), &par)
	if par.Value != 9.5e9 {
		t.Errorf("expected 9.5e9 got %v", par.Value)
	}
	c.decode(c.do(http.MethodPost, "/par/Operator", `{"str": "'someone'"}`), &par)
	if w := c.do(http.MethodDelete, "/par/XWID", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200 got %d", w.Code)
	}
	if w := c.do(http.MethodDelete, "/par/XWID", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 got %d", w.Code)
	}
	if w := c.do(http.MethodPost, "/par/BAD", `{"str": "{2;2;0} 1,2,3"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed array, got %d", w.Code)
	}

	if w := c.do(http.MethodPost, "/o", `[{"Shape": [3], "Re": [4, 5, 6]}]`); w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if w := c.do(http.MethodPost, "/o", `[{"Shape": [2], "Re": [4, 5]}]`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a misshapen ordinate, got %d", w.Code)
	}
	var chs []bes3t.Channel
	c.decode(c.do(http.MethodGet, "/o", ""), &chs)
	if diff := cmp.Diff([]float64{4, 5, 6}, chs[0].Re); diff != "" {
		t.Errorf("ordinate mismatch (-want +got):\n%s", diff)
	}

	s := generichttp.StrT{}
	c.decode(c.do(http.MethodPost, "/save", ""), &s)
	if !strings.HasSuffix(s.Str, "cw000000") {
		t.Errorf("expected the recorder to name the file, got %s", s.Str)
	}
	d, err := bes3t.Load(s.Str)
	if err != nil {
		t.Fatal(err)
	}
	if p, err := d.Pars().Get("Operator"); err != nil || p.String() != "'someone'" {
		t.Errorf("expected Operator to be saved, got %v %v", p, err)
	}
	if d.Pars().Has("XWID") {
		t.Error("expected XWID to be deleted")
	}

	out := filepath.Join(dir, "named.DSC")
	c.decode(c.do(http.MethodPost, "/save", `{"str": "`+out+`"}`), &s)
	if _, err := os.Stat(filepath.Join(dir, "named.DTA")); err != nil {
		t.Error(err)
	}

	// the recorder's routes are mounted alongside
	c.decode(c.do(http.MethodGet, "/autosave/prefix", ""), &s)
	if s.Str != "cw" {
		t.Errorf("expected prefix cw got %s", s.Str)
	}
}

func TestExports(t *testing.T) {
	ws, c, base := setup(t, nil)
	if err := ws.Load(base); err != nil {
		t.Fatal(err)
	}
	w := c.do(http.MethodGet, "/fits", "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "SIMPLE") {
		t.Errorf("expected a FITS file, got %d", w.Code)
	}
	w = c.do(http.MethodGet, "/csv", "")
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected text/csv got %s", ct)
	}
	if w := c.do(http.MethodPost, "/save", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("expected a save without path or recorder to fail, got %d", w.Code)
	}
}
