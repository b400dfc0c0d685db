package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/epr-lab/goxepr/generichttp"
)

type table generichttp.RouteTable

func (t table) RT() generichttp.RouteTable { return generichttp.RouteTable(t) }

func TestLockerBlocksWrites(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	rt := table{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/o"}:  ok,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/o"}: ok,
	}
	l := New()
	Inject(rt, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	rt.RT().Bind(r)

	do := func(method, path, body string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w.Code
	}

	if code := do(http.MethodPost, "/lock", `{"bool": true}`); code != http.StatusOK {
		t.Fatalf("locking: expected 200 got %d", code)
	}
	if !l.Locked() {
		t.Fatal("expected the locker to be locked")
	}
	if code := do(http.MethodPost, "/o", ""); code != http.StatusLocked {
		t.Errorf("write while locked: expected 423 got %d", code)
	}
	if code := do(http.MethodGet, "/o", ""); code != http.StatusOK {
		t.Errorf("read while locked: expected 200 got %d", code)
	}
	if code := do(http.MethodPost, "/lock", `{"bool": false}`); code != http.StatusOK {
		t.Fatalf("unlocking: expected 200 got %d", code)
	}
	if code := do(http.MethodPost, "/o", ""); code != http.StatusOK {
		t.Errorf("write after unlock: expected 200 got %d", code)
	}
}
