// Package recorder saves datasets with incrementing names in dated folders.
package recorder

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/epr-lab/goxepr/bes3t"
	"github.com/epr-lab/goxepr/generichttp"
)

// Recorder saves datasets as <Root>/yyyy-mm-dd/<Prefix>NNNNNN.{DSC,DTA,...}
type Recorder struct {
	mu sync.Mutex

	// counter is the number of the next dataset
	counter int

	// Root is the root path
	Root string

	// Prefix is the prefix for the file names
	Prefix string

	// Enabled is a flag unused by this struct that allows consumers to disable
	// its use in their code
	Enabled bool

	now func() time.Time
}

// New returns a recorder saving under root, with the counter positioned after
// any dataset already recorded today
func New(root, prefix string) *Recorder {
	r := &Recorder{Root: root, Prefix: prefix, Enabled: true, now: time.Now}
	r.Incr()
	return r
}

func (r *Recorder) folder() string {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	return filepath.Join(r.Root, now().Format("2006-01-02"))
}

// Next returns the base path the next dataset will be saved to
func (r *Recorder) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next()
}

func (r *Recorder) next() string {
	return filepath.Join(r.folder(), fmt.Sprintf("%s%06d", r.Prefix, r.counter))
}

// Save writes d to the next base path, creating the dated folder as needed,
// and returns that path
func (r *Recorder) Save(d *bes3t.Dataset) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.MkdirAll(r.folder(), 0777); err != nil {
		return "", err
	}
	base := r.next()
	if err := d.Save(base); err != nil {
		return "", err
	}
	r.counter++
	return base, nil
}

// Incr positions the counter after the highest numbered dataset with the
// current prefix in today's folder.  A missing folder starts the count at 0.
func (r *Recorder) Incr() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incr()
}

func (r *Recorder) incr() {
	files, err := ioutil.ReadDir(r.folder())
	if err != nil {
		r.counter = 0
		return
	}
	count := -1
	for _, file := range files {
		fn := file.Name()
		if file.IsDir() || !strings.HasSuffix(fn, bes3t.ExtDSC) || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(fn, r.Prefix), bes3t.ExtDSC))
		if err != nil {
			continue
		}
		if n > count {
			count = n
		}
	}
	r.counter = count + 1
}

// HTTPWrapper is an HTTP wrapper around a recorder that allows the folder and
// prefix to be changed on the fly.
//
// It does not implement generichttp.HTTPer, offering an Inject method
// allowing it to be injected into another HTTPer.
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

func (h HTTPWrapper) setRoot(root string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Root = root
	if err := os.MkdirAll(h.folder(), 0777); err != nil {
		return err
	}
	h.incr()
	return nil
}

func (h HTTPWrapper) setPrefix(prefix string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Prefix = prefix
	h.incr()
	return nil
}

func (h HTTPWrapper) setEnabled(b bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Enabled = b
	return nil
}

func (h HTTPWrapper) get(fn func() string) func() (string, error) {
	return func() (string, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		return fn(), nil
	}
}

// Inject adds GET and POST routes for /autosave/root, /autosave/prefix and
// /autosave/enabled to the HTTPer, which manipulate this wrapper's recorder
func (h HTTPWrapper) Inject(other generichttp.HTTPer) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autosave/root"}] = generichttp.SetString(h.setRoot)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autosave/root"}] = generichttp.GetString(h.get(func() string { return h.Root }))
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autosave/prefix"}] = generichttp.SetString(h.setPrefix)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autosave/prefix"}] = generichttp.GetString(h.get(func() string { return h.Prefix }))
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autosave/enabled"}] = generichttp.SetBool(h.setEnabled)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autosave/enabled"}] = generichttp.GetBool(func() (bool, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.Enabled, nil
	})
}
