// Package archive indexes a folder tree of BES3T datasets and serves it over
// HTTP.
package archive

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/snksoft/crc"

	"github.com/epr-lab/goxepr/bes3t"
)

// ErrNotFound is returned for names that do not resolve to a dataset header
var ErrNotFound = errors.New("archive: no such dataset")

var crcTable = crc.NewTable(crc.CRC32)

// Entry describes one dataset in the archive
type Entry struct {
	// Name is the slash separated path of the dataset relative to the root,
	// without extension
	Name string `json:"name"`

	// ModTime is the modification time of the header
	ModTime time.Time `json:"modTime"`

	// Size is the size of the ordinate file in bytes
	Size int64 `json:"size"`

	// Checksum is the CRC-32 of the ordinate file
	Checksum uint32 `json:"crc32"`

	// Complete is false while the ordinate file is missing
	Complete bool `json:"complete"`
}

// Archive is an index of the datasets below Root.  It is safe for concurrent
// use.
type Archive struct {
	// Root is the folder holding the datasets
	Root string

	// MaxWait bounds how long Open retries a dataset that is still being
	// written
	MaxWait time.Duration

	// Logger receives errors from the watcher; nil uses the standard logger
	Logger *log.Logger

	opts []bes3t.Option

	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty archive of root.  opts are used to load datasets.
func New(root string, opts ...bes3t.Option) *Archive {
	return &Archive{
		Root:    root,
		MaxWait: 3 * time.Second,
		opts:    opts,
		entries: map[string]Entry{},
	}
}

func (a *Archive) logf(format string, args ...interface{}) {
	if a.Logger != nil {
		a.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Checksum is the CRC-32 of the file at path
func Checksum(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	c := crcTable.InitCrc()
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		c = crcTable.UpdateCrc(c, buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return crcTable.CRC32(c), nil
}

// Scan rebuilds the index by walking Root for header files
func (a *Archive) Scan() error {
	entries := map[string]Entry{}
	err := filepath.Walk(a.Root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(p) != bes3t.ExtDSC {
			return nil
		}
		rel, err := filepath.Rel(a.Root, bes3t.BasePath(p))
		if err != nil {
			return err
		}
		e := Entry{Name: filepath.ToSlash(rel), ModTime: info.ModTime()}
		base := bes3t.BasePath(p)
		if st, err := os.Stat(base + bes3t.ExtDTA); err == nil {
			e.Size = st.Size()
			e.Checksum, err = Checksum(base + bes3t.ExtDTA)
			if err != nil {
				return err
			}
			e.Complete = true
		}
		entries[e.Name] = e
		return nil
	})
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = entries
	return nil
}

// List returns the indexed datasets sorted by name
func (a *Archive) List() []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Entry returns the index entry for name
func (a *Archive) Entry(name string) (Entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[name]
	return e, ok
}

// Path resolves a dataset name to a base path below Root.  Names cannot climb
// out of Root.
func (a *Archive) Path(name string) string {
	clean := path.Clean("/" + name)
	return filepath.Join(a.Root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
}

// Open loads the dataset called name.  A dataset whose header exists but
// whose data files are missing or short is retried with exponential backoff
// for up to MaxWait, since the acquisition software may still be writing it;
// a zero MaxWait disables the retry.  Any other error is returned at once.
func (a *Archive) Open(ctx context.Context, name string) (*bes3t.Dataset, error) {
	base := a.Path(name)
	if _, err := os.Stat(base + bes3t.ExtDSC); err != nil {
		return nil, ErrNotFound
	}
	var d *bes3t.Dataset
	op := func() error {
		var err error
		d, err = bes3t.Load(base, a.opts...)
		if err == nil || errors.Is(err, bes3t.ErrTruncated) || errors.Is(err, os.ErrNotExist) {
			return err
		}
		return backoff.Permanent(err)
	}
	var b backoff.BackOff = &backoff.StopBackOff{}
	if a.MaxWait > 0 {
		b = &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      a.MaxWait,
			Clock:               backoff.SystemClock}
	}
	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, err
	}
	return d, nil
}
