package main

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/go-yaml/yaml"

	"github.com/epr-lab/goxepr/archive"
	"github.com/epr-lab/goxepr/bes3t"
)

// dataExts are the files of a dataset compared by verify
var dataExts = []string{bes3t.ExtDSC, bes3t.ExtDTA, ".XGF", ".YGF", ".ZGF"}

func info(w io.Writer, d *bes3t.Dataset) error {
	order, err := d.ByteOrder()
	if err != nil {
		return err
	}
	chs, err := d.O()
	if err != nil {
		return err
	}
	kind := "CW"
	if d.IsPulsed() {
		kind = "pulsed"
	}
	fmt.Fprintf(w, "shape:      %v\n", d.Shape())
	fmt.Fprintf(w, "channels:   %d\n", len(chs))
	fmt.Fprintf(w, "byte order: %v\n", order)
	fmt.Fprintf(w, "kind:       %s\n", kind)
	for _, l := range d.Layers() {
		if l.Len() == 0 {
			continue
		}
		fmt.Fprintf(w, "%-5s %-4s %d groups\n", l.Type(), l.Version, len(l.Groups()))
	}
	return nil
}

// pars dumps the parameters as YAML, layer by layer and group by group, in
// file order
func pars(w io.Writer, d *bes3t.Dataset) error {
	doc := yaml.MapSlice{}
	for _, l := range d.Layers() {
		groups := yaml.MapSlice{}
		for _, g := range l.Groups() {
			items := yaml.MapSlice{}
			for _, name := range g.Names() {
				p, _ := g.Get(name)
				items = append(items, yaml.MapItem{Key: name, Value: p.String()})
			}
			groups = append(groups, yaml.MapItem{Key: g.Name, Value: items})
		}
		if len(groups) > 0 {
			doc = append(doc, yaml.MapItem{Key: string(l.Type()), Value: groups})
		}
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func get(w io.Writer, d *bes3t.Dataset, name string) error {
	p, err := d.Pars().Get(name)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, p.String())
	return nil
}

// set replaces a parameter with the one given in .DSC text form and saves
// the dataset in place
func set(path string, d *bes3t.Dataset, name string, value string) error {
	p, err := bes3t.ParseParam(value)
	if err != nil {
		return err
	}
	d.Pars().Set(name, p)
	return d.Save(path)
}

// mismatch is a dataset file whose copy differs from the original
type mismatch struct {
	ext      string
	orig, cp uint32
}

// roundTrip saves a copy of the dataset at path into dir and returns the
// files whose CRC-32 differs from the original
func roundTrip(path, dir string, opts ...bes3t.Option) ([]mismatch, error) {
	d, err := bes3t.Load(path, opts...)
	if err != nil {
		return nil, err
	}
	base := bes3t.BasePath(path)
	cp := filepath.Join(dir, filepath.Base(base))
	if err := d.Save(cp); err != nil {
		return nil, err
	}
	var out []mismatch
	for _, ext := range dataExts {
		orig, err := archive.Checksum(base + ext)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		got, err := archive.Checksum(cp + ext)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if got != orig {
			out = append(out, mismatch{ext, orig, got})
		}
	}
	return out, nil
}

// verify round trips every path and reports per file whether the copy is
// byte identical.  It returns the number of datasets that are not.
func verify(w io.Writer, progress func(string), paths ...string) (int, error) {
	dir, err := ioutil.TempDir("", "bes3t-verify")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(dir)
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	failed := 0
	for _, path := range paths {
		progress(path)
		diffs, err := roundTrip(path, dir)
		switch {
		case err != nil:
			failed++
			fmt.Fprintf(w, "%s %s: %v\n", bad("FAIL"), path, err)
		case len(diffs) > 0:
			failed++
			strs := make([]string, len(diffs))
			for i, m := range diffs {
				strs[i] = fmt.Sprintf("%s %08x != %08x", m.ext, m.orig, m.cp)
			}
			fmt.Fprintf(w, "%s %s: %s\n", bad("DIFF"), path, strings.Join(strs, ", "))
		default:
			fmt.Fprintf(w, "%s %s\n", ok("OK"), path)
		}
	}
	return failed, nil
}
