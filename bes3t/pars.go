package bes3t

import (
	"github.com/pkg/errors"

	"github.com/epr-lab/goxepr/util"
)

// Pars is a flattened view of the parameters of a dataset, keyed by parameter
// name across every group of every layer.  It holds no state of its own; each
// call walks the layers in file order.
type Pars struct {
	d *Dataset
}

func (p Pars) each(fn func(g *Group) bool) {
	for _, l := range p.d.Layers() {
		for _, g := range l.Groups() {
			if !fn(g) {
				return
			}
		}
	}
}

// Get returns the first parameter called name
func (p Pars) Get(name string) (*Param, error) {
	var out *Param
	p.each(func(g *Group) bool {
		par, ok := g.Get(name)
		if ok {
			out = par
		}
		return !ok
	})
	if out == nil {
		return nil, errors.Wrapf(ErrNoParam, "%q", name)
	}
	return out, nil
}

// Has reports whether any group holds a parameter called name
func (p Pars) Has(name string) bool {
	_, err := p.Get(name)
	return err == nil
}

// Set stores par under name in the first group that already holds name.  A
// new name goes into the customXepr group of the device specific layer, which
// is created if needed.
func (p Pars) Set(name string, par *Param) {
	set := false
	p.each(func(g *Group) bool {
		if _, ok := g.Get(name); ok {
			g.Set(name, par)
			set = true
		}
		return !set
	})
	if !set {
		p.d.DSL.EnsureGroup(CustomGroup).Set(name, par)
	}
}

// SetValue updates the value of the parameter called name, keeping its unit
// and comment, or creates a unitless parameter as Set does.
func (p Pars) SetValue(name string, v interface{}) error {
	if par, err := p.Get(name); err == nil {
		return par.SetValue(v)
	}
	par := &Param{}
	if err := par.SetValue(v); err != nil {
		return err
	}
	p.Set(name, par)
	return nil
}

// Delete removes name from every group holding it.  It returns ErrNoParam,
// and changes nothing, if no group does.
func (p Pars) Delete(name string) error {
	found := false
	p.each(func(g *Group) bool {
		if g.Delete(name) {
			found = true
		}
		return true
	})
	if !found {
		return errors.Wrapf(ErrNoParam, "%q", name)
	}
	return nil
}

// Names returns every parameter name once, in file order
func (p Pars) Names() []string {
	names := []string{}
	p.each(func(g *Group) bool {
		names = append(names, g.Names()...)
		return true
	})
	return util.UniqueString(names)
}

// Len is the number of distinct parameter names
func (p Pars) Len() int {
	return len(p.Names())
}
