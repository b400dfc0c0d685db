package bes3t

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// namePlaceholder marks where the group name goes in a group header template
const namePlaceholder = "{name}"

// groupFormat fixes how the groups of one layer type are written.  The three
// knobs determine both directions of the text transform.
type groupFormat struct {
	// header is the template for the line(s) that open a group; empty when the
	// group has no header
	header string

	// cell is the width the parameter name is padded to
	cell int

	// delim separates the padded name from the value
	delim string
}

var (
	baseGroupFormat = groupFormat{header: "* " + namePlaceholder, cell: 19}
	descGroupFormat = groupFormat{header: "*\n*\t" + namePlaceholder + ":\n*", cell: 0, delim: "\t"}
	splGroupFormat  = groupFormat{cell: 8}
	dslGroupFormat  = groupFormat{header: "\n.DVC     " + namePlaceholder + ", 1.0\n", cell: 19}
	mhlGroupFormat  = groupFormat{header: "*\n*\t" + namePlaceholder + ":\n*", cell: 8}
)

func (f *groupFormat) headerFor(name string) string {
	return strings.Replace(f.header, namePlaceholder, name, 1)
}

// Group is a named, ordered set of parameters within a layer, usually all
// belonging to one functional unit of the spectrometer (e.g. mwBridge).
type Group struct {
	// Name is the group name.  It is empty for the single group of the
	// standard parameter layer.
	Name string

	format *groupFormat
	names  []string
	pars   map[string]*Param
}

// NewGroup returns an empty group formatted for layers of type t.
func NewGroup(t LayerType, name string) *Group {
	f := &baseGroupFormat
	if k, ok := kinds[t]; ok {
		f = k.group
	}
	return &Group{Name: name, format: f, pars: map[string]*Param{}}
}

// Get returns the parameter called name
func (g *Group) Get(name string) (*Param, bool) {
	p, ok := g.pars[name]
	return p, ok
}

// Set stores p under name.  A new name is appended; an existing one keeps its
// position.
func (g *Group) Set(name string, p *Param) {
	if _, ok := g.pars[name]; !ok {
		g.names = append(g.names, name)
	}
	g.pars[name] = p
}

// Delete removes the parameter called name and reports whether it existed
func (g *Group) Delete(name string) bool {
	if _, ok := g.pars[name]; !ok {
		return false
	}
	delete(g.pars, name)
	for i, n := range g.names {
		if n == name {
			g.names = append(g.names[:i], g.names[i+1:]...)
			break
		}
	}
	return true
}

// Names returns the parameter names in order
func (g *Group) Names() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Len is the number of parameters in the group
func (g *Group) Len() int {
	return len(g.names)
}

// String returns the group as it appears in a .DSC file
func (g *Group) String() string {
	lines := []string{}
	if g.format.header != "" {
		lines = append(lines, g.format.headerFor(g.Name))
	}
	for _, name := range g.names {
		lines = append(lines, g.line(name))
	}
	return strings.Join(lines, "\n")
}

func (g *Group) line(name string) string {
	cell := name
	if n := utf8.RuneCountInString(name); n < g.format.cell {
		cell += strings.Repeat(" ", g.format.cell-n)
	} else if g.format.delim == "" {
		cell += " "
	}
	return cell + g.format.delim + g.pars[name].String()
}

// Parse adds the parameters found in text to the group.  Empty lines and lines
// that do not start with a letter (banners, group headers, separators) are
// skipped.
func (g *Group) Parse(text string) error {
	for _, line := range joinContinued(strings.Split(text, "\n")) {
		if isMetadata(line) {
			continue
		}
		end := strings.IndexFunc(line, unicode.IsSpace)
		if end < 0 {
			end = len(line)
		}
		name := line[:end]
		p, err := ParseParam(strings.TrimLeft(line[end:], " \t"))
		if err != nil {
			return err
		}
		g.Set(name, p)
	}
	return nil
}

func isMetadata(line string) bool {
	if line == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(line)
	return !unicode.IsLetter(r)
}

// joinContinued merges lines ending in a backslash with the line that follows
func joinContinued(lines []string) []string {
	out := make([]string, 0, len(lines))
	var cur []string
	for _, l := range lines {
		cur = append(cur, l)
		if strings.HasSuffix(strings.TrimRight(l, "\r"), `\`) {
			continue
		}
		out = append(out, strings.Join(cur, "\n"))
		cur = cur[:0]
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, "\n"))
	}
	return out
}
