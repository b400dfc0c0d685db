package bes3t

import (
	"fmt"
	"regexp"
	"strings"
)

// LayerType is the tag that opens a layer section in a .DSC file
type LayerType string

const (
	// TypeDESC is the descriptor layer, which describes content and layout of
	// the data files
	TypeDESC LayerType = "DESC"

	// TypeSPL is the standard parameter layer, holding the mandatory EPR
	// parameters
	TypeSPL LayerType = "SPL"

	// TypeDSL is the device specific layer, holding parameters grouped by the
	// functional unit of the instrument they belong to
	TypeDSL LayerType = "DSL"

	// TypeMHL is the manipulation history layer
	TypeMHL LayerType = "MHL"
)

// LayerTypes lists the layer types in the order they appear in a file
var LayerTypes = []LayerType{TypeDESC, TypeSPL, TypeDSL, TypeMHL}

// layerEnd closes every layer
var layerEnd = "*\n" + strings.Repeat("*", 60) + "\n*"

// sentinel stands in for a group name while a header template is turned into
// a regular expression.  It is alphabetic so QuoteMeta leaves it alone.
const sentinel = "UNIQUESTRING"

// layerKind holds everything that differs between the four layer types
type layerKind struct {
	typ       LayerType
	name      string
	version   string
	supported []string

	// headerTail follows "#TYPE\tVERSION * NAME" on the layer header
	headerTail string

	group *groupFormat

	// anonymous layers hold one unnamed group and no group headers
	anonymous bool

	// nameRe captures group names, splitRe matches group headers
	nameRe  *regexp.Regexp
	splitRe *regexp.Regexp
}

var kinds = map[LayerType]*layerKind{}

func init() {
	for _, k := range []*layerKind{
		{typ: TypeDESC, name: "DESCRIPTOR INFORMATION", version: "1.2", supported: []string{"1.2"},
			headerTail: " ***********************", group: &descGroupFormat},
		{typ: TypeSPL, name: "STANDARD PARAMETER LAYER", version: "1.2", supported: []string{"1.2"},
			headerTail: "\n*", group: &splGroupFormat, anonymous: true},
		{typ: TypeDSL, name: "DEVICE SPECIFIC LAYER", version: "1.0", supported: []string{"1.0"},
			headerTail: "\n*", group: &dslGroupFormat},
		{typ: TypeMHL, name: "MANIPULATION HISTORY LAYER by BRUKER", version: "1.0", supported: []string{"1.0"},
			headerTail: "\n*", group: &mhlGroupFormat},
	} {
		if !k.anonymous {
			k.nameRe, k.splitRe = headerPatterns(k.group.header)
		}
		kinds[k.typ] = k
	}
}

// headerPatterns builds a capturing and a non-capturing pattern from a group
// header template
func headerPatterns(tmpl string) (*regexp.Regexp, *regexp.Regexp) {
	if strings.Contains(tmpl, sentinel) {
		panic("bes3t: group header template " + tmpl + " contains " + sentinel)
	}
	quoted := regexp.QuoteMeta(strings.Replace(tmpl, namePlaceholder, sentinel, 1))
	capture := regexp.MustCompile(strings.Replace(quoted, sentinel, "(.*)", 1))
	discard := regexp.MustCompile(strings.Replace(quoted, sentinel, ".*", 1))
	return capture, discard
}

// Layer is one of the four top level sections of a .DSC file.  It holds an
// ordered set of named groups.
type Layer struct {
	// Version is the format version written on the layer header.  Loading a
	// file replaces it with the version found there.
	Version string

	kind   *layerKind
	names  []string
	groups map[string]*Group
}

// NewLayer returns an empty layer of type t.  It panics if t is not one of
// LayerTypes.
func NewLayer(t LayerType) *Layer {
	k, ok := kinds[t]
	if !ok {
		panic(fmt.Sprintf("bes3t: unknown layer type %q", t))
	}
	return &Layer{Version: k.version, kind: k, groups: map[string]*Group{}}
}

// Type returns the layer's type tag
func (l *Layer) Type() LayerType {
	return l.kind.typ
}

// Name returns the layer's display name
func (l *Layer) Name() string {
	return l.kind.name
}

// Supported reports whether version is a version of this layer type the
// parser was written against
func (l *Layer) Supported(version string) bool {
	for _, v := range l.kind.supported {
		if v == version {
			return true
		}
	}
	return false
}

// Group returns the group called name
func (l *Layer) Group(name string) (*Group, bool) {
	g, ok := l.groups[name]
	return g, ok
}

// AddGroup adds g to the layer, replacing any group of the same name in place.
// The group adopts the layer's formatting.
func (l *Layer) AddGroup(g *Group) {
	g.format = l.kind.group
	if _, ok := l.groups[g.Name]; !ok {
		l.names = append(l.names, g.Name)
	}
	l.groups[g.Name] = g
}

// EnsureGroup returns the group called name, creating and appending an empty
// one if needed
func (l *Layer) EnsureGroup(name string) *Group {
	if g, ok := l.groups[name]; ok {
		return g
	}
	g := NewGroup(l.kind.typ, name)
	l.AddGroup(g)
	return g
}

// RemoveGroup removes the group called name and reports whether it existed
func (l *Layer) RemoveGroup(name string) bool {
	if _, ok := l.groups[name]; !ok {
		return false
	}
	delete(l.groups, name)
	for i, n := range l.names {
		if n == name {
			l.names = append(l.names[:i], l.names[i+1:]...)
			break
		}
	}
	return true
}

// Groups returns the groups in order
func (l *Layer) Groups() []*Group {
	out := make([]*Group, len(l.names))
	for i, n := range l.names {
		out[i] = l.groups[n]
	}
	return out
}

// Len is the number of groups in the layer
func (l *Layer) Len() int {
	return len(l.names)
}

func (l *Layer) header() string {
	return fmt.Sprintf("#%s\t%s * %s%s", l.kind.typ, l.Version, l.kind.name, l.kind.headerTail)
}

// String returns the layer as it appears in a .DSC file
func (l *Layer) String() string {
	lines := []string{l.header()}
	for _, g := range l.Groups() {
		lines = append(lines, g.String())
	}
	lines = append(lines, layerEnd)
	return strings.Join(lines, "\n")
}

// Parse replaces the groups of the layer with those found in body, the layer
// section of a .DSC file following the layer header line.
func (l *Layer) Parse(body string) error {
	l.names = nil
	l.groups = map[string]*Group{}

	if l.kind.anonymous {
		g := NewGroup(l.kind.typ, "")
		if err := g.Parse(body); err != nil {
			return err
		}
		l.AddGroup(g)
		return nil
	}

	names := l.kind.nameRe.FindAllStringSubmatch(body, -1)
	contents := l.kind.splitRe.Split(body, -1)[1:]
	for i := 0; i < len(names) && i < len(contents); i++ {
		g := NewGroup(l.kind.typ, names[i][1])
		if err := g.Parse(contents[i]); err != nil {
			return err
		}
		l.AddGroup(g)
	}
	return nil
}
