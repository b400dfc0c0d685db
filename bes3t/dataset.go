// Package bes3t reads and writes Bruker BES3T EPR measurement files.
//
// A dataset is a text header (.DSC) split into four parameter layers, the
// ordinate data (.DTA), and optionally the axis data (.XGF, .YGF, .ZGF).  The
// binary layout of the data files is derived from header parameters: BSEQ
// gives the byte order, IKKF the number and kind of channels, IRFMT/IIFMT the
// element types and XTYP/YTYP/ZTYP how each axis is stored.
//
// Loading and saving an unmodified dataset reproduces every file byte for
// byte.
//
// A Dataset is not safe for concurrent use.
package bes3t

import (
	"encoding/binary"
	"io/ioutil"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/epr-lab/goxepr/util"
)

const (
	// ExtDSC is the extension of the header file
	ExtDSC = ".DSC"

	// ExtDTA is the extension of the ordinate data file
	ExtDTA = ".DTA"

	// CustomGroup is the device specific group new parameters are put in when
	// they do not exist anywhere else
	CustomGroup = "customXepr"

	// PulsedGroup is the device specific group present only in pulsed
	// (FT-EPR) datasets
	PulsedGroup = "ftEpr"
)

// sectionStart splits a .DSC file into layer sections
var sectionStart = regexp.MustCompile(`(?m)^#`)

// axes are the names of the three axes, as used in parameter names and axis
// file extensions
var axes = []string{"X", "Y", "Z"}

// Channel is one ordinate channel, shaped (Z, Y, X), (Y, X) or (X) depending
// on which axes the dataset has.  Data is flat and row-major over Shape.
type Channel struct {
	Shape []int

	// Re holds the real part
	Re []float64

	// Im holds the imaginary part, and is nil for real channels
	Im []float64
}

// RealChannel returns a real channel with the given shape and data
func RealChannel(shape []int, re []float64) Channel {
	return Channel{Shape: shape, Re: re}
}

// ComplexChannel returns a complex channel with the given shape and data
func ComplexChannel(shape []int, z []complex128) Channel {
	c := Channel{Shape: shape, Re: make([]float64, len(z)), Im: make([]float64, len(z))}
	for i, v := range z {
		c.Re[i], c.Im[i] = real(v), imag(v)
	}
	return c
}

// IsComplex is true for complex channels
func (c Channel) IsComplex() bool {
	return c.Im != nil
}

// Complex returns the channel as complex numbers.  Real channels have a zero
// imaginary part.
func (c Channel) Complex() []complex128 {
	out := make([]complex128, len(c.Re))
	for i := range c.Re {
		if c.Im != nil {
			out[i] = complex(c.Re[i], c.Im[i])
		} else {
			out[i] = complex(c.Re[i], 0)
		}
	}
	return out
}

// layout is the binary layout of the ordinate, fixed once per dataset
type layout struct {
	order binary.ByteOrder
	rec   record
	shape []int
}

// Dataset is a BES3T measurement: four parameter layers, the axis data and
// the ordinate.
type Dataset struct {
	// Desc is the descriptor layer
	Desc *Layer

	// SPL is the standard parameter layer
	SPL *Layer

	// DSL is the device specific layer
	DSL *Layer

	// MHL is the manipulation history layer
	MHL *Layer

	// X, Y and Z hold the axis coordinates.  Y and Z are empty for lower
	// dimensional data.
	X, Y, Z []float64

	layout *layout
	dta    []byte
	opts   *options
}

// New returns an empty dataset
func New(opts ...Option) *Dataset {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	d := &Dataset{opts: o}
	d.reset()
	return d
}

// Load reads the dataset at path; see (*Dataset).Load
func Load(path string, opts ...Option) (*Dataset, error) {
	d := New(opts...)
	if err := d.Load(path); err != nil {
		return nil, err
	}
	return d, nil
}

// BasePath strips a BES3T file extension from path, so that any file of a
// dataset names the whole set.  Other extensions are part of the base name.
func BasePath(path string) string {
	ext := filepath.Ext(path)
	switch strings.ToUpper(ext) {
	case ExtDSC, ExtDTA, ".XGF", ".YGF", ".ZGF":
		return strings.TrimSuffix(path, ext)
	}
	return path
}

func (d *Dataset) reset() {
	d.Desc = NewLayer(TypeDESC)
	d.SPL = NewLayer(TypeSPL)
	d.DSL = NewLayer(TypeDSL)
	d.MHL = NewLayer(TypeMHL)
	d.X, d.Y, d.Z = []float64{}, []float64{}, []float64{}
	d.layout = nil
	d.dta = nil
}

// Layers returns the four layers in file order
func (d *Dataset) Layers() []*Layer {
	return []*Layer{d.Desc, d.SPL, d.DSL, d.MHL}
}

// Layer returns the layer of type t, or nil for an unknown type
func (d *Dataset) Layer(t LayerType) *Layer {
	for _, l := range d.Layers() {
		if l.Type() == t {
			return l
		}
	}
	return nil
}

// Pars returns a flattened view of the parameters of all layers
func (d *Dataset) Pars() Pars {
	return Pars{d: d}
}

// Load replaces the dataset with the one at path.  Any of the dataset's files
// may be named; the extension is ignored.  The .DSC file must exist.
//
// A failed load may leave the layers parsed before the failure in place.
func (d *Dataset) Load(path string) error {
	d.reset()
	base := BasePath(path)

	dsc, err := ioutil.ReadFile(base + ExtDSC)
	if err != nil {
		return errors.Wrap(err, "bes3t: reading header")
	}
	if err := d.parseDSC(string(dsc)); err != nil {
		return err
	}

	lay, err := d.deriveLayout()
	if err != nil {
		return err
	}

	dta, err := ioutil.ReadFile(base + ExtDTA)
	if err != nil {
		return errors.Wrap(err, "bes3t: reading ordinate")
	}

	for i, ax := range axes {
		vals, err := d.loadAxis(base, ax, lay.order)
		if err != nil {
			return err
		}
		*d.axis(i) = vals
	}

	lay.shape, err = ordinateShape(len(d.X), len(d.Y), len(d.Z), len(dta)/lay.rec.size)
	if err != nil {
		return err
	}
	// every described record is present, so a partial one is trailing junk
	if len(dta)%lay.rec.size != 0 {
		return errors.Wrapf(ErrFormat, "%s holds %d bytes, not a whole number of %d byte records", base+ExtDTA, len(dta), lay.rec.size)
	}
	d.layout = lay
	d.dta = dta
	return nil
}

func (d *Dataset) parseDSC(text string) error {
	sections := sectionStart.Split(text, -1)
	for _, sec := range sections[1:] {
		head, body := sec, ""
		if i := strings.Index(sec, "\n"); i >= 0 {
			head, body = sec[:i], sec[i+1:]
		}
		tokens := strings.Fields(head)
		if len(tokens) == 0 {
			return errors.Wrap(ErrFormat, "empty layer header")
		}
		layer := d.Layer(LayerType(tokens[0]))
		if layer == nil {
			return errors.Wrapf(ErrFormat, "unknown layer type %q", tokens[0])
		}
		version := ""
		if len(tokens) > 1 {
			version = tokens[1]
		}
		if !layer.Supported(version) {
			if d.opts.strictVersion {
				return errors.Wrapf(ErrFormat, "unsupported %s layer version %q", layer.Type(), version)
			}
			d.opts.warnf("bes3t: %s layer version %q is not supported, parsing anyway", layer.Type(), version)
		}
		if err := layer.Parse(body); err != nil {
			return errors.Wrapf(err, "parsing %s layer", layer.Type())
		}
		layer.Version = version
	}
	return nil
}

// deriveLayout reads the byte order and record layout from the header
func (d *Dataset) deriveLayout() (*layout, error) {
	bseq, err := d.textPar("BSEQ")
	if err != nil {
		return nil, err
	}
	order, err := byteOrder(bseq)
	if err != nil {
		return nil, err
	}
	ikkf, err := d.textPar("IKKF")
	if err != nil {
		return nil, err
	}
	irfmt, err := d.textPar("IRFMT")
	if err != nil {
		return nil, err
	}
	iifmt := d.optTextPar("IIFMT", "")
	rec, err := newRecord(ikkf, irfmt, iifmt)
	if err != nil {
		return nil, err
	}
	return &layout{order: order, rec: rec}, nil
}

// currentLayout returns the layout in use.  Until the ordinate is first
// written it is derived afresh from the header and the current axes.
func (d *Dataset) currentLayout() (*layout, error) {
	if d.layout != nil {
		return d.layout, nil
	}
	lay, err := d.deriveLayout()
	if err != nil {
		return nil, err
	}
	lay.shape = axisShape(len(d.X), len(d.Y), len(d.Z))
	return lay, nil
}

// ensureLayout fixes the layout and allocates the record buffer for a dataset
// that was not loaded from disk
func (d *Dataset) ensureLayout() (*layout, error) {
	if d.layout != nil {
		return d.layout, nil
	}
	lay, err := d.currentLayout()
	if err != nil {
		return nil, err
	}
	d.layout = lay
	d.dta = make([]byte, util.Product(lay.shape)*lay.rec.size)
	return lay, nil
}

func (d *Dataset) axis(i int) *[]float64 {
	return []*[]float64{&d.X, &d.Y, &d.Z}[i]
}

func (d *Dataset) loadAxis(base, ax string, order binary.ByteOrder) ([]float64, error) {
	switch typ := d.optTextPar(ax+"TYP", "NODATA"); typ {
	case "IDX":
		min, err := d.floatPar(ax + "MIN")
		if err != nil {
			return nil, err
		}
		wid, err := d.floatPar(ax + "WID")
		if err != nil {
			return nil, err
		}
		pts, err := d.intPar(ax + "PTS")
		if err != nil {
			return nil, err
		}
		return util.Linspace(min, min+wid, int(pts)), nil
	case "IGD":
		e, err := lookupElem(d.optTextPar(ax+"FMT", "D"))
		if err != nil {
			return nil, err
		}
		raw, err := ioutil.ReadFile(base + axisExt(ax))
		if err != nil {
			return nil, errors.Wrapf(err, "bes3t: reading %s axis", ax)
		}
		return decodeElems(raw, e, order)
	case "NTUP":
		return nil, errors.Wrapf(ErrFormat, "%sTYP NTUP is not supported", ax)
	case "NODATA":
		return []float64{}, nil
	default:
		return nil, errors.Wrapf(ErrFormat, "unknown axis type %sTYP=%q", ax, typ)
	}
}

func axisExt(ax string) string {
	return "." + ax + "GF"
}

// axisShape is the (Z, Y, X) subset shape for the given axis lengths
func axisShape(nx, ny, nz int) []int {
	switch {
	case nz > 0:
		return []int{nz, ny, nx}
	case ny > 0:
		return []int{ny, nx}
	}
	return []int{nx}
}

func ordinateShape(nx, ny, nz, nrec int) ([]int, error) {
	shape := axisShape(nx, ny, nz)
	if nz == 0 && ny == 0 && nx == 0 {
		shape = []int{nrec}
	}
	switch n := util.Product(shape); {
	case nrec < n:
		return nil, errors.Wrapf(ErrTruncated, "ordinate holds %d points, axes describe %v", nrec, shape)
	case nrec > n:
		return nil, errors.Wrapf(ErrFormat, "ordinate holds %d points, axes describe %v", nrec, shape)
	}
	return shape, nil
}

// DSC returns the header as written to the .DSC file
func (d *Dataset) DSC() string {
	parts := []string{}
	for _, l := range d.Layers() {
		if l.Len() > 0 {
			parts = append(parts, l.String())
		}
	}
	return strings.TrimSuffix(strings.Join(parts, "\n"), "*")
}

// Save writes the dataset next to path.  Any extension on path is replaced.
func (d *Dataset) Save(path string) error {
	base := BasePath(path)
	lay, err := d.ensureLayout()
	if err != nil {
		return err
	}

	if err := ioutil.WriteFile(base+ExtDSC, []byte(d.DSC()), 0644); err != nil {
		return errors.Wrap(err, "bes3t: writing header")
	}
	if err := ioutil.WriteFile(base+ExtDTA, d.dta, 0644); err != nil {
		return errors.Wrap(err, "bes3t: writing ordinate")
	}
	for i, ax := range axes {
		if d.optTextPar(ax+"TYP", "") != "IGD" {
			continue
		}
		e, err := lookupElem(d.optTextPar(ax+"FMT", "D"))
		if err != nil {
			return err
		}
		raw := encodeElems(*d.axis(i), e, lay.order)
		if err := ioutil.WriteFile(base+axisExt(ax), raw, 0644); err != nil {
			return errors.Wrapf(err, "bes3t: writing %s axis", ax)
		}
	}
	return nil
}

// O returns the ordinate, one entry per channel in IKKF order
func (d *Dataset) O() ([]Channel, error) {
	lay, err := d.currentLayout()
	if err != nil {
		return nil, err
	}
	dta := d.dta
	if d.layout == nil {
		dta = make([]byte, util.Product(lay.shape)*lay.rec.size)
	}
	n := len(dta) / lay.rec.size
	chs := make([]Channel, lay.rec.channels())
	for c := range chs {
		chs[c].Shape = append([]int(nil), lay.shape...)
		chs[c].Re = make([]float64, n)
		if lay.rec.complex[c] {
			chs[c].Im = make([]float64, n)
		}
	}
	for i := 0; i < n; i++ {
		rec := dta[i*lay.rec.size:]
		for _, f := range lay.rec.fields {
			v := f.elem.decode(rec[f.offset:], lay.order)
			if f.imag {
				chs[f.channel].Im[i] = v
			} else {
				chs[f.channel].Re[i] = v
			}
		}
	}
	return chs, nil
}

// SetO writes the ordinate into the record buffer.  There must be one channel
// per IKKF entry, each complex exactly when IKKF says so and shaped like the
// stored ordinate.  Nothing is written unless every channel fits.
func (d *Dataset) SetO(chs ...Channel) error {
	lay, err := d.ensureLayout()
	if err != nil {
		return err
	}
	if len(chs) != lay.rec.channels() {
		return errors.Wrapf(ErrValue, "got %d channels, dataset has %d", len(chs), lay.rec.channels())
	}
	n := util.Product(lay.shape)
	for c, ch := range chs {
		if !sameShape(ch.Shape, lay.shape) {
			return errors.Wrapf(ErrValue, "channel %d has shape %v, dataset has %v", c, ch.Shape, lay.shape)
		}
		if ch.IsComplex() != lay.rec.complex[c] {
			return errors.Wrapf(ErrValue, "channel %d: complex=%t, IKKF says complex=%t", c, ch.IsComplex(), lay.rec.complex[c])
		}
		if len(ch.Re) != n || (ch.Im != nil && len(ch.Im) != n) {
			return errors.Wrapf(ErrValue, "channel %d holds %d points, shape %v needs %d", c, len(ch.Re), ch.Shape, n)
		}
	}
	for i := 0; i < n; i++ {
		rec := d.dta[i*lay.rec.size:]
		for _, f := range lay.rec.fields {
			v := chs[f.channel].Re[i]
			if f.imag {
				v = chs[f.channel].Im[i]
			}
			f.elem.encode(rec[f.offset:], lay.order, v)
		}
	}
	return nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Shape returns the shape of the ordinate, or nil if the layout cannot be
// derived from the header
func (d *Dataset) Shape() []int {
	lay, err := d.currentLayout()
	if err != nil {
		return nil
	}
	return append([]int(nil), lay.shape...)
}

// ByteOrder returns the byte order used for the data files
func (d *Dataset) ByteOrder() (binary.ByteOrder, error) {
	lay, err := d.currentLayout()
	if err != nil {
		return nil, err
	}
	return lay.order, nil
}

func (d *Dataset) dims() int {
	n := 0
	for i := range axes {
		if len(*d.axis(i)) > 0 {
			n++
		}
	}
	return n
}

// Is1D is true when at most one axis holds data
func (d *Dataset) Is1D() bool {
	return d.dims() < 2
}

// Is2D is true when two axes hold data
func (d *Dataset) Is2D() bool {
	return d.dims() == 2
}

// Is3D is true when all three axes hold data
func (d *Dataset) Is3D() bool {
	return d.dims() == 3
}

// IsPulsed is true for pulsed (FT-EPR) measurements
func (d *Dataset) IsPulsed() bool {
	_, ok := d.DSL.Group(PulsedGroup)
	return ok
}

// IsCW is true for continuous wave measurements
func (d *Dataset) IsCW() bool {
	return !d.IsPulsed()
}

// par looks up a parameter the file layout depends on.  A missing parameter
// makes the file undecodable, so it is reported as ErrFormat.
func (d *Dataset) par(name string) (*Param, error) {
	p, err := d.Pars().Get(name)
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "header has no %s parameter", name)
	}
	return p, nil
}

func (d *Dataset) textPar(name string) (string, error) {
	p, err := d.par(name)
	if err != nil {
		return "", err
	}
	s, ok := p.Text()
	if !ok {
		return "", errors.Wrapf(ErrFormat, "%s=%q is not a string", name, p.String())
	}
	return s, nil
}

func (d *Dataset) optTextPar(name, dflt string) string {
	s, err := d.textPar(name)
	if err != nil {
		return dflt
	}
	return s
}

func (d *Dataset) floatPar(name string) (float64, error) {
	p, err := d.par(name)
	if err != nil {
		return 0, err
	}
	f, ok := p.Float()
	if !ok {
		return 0, errors.Wrapf(ErrFormat, "%s=%q is not a number", name, p.String())
	}
	return f, nil
}

func (d *Dataset) intPar(name string) (int64, error) {
	p, err := d.par(name)
	if err != nil {
		return 0, err
	}
	i, ok := p.Int()
	if !ok || i < 0 {
		return 0, errors.Wrapf(ErrFormat, "%s=%q is not a point count", name, p.String())
	}
	return i, nil
}
