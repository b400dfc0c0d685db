// Package export converts BES3T datasets to formats other tools can open.
package export

import (
	"io"
	"regexp"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"

	"github.com/epr-lab/goxepr/bes3t"
)

var (
	// keyword is a legal FITS header keyword
	keyword = regexp.MustCompile(`^[A-Z0-9_-]{1,8}$`)

	// reserved keywords are written by fitsio itself
	reserved = map[string]bool{
		"SIMPLE": true, "BITPIX": true, "EXTEND": true, "END": true,
		"BZERO": true, "BSCALE": true, "COMMENT": true, "HISTORY": true,
		"XTENSION": true, "PCOUNT": true, "GCOUNT": true,
	}
)

// maxStringValue is the longest string a single FITS card can hold
const maxStringValue = 68

// WriteFits streams the ordinate of d to w as a 64 bit float FITS image.
// NAXIS1 is the X axis, followed by Y and Z when present.  Every channel adds
// one plane, and complex channels a second plane holding the imaginary part;
// with more than one plane they are stacked along a trailing axis.
func WriteFits(w io.Writer, d *bes3t.Dataset) error {
	chs, err := d.O()
	if err != nil {
		return err
	}
	if len(chs) == 0 {
		return errors.New("export: dataset has no ordinate channels")
	}

	shape := chs[0].Shape
	dims := make([]int, len(shape))
	for i, s := range shape {
		dims[len(shape)-1-i] = s
	}
	planes := 0
	for _, ch := range chs {
		planes++
		if ch.IsComplex() {
			planes++
		}
	}
	if planes > 1 {
		dims = append(dims, planes)
	}

	buf := make([]float64, 0, len(chs[0].Re)*planes)
	for _, ch := range chs {
		buf = append(buf, ch.Re...)
		if ch.IsComplex() {
			buf = append(buf, ch.Im...)
		}
	}

	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(-64, dims)
	defer im.Close()
	err = im.Header().Append(Cards(d)...)
	if err != nil {
		return err
	}
	err = im.Write(buf)
	if err != nil {
		return err
	}
	return fits.Write(im)
}

// Cards converts the descriptor and standard parameters of d to FITS header
// cards, followed by a linear world coordinate system for each evenly spaced
// axis.  Parameters whose name is not a legal keyword, and matrix valued
// parameters, are left out.  The unit of a parameter becomes the card comment.
func Cards(d *bes3t.Dataset) []fitsio.Card {
	cards := []fitsio.Card{}
	seen := map[string]bool{}
	add := func(c fitsio.Card) {
		if seen[c.Name] {
			return
		}
		seen[c.Name] = true
		cards = append(cards, c)
	}

	for _, l := range []*bes3t.Layer{d.Desc, d.SPL} {
		for _, g := range l.Groups() {
			for _, name := range g.Names() {
				key := strings.ToUpper(name)
				if !keyword.MatchString(key) || reserved[key] || strings.HasPrefix(key, "NAXIS") {
					continue
				}
				p, _ := g.Get(name)
				v, ok := cardValue(p)
				if !ok {
					continue
				}
				add(fitsio.Card{Name: key, Value: v, Comment: p.Unit()})
			}
		}
	}

	for i, ax := range []struct {
		name string
		vals []float64
	}{{"X", d.X}, {"Y", d.Y}, {"Z", d.Z}} {
		if len(ax.vals) < 2 || text(d, ax.name+"TYP") != "IDX" {
			continue
		}
		n := string(rune('1' + i))
		step := (ax.vals[len(ax.vals)-1] - ax.vals[0]) / float64(len(ax.vals)-1)
		add(fitsio.Card{Name: "CTYPE" + n, Value: text(d, ax.name+"NAM")})
		add(fitsio.Card{Name: "CUNIT" + n, Value: text(d, ax.name+"UNI")})
		add(fitsio.Card{Name: "CRPIX" + n, Value: 1.0})
		add(fitsio.Card{Name: "CRVAL" + n, Value: ax.vals[0]})
		add(fitsio.Card{Name: "CDELT" + n, Value: step})
	}
	return cards
}

func cardValue(p *bes3t.Param) (interface{}, bool) {
	switch v := p.Value().(type) {
	case float64, bool:
		return v, true
	case int64:
		return int(v), true
	case string:
		return cleanString(v), true
	}
	return nil, false
}

// cleanString strips the quotes Xepr puts around strings, which FITS adds back
func cleanString(s string) string {
	s = strings.Replace(strings.Trim(s, "'"), "'", "", -1)
	if len(s) > maxStringValue {
		s = s[:maxStringValue]
	}
	return s
}

func text(d *bes3t.Dataset, name string) string {
	p, err := d.Pars().Get(name)
	if err != nil {
		return ""
	}
	s, _ := p.Text()
	return cleanString(s)
}
