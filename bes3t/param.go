package bes3t

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/epr-lab/goxepr/util"
)

var (
	// continuation joins a value that Xepr wrapped onto several lines with a
	// trailing backslash
	continuation = regexp.MustCompile(`\\\r?\n[ \t]*`)

	// arrayHeader matches the {ndim;shape;default[unit]} token that precedes a
	// matrix valued parameter
	arrayHeader = regexp.MustCompile(`^\{(.*)\}$`)
)

// Array is a matrix valued parameter.  Data is stored flat, in the order it
// appears in the file, over Shape.
type Array struct {
	// Shape is the extent of each dimension, as declared in the header
	Shape []int

	// Data holds product(Shape) elements
	Data []float64

	// Default is the fill value written into the array header
	Default float64

	// Integer is true when every element is an integer, and controls whether
	// the elements are written as plain decimals
	Integer bool
}

// NDim returns the number of dimensions of the array
func (a *Array) NDim() int {
	return len(a.Shape)
}

func (a *Array) copy() *Array {
	out := &Array{
		Shape:   make([]int, len(a.Shape)),
		Data:    make([]float64, len(a.Data)),
		Default: a.Default,
		Integer: a.Integer,
	}
	copy(out.Shape, a.Shape)
	copy(out.Data, a.Data)
	return out
}

func (a *Array) header(unit string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "{%d;%s;%s", a.NDim(), util.IntSliceToCSV(a.Shape), formatDefault(a.Default))
	if unit != "" {
		b.WriteString("[" + unit + "]")
	}
	b.WriteString("}")
	return b.String()
}

func (a *Array) values() string {
	if a.Integer {
		return util.FloatSliceToCSV(a.Data, func(f float64) string {
			return strconv.FormatInt(int64(f), 10)
		})
	}
	return util.FloatSliceToCSV(a.Data, formatFloat)
}

// Param is a single measurement parameter of a BES3T header.  Its value is
// one of float64, int64, bool, string or *Array.
//
// The text form is cached; the setters invalidate the cache.  A parameter
// parsed from a header keeps the original text until it is modified, so an
// untouched parameter is written back byte for byte.
type Param struct {
	value   interface{}
	unit    string
	comment string

	str   string
	valid bool
}

// NewParam returns a parameter holding value with the given unit.  It panics
// if value is not of a supported type; see SetValue.
func NewParam(value interface{}, unit string) *Param {
	p := &Param{unit: unit}
	if err := p.SetValue(value); err != nil {
		panic(err)
	}
	return p
}

// ParseParam parses the value part of a header line into a new parameter
func ParseParam(s string) (*Param, error) {
	p := &Param{}
	return p, p.Parse(s)
}

// Value returns the parameter value, or nil for an empty parameter
func (p *Param) Value() interface{} {
	if a, ok := p.value.(*Array); ok {
		return a.copy()
	}
	return p.value
}

// SetValue replaces the value.  Integers of any width are stored as int64,
// float32 as float64, and []float64 or []int as a one dimensional *Array.
func (p *Param) SetValue(v interface{}) error {
	nv, err := normalize(v)
	if err != nil {
		return err
	}
	p.value = nv
	p.valid = false
	return nil
}

// Unit returns the unit, possibly empty
func (p *Param) Unit() string {
	return p.unit
}

// SetUnit replaces the unit
func (p *Param) SetUnit(u string) {
	p.unit = u
	p.valid = false
}

// Comment returns the comment, possibly empty
func (p *Param) Comment() string {
	return p.comment
}

// SetComment replaces the comment.  It is written prefixed with "* " unless it
// already begins with "*".
func (p *Param) SetComment(c string) {
	p.comment = c
	p.valid = false
}

// IsEmpty is true when the parameter holds no value
func (p *Param) IsEmpty() bool {
	return p.value == nil
}

// Float returns the value as a float64 if it is numeric
func (p *Param) Float() (float64, bool) {
	switch v := p.value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Int returns the value as an int64 if it is an integer, or a float with no
// fractional part
func (p *Param) Int() (int64, bool) {
	switch v := p.value.(type) {
	case int64:
		return v, true
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int64(v), true
		}
	}
	return 0, false
}

// Text returns the value if it is a string
func (p *Param) Text() (string, bool) {
	s, ok := p.value.(string)
	return s, ok
}

// Bool returns the value if it is a boolean
func (p *Param) Bool() (bool, bool) {
	b, ok := p.value.(bool)
	return b, ok
}

// Array returns a copy of the value if it is a matrix
func (p *Param) Array() (*Array, bool) {
	a, ok := p.value.(*Array)
	if !ok {
		return nil, false
	}
	return a.copy(), true
}

// String returns the parameter as it is written in a .DSC file, without the
// parameter name
func (p *Param) String() string {
	if !p.valid {
		p.str = p.format()
		p.valid = true
	}
	return p.str
}

func (p *Param) format() string {
	parts := []string{}
	switch v := p.value.(type) {
	case nil:
	case *Array:
		parts = append(parts, v.header(p.unit), v.values())
	default:
		parts = append(parts, formatScalar(v))
		if p.unit != "" {
			parts = append(parts, p.unit)
		}
	}
	if p.comment != "" {
		c := p.comment
		if !strings.HasPrefix(c, "*") {
			c = "* " + c
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, " ")
}

// Parse replaces the parameter with the one encoded in s, the text following
// the parameter name on a header line.
func (p *Param) Parse(s string) error {
	p.value, p.unit, p.comment = nil, "", ""
	p.valid = false

	tokens := strings.Fields(continuation.ReplaceAllString(s, ""))
	tokens, p.comment = splitComment(tokens)

	switch len(tokens) {
	case 0:
	case 1:
		p.value = ParseValue(tokens[0])
	case 2:
		if arrayHeader.MatchString(tokens[0]) {
			a, unit, err := parseArray(tokens[0], tokens[1])
			if err != nil {
				return err
			}
			p.value, p.unit = a, unit
		} else if isNumber(tokens[0]) {
			p.value, p.unit = ParseValue(tokens[0]), tokens[1]
		} else {
			p.value = strings.Join(tokens, " ")
		}
	default:
		if len(tokens) == 3 && arrayHeader.MatchString(tokens[0]) {
			// older files put the unit between the header and the values
			a, unit, err := parseArray(tokens[0], tokens[2])
			if err != nil {
				return err
			}
			if unit == "" {
				unit = tokens[1]
			}
			p.value, p.unit = a, unit
		} else {
			p.value = strings.Join(tokens, " ")
		}
	}

	p.str = s
	p.valid = true
	return nil
}

// ParseValue converts a single token to a value: an int64 if it parses as an
// integer, else a float64, else a bool for "True" or "False", else the string
// itself.
func ParseValue(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "True":
		return true
	case "False":
		return false
	}
	return s
}

func isNumber(s string) bool {
	switch ParseValue(s).(type) {
	case int64, float64:
		return true
	}
	return false
}

// splitComment removes the comment from the end of a token list.  The comment
// is either the last token, if it starts with '*', or everything from a lone
// "*" token onwards.  Either only counts once the tokens before it hold a
// whole value, so a '*' inside a string stays part of it.
func splitComment(tokens []string) ([]string, string) {
	for i, t := range tokens {
		if t == "*" && wholeValue(tokens[:i]) {
			return tokens[:i], strings.Join(tokens[i:], " ")
		}
	}
	last := len(tokens) - 1
	if last >= 0 && strings.HasPrefix(tokens[last], "*") && wholeValue(tokens[:last]) {
		return tokens[:last], tokens[last]
	}
	return tokens, ""
}

// wholeValue reports whether tokens form a value a comment may follow: nothing,
// a single token, a number and its unit, an array, or a quoted string
func wholeValue(tokens []string) bool {
	s := strings.Join(tokens, " ")
	if strings.HasPrefix(s, "'") {
		return len(s) > 1 && strings.HasSuffix(s, "'")
	}
	switch len(tokens) {
	case 0, 1:
		return true
	case 2:
		return arrayHeader.MatchString(tokens[0]) || isNumber(tokens[0])
	case 3:
		return arrayHeader.MatchString(tokens[0])
	}
	return false
}

func parseArray(header, values string) (*Array, string, error) {
	m := arrayHeader.FindStringSubmatch(header)
	fields := strings.Split(m[1], ";")
	if len(fields) != 3 {
		return nil, "", errors.Wrapf(ErrFormat, "array header %q must have three fields", header)
	}
	ndim, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, "", errors.Wrapf(ErrFormat, "array header %q: bad dimension count", header)
	}
	shape, err := util.CSVToIntSlice(fields[1])
	if err != nil {
		return nil, "", errors.Wrapf(ErrFormat, "array header %q: bad shape", header)
	}
	if len(shape) != ndim {
		return nil, "", errors.Wrapf(ErrFormat, "array header %q declares %d dimensions but a shape of %d", header, ndim, len(shape))
	}

	dflt, unit := fields[2], ""
	if i := strings.Index(dflt, "["); i >= 0 && strings.HasSuffix(dflt, "]") {
		dflt, unit = dflt[:i], dflt[i+1:len(dflt)-1]
	}
	a := &Array{Shape: shape, Integer: true}
	if dflt != "" {
		a.Default, err = strconv.ParseFloat(dflt, 64)
		if err != nil {
			return nil, "", errors.Wrapf(ErrFormat, "array header %q: bad default value", header)
		}
	}

	elems := strings.Split(values, ",")
	if len(elems) != util.Product(shape) {
		return nil, "", errors.Wrapf(ErrFormat, "array header %q declares %d elements, found %d", header, util.Product(shape), len(elems))
	}
	a.Data = make([]float64, len(elems))
	for i, e := range elems {
		switch v := ParseValue(e).(type) {
		case int64:
			a.Data[i] = float64(v)
		case float64:
			a.Data[i] = v
			a.Integer = false
		default:
			return nil, "", errors.Wrapf(ErrFormat, "array element %q is not a number", e)
		}
	}
	return a, unit, nil
}

func normalize(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case nil, float64, int64, bool, string:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case *Array:
		if len(x.Data) != util.Product(x.Shape) {
			return nil, errors.Wrapf(ErrValue, "array of shape %v cannot hold %d elements", x.Shape, len(x.Data))
		}
		return x.copy(), nil
	case Array:
		return normalize(&x)
	case []float64:
		a := &Array{Shape: []int{len(x)}, Data: make([]float64, len(x))}
		copy(a.Data, x)
		return a, nil
	case []int:
		a := &Array{Shape: []int{len(x)}, Data: make([]float64, len(x)), Integer: true}
		for i, e := range x {
			a.Data[i] = float64(e)
		}
		return a, nil
	}
	return nil, errors.Wrapf(ErrValue, "unsupported parameter value type %T", v)
}

func formatScalar(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return formatFloat(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		return x
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.6e", f)
}

func formatDefault(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return formatFloat(f)
}
