package bes3t

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// elemType is a binary element format, named by the code used in the IRFMT,
// IIFMT and XFMT/YFMT/ZFMT parameters
type elemType struct {
	code   string
	size   int
	decode func(b []byte, order binary.ByteOrder) float64
	encode func(b []byte, order binary.ByteOrder, v float64)
}

var elemTypes = map[string]elemType{
	"D": {code: "D", size: 8,
		decode: func(b []byte, o binary.ByteOrder) float64 { return math.Float64frombits(o.Uint64(b)) },
		encode: func(b []byte, o binary.ByteOrder, v float64) { o.PutUint64(b, math.Float64bits(v)) }},
	"F": {code: "F", size: 4,
		decode: func(b []byte, o binary.ByteOrder) float64 { return float64(math.Float32frombits(o.Uint32(b))) },
		encode: func(b []byte, o binary.ByteOrder, v float64) { o.PutUint32(b, math.Float32bits(float32(v))) }},
	"I": {code: "I", size: 4,
		decode: func(b []byte, o binary.ByteOrder) float64 { return float64(int32(o.Uint32(b))) },
		encode: func(b []byte, o binary.ByteOrder, v float64) { o.PutUint32(b, uint32(int32(math.Round(v)))) }},
	"S": {code: "S", size: 2,
		decode: func(b []byte, o binary.ByteOrder) float64 { return float64(int16(o.Uint16(b))) },
		encode: func(b []byte, o binary.ByteOrder, v float64) { o.PutUint16(b, uint16(int16(math.Round(v)))) }},
	"C": {code: "C", size: 1,
		decode: func(b []byte, o binary.ByteOrder) float64 { return float64(int8(b[0])) },
		encode: func(b []byte, o binary.ByteOrder, v float64) { b[0] = byte(int8(math.Round(v))) }},
}

func lookupElem(code string) (elemType, error) {
	e, ok := elemTypes[strings.TrimSpace(code)]
	if !ok {
		return elemType{}, errors.Wrapf(ErrFormat, "unsupported binary element type %q", code)
	}
	return e, nil
}

// byteOrder maps the BSEQ parameter to a byte order
func byteOrder(bseq string) (binary.ByteOrder, error) {
	switch bseq {
	case "BIG":
		return binary.BigEndian, nil
	case "LIT":
		return binary.LittleEndian, nil
	}
	return nil, errors.Wrapf(ErrFormat, "unsupported byte order BSEQ=%q", bseq)
}

// field is one element of an ordinate record
type field struct {
	channel int
	imag    bool
	elem    elemType
	offset  int
}

// record describes one point of the .DTA file: for every channel a real
// element, followed by an imaginary element for complex channels
type record struct {
	fields  []field
	complex []bool
	size    int
}

// newRecord builds the record layout from the IKKF, IRFMT and IIFMT
// parameters.  iifmt may be empty, in which case imaginary parts use the
// IRFMT format.  A single format code applies to every channel.
func newRecord(ikkf, irfmt, iifmt string) (record, error) {
	kinds := strings.Split(ikkf, ",")
	rfmts, err := channelFormats(irfmt, len(kinds), "IRFMT")
	if err != nil {
		return record{}, err
	}
	ifmts := rfmts
	if iifmt != "" {
		ifmts, err = channelFormats(iifmt, len(kinds), "IIFMT")
		if err != nil {
			return record{}, err
		}
	}

	rec := record{complex: make([]bool, len(kinds))}
	add := func(ch int, imag bool, code string) error {
		e, err := lookupElem(code)
		if err != nil {
			return err
		}
		rec.fields = append(rec.fields, field{channel: ch, imag: imag, elem: e, offset: rec.size})
		rec.size += e.size
		return nil
	}
	for ch, kind := range kinds {
		if err := add(ch, false, rfmts[ch]); err != nil {
			return record{}, err
		}
		if strings.TrimSpace(kind) == "CPLX" {
			rec.complex[ch] = true
			if err := add(ch, true, ifmts[ch]); err != nil {
				return record{}, err
			}
		}
	}
	return rec, nil
}

func channelFormats(list string, n int, par string) ([]string, error) {
	codes := strings.Split(list, ",")
	if len(codes) == n {
		return codes, nil
	}
	if len(codes) == 1 {
		out := make([]string, n)
		for i := range out {
			out[i] = codes[0]
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrFormat, "%s lists %d formats for %d channels", par, len(codes), n)
}

func (r record) channels() int {
	return len(r.complex)
}

func decodeElems(raw []byte, e elemType, order binary.ByteOrder) ([]float64, error) {
	if len(raw)%e.size != 0 {
		return nil, errors.Wrapf(ErrFormat, "%d bytes is not a whole number of %d byte elements", len(raw), e.size)
	}
	out := make([]float64, len(raw)/e.size)
	for i := range out {
		out[i] = e.decode(raw[i*e.size:], order)
	}
	return out, nil
}

func encodeElems(vals []float64, e elemType, order binary.ByteOrder) []byte {
	out := make([]byte, len(vals)*e.size)
	for i, v := range vals {
		e.encode(out[i*e.size:], order, v)
	}
	return out
}
