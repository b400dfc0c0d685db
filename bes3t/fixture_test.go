package bes3t

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

// kv is one parameter line before padding
type kv struct{ k, v string }

// grp is a named group of parameter lines
type grp struct {
	name string
	pars []kv
}

// header holds the layers of a .DSC fixture
type header struct {
	desc []grp
	spl  []kv
	dsl  []grp
	mhl  []grp

	descVersion string
}

var banner = "*\n" + strings.Repeat("*", 60) + "\n*"

// text writes the header the way Xepr does, independently of the package's
// own formatter
func (h header) text() string {
	layers := []string{}
	if len(h.desc) > 0 {
		v := h.descVersion
		if v == "" {
			v = "1.2"
		}
		lines := []string{"#DESC\t" + v + " * DESCRIPTOR INFORMATION ***********************"}
		for _, g := range h.desc {
			lines = append(lines, "*", "*\t"+g.name+":", "*")
			for _, p := range g.pars {
				lines = append(lines, p.k+"\t"+p.v)
			}
		}
		lines = append(lines, banner)
		layers = append(layers, strings.Join(lines, "\n"))
	}
	if len(h.spl) > 0 {
		lines := []string{"#SPL\t1.2 * STANDARD PARAMETER LAYER", "*"}
		for _, p := range h.spl {
			lines = append(lines, fmt.Sprintf("%-8s%s", p.k, p.v))
		}
		lines = append(lines, banner)
		layers = append(layers, strings.Join(lines, "\n"))
	}
	if len(h.dsl) > 0 {
		lines := []string{"#DSL\t1.0 * DEVICE SPECIFIC LAYER", "*"}
		for _, g := range h.dsl {
			lines = append(lines, "\n.DVC     "+g.name+", 1.0\n")
			for _, p := range g.pars {
				lines = append(lines, fmt.Sprintf("%-19s%s", p.k, p.v))
			}
		}
		lines = append(lines, banner)
		layers = append(layers, strings.Join(lines, "\n"))
	}
	if len(h.mhl) > 0 {
		lines := []string{"#MHL\t1.0 * MANIPULATION HISTORY LAYER by BRUKER", "*"}
		for _, g := range h.mhl {
			lines = append(lines, "*", "*\t"+g.name+":", "*")
			for _, p := range g.pars {
				lines = append(lines, fmt.Sprintf("%-8s%s", p.k, p.v))
			}
		}
		lines = append(lines, banner)
		layers = append(layers, strings.Join(lines, "\n"))
	}
	return strings.TrimSuffix(strings.Join(layers, "\n"), "*")
}

// cwHeader is a 1D continuous wave field sweep
func cwHeader() header {
	return header{
		desc: []grp{
			{"Dataset Type and Format", []kv{
				{"DSRC", "EXP"}, {"BSEQ", "BIG"}, {"IKKF", "REAL"},
				{"XTYP", "IDX"}, {"YTYP", "NODATA"}, {"ZTYP", "NODATA"}}},
			{"Item Formats", []kv{{"IRFMT", "D"}}},
			{"Data Ranges and Resolutions", []kv{
				{"XPTS", "1024"}, {"XMIN", "3300.000000"}, {"XWID", "200.000000"}}},
			// TITL has three tokens and is read back as one string
			{"Documentational Text", []kv{
				{"TITL", "'cw test sample'"}, {"IRNAM", "'Intensity'"}, {"XNAM", "'Field'"},
				{"IRUNI", "''"}, {"XUNI", "'G'"}}},
		},
		spl: []kv{
			{"OPER", "xuser"}, {"DATE", "09/03/18"}, {"TIME", "14:55:04"}, {"CMNT", ""},
			{"SAMP", ""}, {"STAG", "C"}, {"EXPT", "CW"}, {"OXS1", "IADC"}, {"AXS1", "B0VL"},
			{"AXS2", "NONE"}, {"MWPW", "0.002"}, {"A1CT", "0.34"}, {"A1SW", "0.02"},
			{"MWFQ", "9.4e+09"}, {"AVGS", "1"},
		},
		dsl: []grp{
			{"acqStart", nil},
			{"fieldCtrl", []kv{
				{"AllegroMode", "True"}, {"CenterField", "3400.00 G"}, {"Delay", "0.0 s"},
				{"FieldFlyback", "On"}, {"SweepWidth", "200.0 G"}}},
			{"mwBridge", []kv{
				{"AcqFineTuning", "Never"}, {"Power", "2.000e-03 mW"}, {"PowerAtten", "50.0 dB"},
				{"QValue", "5900"}}},
		},
	}
}

// powerSatHeader is a 2D CW measurement with a non-linear Y axis read from a
// .YGF file
func powerSatHeader(ny int) header {
	h := cwHeader()
	h.desc[0].pars[4] = kv{"YTYP", "IGD"}
	h.desc[1].pars = append(h.desc[1].pars, kv{"YFMT", "D"})
	h.desc[2].pars = append(h.desc[2].pars, kv{"YPTS", fmt.Sprint(ny)}, kv{"YMIN", "0.000000"}, kv{"YWID", "1.000000"})
	h.mhl = []grp{{"Input Dataset", []kv{{"SOURCE", "/tmp/raw.DSC"}, {"STEPS", "2"}}}}
	return h
}

// complexHeader is a 1D dataset with one complex channel
func complexHeader() header {
	h := cwHeader()
	h.desc[0].pars[2] = kv{"IKKF", "CPLX"}
	h.desc[1].pars = append(h.desc[1].pars, kv{"IIFMT", "D"})
	return h
}

// withPar returns h with the DESC parameter called name replaced
func (h header) withPar(name, val string) header {
	out := h
	out.desc = make([]grp, len(h.desc))
	for i, g := range h.desc {
		pars := make([]kv, len(g.pars))
		copy(pars, g.pars)
		for j := range pars {
			if pars[j].k == name {
				pars[j].v = val
			}
		}
		out.desc[i] = grp{g.name, pars}
	}
	return out
}

func encodeFloats(order binary.ByteOrder, vals ...float64) []byte {
	buf := &bytes.Buffer{}
	for _, v := range vals {
		binary.Write(buf, order, math.Float64bits(v))
	}
	return buf.Bytes()
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(float64(i)/17) * 1e4
	}
	return out
}

// writeSet writes a file set and returns the base path
func writeSet(t *testing.T, dir, name string, files map[string][]byte) string {
	t.Helper()
	base := filepath.Join(dir, name)
	for ext, content := range files {
		if err := ioutil.WriteFile(base+ext, content, 0644); err != nil {
			t.Fatal(err)
		}
	}
	return base
}

// assertSameFiles compares every file of two sets byte for byte
func assertSameFiles(t *testing.T, orig, copy string, exts ...string) {
	t.Helper()
	for _, ext := range exts {
		a, err := ioutil.ReadFile(orig + ext)
		if err != nil {
			t.Fatal(err)
		}
		b, err := ioutil.ReadFile(copy + ext)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("%s differs after round trip\n--- original\n%q\n--- saved\n%q", ext, a, b)
		}
	}
}
