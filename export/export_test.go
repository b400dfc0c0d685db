package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/google/go-cmp/cmp"

	"github.com/epr-lab/goxepr/bes3t"
	"github.com/epr-lab/goxepr/util"
)

// sweep builds a field sweep of n points holding the channels given
func sweep(t *testing.T, n int, ikkf string, ys []float64, chs ...bes3t.Channel) *bes3t.Dataset {
	t.Helper()
	d := bes3t.New()
	tf := d.Desc.EnsureGroup("Dataset Type and Format")
	tf.Set("BSEQ", bes3t.NewParam("BIG", ""))
	tf.Set("IKKF", bes3t.NewParam(ikkf, ""))
	tf.Set("XTYP", bes3t.NewParam("IDX", ""))
	d.Desc.EnsureGroup("Item Formats").Set("IRFMT", bes3t.NewParam("D", ""))
	rng := d.Desc.EnsureGroup("Data Ranges and Resolutions")
	rng.Set("XPTS", bes3t.NewParam(n, ""))
	rng.Set("XMIN", bes3t.NewParam(3300.0, ""))
	rng.Set("XWID", bes3t.NewParam(200.0, ""))
	doc := d.Desc.EnsureGroup("Documentational Text")
	doc.Set("TITL", bes3t.NewParam("'it''s a test'", ""))
	doc.Set("XNAM", bes3t.NewParam("'Field'", ""))
	doc.Set("XUNI", bes3t.NewParam("'G'", ""))
	doc.Set("LONGKEYWORD", bes3t.NewParam(1, ""))
	doc.Set("PULSES", bes3t.NewParam([]int{1, 2}, ""))
	d.SPL.EnsureGroup("").Set("MWFQ", bes3t.NewParam(9.4e9, "Hz"))
	d.X = util.Linspace(3300, 3500, n)
	if ys != nil {
		tf.Set("YTYP", bes3t.NewParam("IGD", ""))
		d.Y = ys
	}
	if err := d.SetO(chs...); err != nil {
		t.Fatal(err)
	}
	return d
}

func readFits(t *testing.T, buf *bytes.Buffer) (fitsio.Image, []float64) {
	t.Helper()
	f, err := fitsio.Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		t.Fatal("expected the primary HDU to be an image")
	}
	n := 1
	for _, a := range img.Header().Axes() {
		n *= a
	}
	data := make([]float64, n)
	if err := img.Read(&data); err != nil {
		t.Fatal(err)
	}
	return img, data
}

func TestWriteFitsReal(t *testing.T) {
	o := []float64{1, -2, 3, -4, 5, -6, 7, -8}
	d := sweep(t, len(o), "REAL", nil, bes3t.RealChannel([]int{len(o)}, o))
	buf := &bytes.Buffer{}
	if err := WriteFits(buf, d); err != nil {
		t.Fatal(err)
	}
	img, data := readFits(t, buf)
	hdr := img.Header()
	if hdr.Bitpix() != -64 {
		t.Errorf("expected BITPIX -64 got %d", hdr.Bitpix())
	}
	if diff := cmp.Diff([]int{8}, hdr.Axes()); diff != "" {
		t.Errorf("axes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(o, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	want := map[string]string{
		"XPTS":   "8",
		"XNAM":   "Field",
		"MWFQ":   "9.4e+09",
		"CTYPE1": "Field",
		"CUNIT1": "G",
		"CRVAL1": "3300",
	}
	for key, val := range want {
		card := hdr.Get(key)
		if card == nil {
			t.Errorf("expected a %s card", key)
			continue
		}
		if got := fmt.Sprint(card.Value); got != val {
			t.Errorf("%s: expected %s got %s", key, val, got)
		}
	}
}

func TestWriteFitsComplex(t *testing.T) {
	z := []complex128{1 + 2i, 3 + 4i, 5 + 6i}
	d := sweep(t, len(z), "CPLX", nil, bes3t.ComplexChannel([]int{3}, z))
	buf := &bytes.Buffer{}
	if err := WriteFits(buf, d); err != nil {
		t.Fatal(err)
	}
	img, data := readFits(t, buf)
	if diff := cmp.Diff([]int{3, 2}, img.Header().Axes()); diff != "" {
		t.Errorf("axes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1, 3, 5, 2, 4, 6}, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestCardsSkipsIllegal(t *testing.T) {
	d := sweep(t, 2, "REAL", nil, bes3t.RealChannel([]int{2}, []float64{0, 1}))
	for _, c := range Cards(d) {
		switch c.Name {
		case "LONGKEYWORD", "PULSES":
			t.Errorf("%s should not become a card", c.Name)
		case "TITL":
			if c.Value != "its a test" {
				t.Errorf("expected quotes removed from TITL, got %q", c.Value)
			}
		case "MWFQ":
			if c.Comment != "Hz" {
				t.Errorf("expected the unit as comment, got %q", c.Comment)
			}
		}
	}
}

func TestWriteCSV1D(t *testing.T) {
	o := []float64{0.5, 1, 0.25}
	d := sweep(t, 3, "REAL", nil, bes3t.RealChannel([]int{3}, o))
	buf := &bytes.Buffer{}
	if err := WriteCSV(buf, d); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"Field", "re"},
		{"3300", "0.5"},
		{"3400", "1"},
		{"3500", "0.25"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCSV2DComplex(t *testing.T) {
	z := []complex128{1, 2i, 3, 4i}
	d := sweep(t, 2, "CPLX", []float64{10, 20}, bes3t.ComplexChannel([]int{2, 2}, z))
	buf := &bytes.Buffer{}
	if err := WriteCSV(buf, d); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"Field", "Y", "re", "im"},
		{"3300", "10", "1", "0"},
		{"3500", "10", "0", "2"},
		{"3300", "20", "3", "0"},
		{"3500", "20", "0", "4"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCSV3D(t *testing.T) {
	d := sweep(t, 2, "REAL", []float64{1}, bes3t.RealChannel([]int{1, 2}, []float64{0, 0}))
	d.Z = []float64{1}
	if err := WriteCSV(&bytes.Buffer{}, d); !errors.Is(err, ErrDims) {
		t.Errorf("expected ErrDims got %v", err)
	}
}
