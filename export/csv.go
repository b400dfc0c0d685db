package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/epr-lab/goxepr/bes3t"
)

// ErrDims is returned when a dataset has too many dimensions for a table
var ErrDims = errors.New("export: only 1D and 2D datasets can be written as CSV")

// WriteCSV writes a 1D or 2D dataset as a table with one row per point.  The
// columns are the X coordinate, the Y coordinate for 2D data, then the real
// and (for complex channels) imaginary part of every channel.  The first row
// holds the column names.
func WriteCSV(w io.Writer, d *bes3t.Dataset) error {
	if d.Is3D() || (d.Is2D() && (len(d.X) == 0 || len(d.Y) == 0)) {
		return ErrDims
	}
	chs, err := d.O()
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	head := []string{label(d, "X")}
	if d.Is2D() {
		head = append(head, label(d, "Y"))
	}
	for i, ch := range chs {
		suffix := ""
		if len(chs) > 1 {
			suffix = strconv.Itoa(i)
		}
		head = append(head, "re"+suffix)
		if ch.IsComplex() {
			head = append(head, "im"+suffix)
		}
	}
	if err := cw.Write(head); err != nil {
		return err
	}

	nx := len(d.X)
	n := 0
	if len(chs) > 0 {
		n = len(chs[0].Re)
	}
	for i := 0; i < n; i++ {
		row := make([]string, 0, len(head))
		if nx > 0 {
			row = append(row, ftoa(d.X[i%nx]))
		} else {
			row = append(row, strconv.Itoa(i))
		}
		if d.Is2D() {
			row = append(row, ftoa(d.Y[i/nx]))
		}
		for _, ch := range chs {
			row = append(row, ftoa(ch.Re[i]))
			if ch.IsComplex() {
				row = append(row, ftoa(ch.Im[i]))
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func label(d *bes3t.Dataset, ax string) string {
	if s := text(d, ax+"NAM"); s != "" {
		return s
	}
	return ax
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
