// Package util contains misc internal utilities.
package util

import (
	"strconv"
	"strings"
)

// IntSliceToCSV convets a slice of ints to CSV formatted data.
// e.g., []int{1,2,3,4,5} => "1,2,3,4,5"
func IntSliceToCSV(is []int) string {
	s := make([]string, len(is))
	for i, v := range is {
		s[i] = strconv.Itoa(v)
	}

	return strings.Join(s, ",")
}

// CSVToIntSlice is the inverse of IntSliceToCSV.  Whitespace around the
// fields is ignored.
func CSVToIntSlice(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// FloatSliceToCSV formats each float with fmtr and joins the result with commas
func FloatSliceToCSV(fs []float64, fmtr func(float64) string) string {
	s := make([]string, len(fs))
	for i, v := range fs {
		s[i] = fmtr(v)
	}
	return strings.Join(s, ",")
}

// Linspace returns n evenly spaced samples over [start, stop], inclusive of
// both ends.  The last sample is exactly stop.
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := 0; i < n; i++ {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}

// Product returns the product of all elements of is.  The product of an empty
// slice is 1.
func Product(is []int) int {
	p := 1
	for _, v := range is {
		p *= v
	}
	return p
}

// UniqueString returns the unique elements of a slice of strings, in the
// order they first appear
func UniqueString(strs []string) []string {
	seen := make(map[string]struct{}, len(strs))
	out := make([]string, 0, len(strs))
	for _, s := range strs {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
