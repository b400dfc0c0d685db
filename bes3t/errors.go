package bes3t

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned when a file set cannot be decoded: unknown layer
	// type, bad byte order, unmapped element type, unsupported axis type or an
	// inconsistent matrix header
	ErrFormat = errors.New("bes3t: format error")

	// ErrTruncated is returned, wrapping ErrFormat, when a data file holds
	// fewer points than the header describes, as happens while the acquisition
	// software is still writing it
	ErrTruncated = fmt.Errorf("%w: data file shorter than described", ErrFormat)

	// ErrValue is returned when a caller hands the codec data that does not fit
	// the dataset, e.g. an ordinate with the wrong shape or channel count
	ErrValue = errors.New("bes3t: invalid value")

	// ErrNoParam is returned when a parameter is not present in any group
	ErrNoParam = errors.New("bes3t: no such parameter")
)
