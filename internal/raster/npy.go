package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sbinet/npyio"
)

// ErrUnsupportedArray is returned for payloads that parse as .npy but cannot be used as a tile
var ErrUnsupportedArray = errors.New("unsupported array")

// Array is a decoded C-ordered [bands, height, width] array widened to float64
type Array struct {
	Bands  int
	Height int
	Width  int
	Data   []float64
	// HasMask is true when the last band is a validity mask
	HasMask bool
}

// Band returns the pixels of band b (0-based)
func (a *Array) Band(b int) []float64 {
	n := a.Height * a.Width
	return a.Data[b*n : (b+1)*n]
}

// Decode parses a NumPy .npy payload as returned by the crop endpoint with format=npy.
// A 3-D array is [bands, height, width] with the mask as last band; a 2-D array is a single unmasked band.
func Decode(payload []byte) (*Array, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	r, err := npyio.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to read npy header: %w", err)
	}
	if r.Header.Descr.Fortran {
		return nil, fmt.Errorf("%w: fortran-ordered arrays", ErrUnsupportedArray)
	}

	arr := &Array{}
	shape := r.Header.Descr.Shape
	switch len(shape) {
	case 3:
		arr.Bands, arr.Height, arr.Width = shape[0], shape[1], shape[2]
		arr.HasMask = arr.Bands > 1
	case 2:
		arr.Bands, arr.Height, arr.Width = 1, shape[0], shape[1]
	default:
		return nil, fmt.Errorf("%w: shape %v", ErrUnsupportedArray, shape)
	}

	// the body is allocated from the header shape, so it must fit in what was actually received
	offset, err := dataOffset(payload)
	if err != nil {
		return nil, err
	}
	size, err := bodySize(shape, r.Header.Descr.Type)
	if err != nil {
		return nil, err
	}
	if size > len(payload)-offset {
		return nil, fmt.Errorf("%w: shape %v needs %d bytes, payload has %d", ErrUnsupportedArray, shape, size, len(payload)-offset)
	}

	data, err := readFloat64(r, r.Header.Descr.Type)
	if err != nil {
		return nil, err
	}
	if len(data) != arr.Bands*arr.Height*arr.Width {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrUnsupportedArray, len(data), shape)
	}
	arr.Data = data
	return arr, nil
}

// dataOffset returns where the array body starts: magic(6) + version(2) + header length + header
func dataOffset(payload []byte) (int, error) {
	if len(payload) < 10 {
		return 0, fmt.Errorf("%w: truncated header", ErrUnsupportedArray)
	}
	switch payload[6] {
	case 1:
		return 10 + int(binary.LittleEndian.Uint16(payload[8:10])), nil
	case 2, 3:
		if len(payload) < 12 {
			return 0, fmt.Errorf("%w: truncated header", ErrUnsupportedArray)
		}
		return 12 + int(binary.LittleEndian.Uint32(payload[8:12])), nil
	default:
		return 0, fmt.Errorf("%w: npy version %d", ErrUnsupportedArray, payload[6])
	}
}

// bodySize is the byte length of an array of shape and dtype descr, with overflow checks
func bodySize(shape []int, descr string) (int, error) {
	kind := strings.TrimLeft(descr, "<>|=")
	if len(kind) < 2 {
		return 0, fmt.Errorf("%w: dtype %q", ErrUnsupportedArray, descr)
	}
	n, err := strconv.Atoi(kind[1:])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: dtype %q", ErrUnsupportedArray, descr)
	}
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: shape %v", ErrUnsupportedArray, shape)
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: shape %v overflows", ErrUnsupportedArray, shape)
		}
		n *= d
	}
	return n, nil
}

// readFloat64 reads the array body in its on-disk dtype and widens it
func readFloat64(r *npyio.Reader, descr string) ([]float64, error) {
	// strip the byte order mark, npyio handles endianness from the header
	kind := strings.TrimLeft(descr, "<>|=")

	switch kind {
	case "f8":
		var v []float64
		if err := r.Read(&v); err != nil {
			return nil, fmt.Errorf("failed to read %s data: %w", descr, err)
		}
		return v, nil
	case "f4":
		var v []float32
		if err := r.Read(&v); err != nil {
			return nil, fmt.Errorf("failed to read %s data: %w", descr, err)
		}
		return widen(v), nil
	case "u1":
		var v []uint8
		if err := r.Read(&v); err != nil {
			return nil, fmt.Errorf("failed to read %s data: %w", descr, err)
		}
		return widen(v), nil
	case "i1":
		var v []int8
		if err := r.Read(&v); err != nil {
			return nil, fmt.Errorf("failed to read %s data: %w", descr, err)
		}
		return widen(v), nil
	case "u2":
		var v []uint16
		if err := r.Read(&v); err != nil {
			return nil, fmt.Errorf("failed to read %s data: %w", descr, err)
		}
		return widen(v), nil
	case "i2":
		var v []int16
		if err := r.Read(&v); err != nil {
			return nil, fmt.Errorf("failed to read %s data: %w", descr, err)
		}
		return widen(v), nil
	case "u4":
		var v []uint32
		if err := r.Read(&v); err != nil {
			return nil, fmt.Errorf("failed to read %s data: %w", descr, err)
		}
		return widen(v), nil
	case "i4":
		var v []int32
		if err := r.Read(&v); err != nil {
			return nil, fmt.Errorf("failed to read %s data: %w", descr, err)
		}
		return widen(v), nil
	case "u8":
		var v []uint64
		if err := r.Read(&v); err != nil {
			return nil, fmt.Errorf("failed to read %s data: %w", descr, err)
		}
		return widen(v), nil
	case "i8":
		var v []int64
		if err := r.Read(&v); err != nil {
			return nil, fmt.Errorf("failed to read %s data: %w", descr, err)
		}
		return widen(v), nil
	default:
		return nil, fmt.Errorf("%w: dtype %q", ErrUnsupportedArray, descr)
	}
}

type number interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

func widen[T number](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
