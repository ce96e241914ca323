// Package rastertest builds .npy payloads shaped like crop endpoint responses for tests.
package rastertest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// NPY encodes little-endian float32 data with the given C-order shape as a version 1.0 .npy file
func NPY(shape []int, data []float32) []byte {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = fmt.Sprint(d)
	}
	shapeStr := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%s), }", shapeStr)

	// magic(6) + version(2) + header length(2) + header, padded with spaces to 64 bytes and ending in \n
	total := 10 + len(header) + 1
	if rem := total % 64; rem != 0 {
		header += strings.Repeat(" ", 64-rem)
	}
	header += "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	for _, v := range data {
		_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(v))
	}
	return buf.Bytes()
}

// Tile returns a [2, h, w] payload whose first band is values and second band is mask
func Tile(h, w int, values, mask []float32) []byte {
	data := make([]float32, 0, 2*h*w)
	data = append(data, values...)
	data = append(data, mask...)
	return NPY([]int{2, h, w}, data)
}
