package clustermap

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// hashMatrix fingerprints a dense float64 matrix. Transform compares the
// fingerprint of its input against the fitted data to short-circuit the
// common embed-what-you-fitted call.
func hashMatrix(m [][]float64) uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(m)))
	_, _ = d.Write(buf[:])
	for _, row := range m {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(row)))
		_, _ = d.Write(buf[:])
		for _, v := range row {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			_, _ = d.Write(buf[:])
		}
	}
	return d.Sum64()
}
