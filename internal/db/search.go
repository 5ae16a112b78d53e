package db

import (
	"encoding/binary"
	"math"

	"github.com/redis/rueidis"
)

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string // defaults to "vector"
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit. Score is cosine similarity (1 - distance).
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// VectorToBytes packs a vector as little-endian FLOAT32, the layout FT indexes expect.
func VectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// VectorBlob returns the packed vector as a binary-safe string for HASH fields and query params.
func VectorBlob(v []float32) string {
	return rueidis.BinaryString(VectorToBytes(v))
}
