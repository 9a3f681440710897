// Package index provides the embedding ANN index: an exact linear-scan
// variant and a partitioned variant for larger corpora. Both rank by
// cosine similarity, break ties on ascending chunk ID, accept
// incremental inserts and serialise into the vector-index region of the
// memory file.
package index

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

// Hit is one scored index match.
type Hit struct {
	ChunkID string
	Score   float64
}

// Index is the vector index contract shared by both variants.
type Index interface {
	// Add inserts one vector. Insertion is incremental; no rebuild.
	Add(chunkID string, vector []float32) error

	// Search returns up to topK hits ranked by cosine similarity,
	// descending, ties broken by ascending chunk ID.
	Search(query []float32, topK int) []Hit

	// Remove drops a chunk from the index. Unknown IDs are a no-op.
	Remove(chunkID string)

	// Len reports the number of indexed vectors.
	Len() int

	// Dimensions reports the vector dimensionality, 0 while empty.
	Dimensions() int

	// Marshal serialises the index for storage in an index region.
	Marshal() ([]byte, error)
}

const (
	artifactMagic = "MVVX"

	kindExact       byte = 1
	kindPartitioned byte = 2
)

// Unmarshal restores an index from its serialised region bytes.
func Unmarshal(data []byte) (Index, error) {
	if len(data) < 5 || string(data[0:4]) != artifactMagic {
		return nil, fmt.Errorf("invalid vector index artifact")
	}
	switch data[4] {
	case kindExact:
		return unmarshalExact(data[5:])
	case kindPartitioned:
		return unmarshalPartitioned(data[5:])
	default:
		return nil, fmt.Errorf("unknown vector index kind %d", data[4])
	}
}

type entry struct {
	chunkID string
	vector  []float32 // unit length
}

// normalize returns a unit-length copy. Zero vectors stay zero and score
// zero against everything.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func checkDimensions(have, want int) error {
	if have != want {
		return fmt.Errorf("%w: vector has %d dimensions, index expects %d",
			domain.ErrInvalidConfiguration, have, want)
	}
	return nil
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
}

// Entry wire format: [idLen u16][id bytes][dim float32s].
func marshalEntries(buf []byte, entries []entry) []byte {
	var scratch [4]byte
	for _, e := range entries {
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(e.chunkID)))
		buf = append(buf, l[:]...)
		buf = append(buf, e.chunkID...)
		for _, x := range e.vector {
			binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(x))
			buf = append(buf, scratch[:]...)
		}
	}
	return buf
}

func unmarshalEntries(data []byte, dim, count int) ([]entry, []byte, error) {
	entries := make([]entry, 0, count)
	for i := 0; i < count; i++ {
		if len(data) < 2 {
			return nil, nil, fmt.Errorf("truncated vector index entry")
		}
		idLen := int(binary.LittleEndian.Uint16(data[0:2]))
		data = data[2:]
		need := idLen + dim*4
		if len(data) < need {
			return nil, nil, fmt.Errorf("truncated vector index entry")
		}
		id := string(data[:idLen])
		vec := make([]float32, dim)
		off := idLen
		for j := 0; j < dim; j++ {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		entries = append(entries, entry{chunkID: id, vector: vec})
		data = data[need:]
	}
	return entries, data, nil
}
