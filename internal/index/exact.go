package index

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Exact is the linear-scan index. Every search touches every vector, so
// recall is perfect; it is the default below a few tens of thousands of
// chunks.
type Exact struct {
	mu      sync.RWMutex
	dim     int
	entries []entry
	byID    map[string]int
}

// NewExact returns an empty exact index.
func NewExact() *Exact {
	return &Exact{byID: make(map[string]int)}
}

func (ix *Exact) Add(chunkID string, vector []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.dim == 0 {
		ix.dim = len(vector)
	}
	if err := checkDimensions(len(vector), ix.dim); err != nil {
		return err
	}
	if pos, ok := ix.byID[chunkID]; ok {
		ix.entries[pos].vector = normalize(vector)
		return nil
	}
	ix.byID[chunkID] = len(ix.entries)
	ix.entries = append(ix.entries, entry{chunkID: chunkID, vector: normalize(vector)})
	return nil
}

func (ix *Exact) Search(query []float32, topK int) []Hit {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if topK <= 0 || len(ix.entries) == 0 || len(query) != ix.dim {
		return nil
	}

	q := normalize(query)
	hits := make([]Hit, 0, len(ix.entries))
	for _, e := range ix.entries {
		hits = append(hits, Hit{ChunkID: e.chunkID, Score: dot(q, e.vector)})
	}
	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func (ix *Exact) Remove(chunkID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	pos, ok := ix.byID[chunkID]
	if !ok {
		return
	}
	ix.entries = append(ix.entries[:pos], ix.entries[pos+1:]...)
	delete(ix.byID, chunkID)
	for i := pos; i < len(ix.entries); i++ {
		ix.byID[ix.entries[i].chunkID] = i
	}
}

func (ix *Exact) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

func (ix *Exact) Dimensions() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Marshal layout after the shared prefix: [dim u32][count u32][entries].
func (ix *Exact) Marshal() ([]byte, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	buf := make([]byte, 0, 5+8+len(ix.entries)*(2+ix.dim*4+36))
	buf = append(buf, artifactMagic...)
	buf = append(buf, kindExact)
	var u [4]byte
	binary.LittleEndian.PutUint32(u[:], uint32(ix.dim))
	buf = append(buf, u[:]...)
	binary.LittleEndian.PutUint32(u[:], uint32(len(ix.entries)))
	buf = append(buf, u[:]...)
	return marshalEntries(buf, ix.entries), nil
}

func unmarshalExact(data []byte) (*Exact, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("truncated exact index header")
	}
	dim := int(binary.LittleEndian.Uint32(data[0:4]))
	count := int(binary.LittleEndian.Uint32(data[4:8]))
	entries, _, err := unmarshalEntries(data[8:], dim, count)
	if err != nil {
		return nil, err
	}
	ix := NewExact()
	ix.dim = dim
	ix.entries = entries
	for i, e := range entries {
		ix.byID[e.chunkID] = i
	}
	return ix, nil
}
