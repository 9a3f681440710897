package index

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

// Partitioned is an inverted-file index: vectors are bucketed under the
// nearest of a fixed set of centroids and a search scans only the nprobe
// closest buckets. Centroids are seeded from the first vectors added, so
// a given insertion order always yields the same structure.
type Partitioned struct {
	mu         sync.RWMutex
	dim        int
	nprobe     int
	target     int // desired partition count
	centroids  [][]float32
	partitions [][]entry
	byID       map[string]struct{}
}

// NewPartitioned returns an empty partitioned index with the given
// partition count and probe width.
func NewPartitioned(partitions, nprobe int) (*Partitioned, error) {
	if partitions <= 0 {
		return nil, fmt.Errorf("%w: partition count must be positive", domain.ErrInvalidConfiguration)
	}
	if nprobe <= 0 || nprobe > partitions {
		return nil, fmt.Errorf("%w: nprobe must be in [1, %d]", domain.ErrInvalidConfiguration, partitions)
	}
	return &Partitioned{
		nprobe: nprobe,
		target: partitions,
		byID:   make(map[string]struct{}),
	}, nil
}

func (ix *Partitioned) Add(chunkID string, vector []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.dim == 0 {
		ix.dim = len(vector)
	}
	if err := checkDimensions(len(vector), ix.dim); err != nil {
		return err
	}

	v := normalize(vector)
	if _, ok := ix.byID[chunkID]; ok {
		ix.removeLocked(chunkID)
	}
	ix.byID[chunkID] = struct{}{}

	// Seed phase: the first vectors become the centroids themselves.
	if len(ix.centroids) < ix.target {
		ix.centroids = append(ix.centroids, v)
		ix.partitions = append(ix.partitions, []entry{{chunkID: chunkID, vector: v}})
		return nil
	}

	p := ix.nearestCentroid(v)
	ix.partitions[p] = append(ix.partitions[p], entry{chunkID: chunkID, vector: v})
	return nil
}

// nearestCentroid picks the highest-similarity centroid; equal scores
// resolve to the lowest partition index.
func (ix *Partitioned) nearestCentroid(v []float32) int {
	best, bestScore := 0, math.Inf(-1)
	for i, c := range ix.centroids {
		if score := dot(v, c); score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func (ix *Partitioned) Search(query []float32, topK int) []Hit {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if topK <= 0 || len(ix.centroids) == 0 || len(query) != ix.dim {
		return nil
	}

	q := normalize(query)
	order := make([]int, len(ix.centroids))
	scores := make([]float64, len(ix.centroids))
	for i, c := range ix.centroids {
		order[i] = i
		scores[i] = dot(q, c)
	}
	// Selection sort of the probe heads keeps ordering deterministic.
	probes := ix.nprobe
	if probes > len(order) {
		probes = len(order)
	}
	for i := 0; i < probes; i++ {
		best := i
		for j := i + 1; j < len(order); j++ {
			if scores[order[j]] > scores[order[best]] ||
				(scores[order[j]] == scores[order[best]] && order[j] < order[best]) {
				best = j
			}
		}
		order[i], order[best] = order[best], order[i]
	}

	var hits []Hit
	for _, p := range order[:probes] {
		for _, e := range ix.partitions[p] {
			hits = append(hits, Hit{ChunkID: e.chunkID, Score: dot(q, e.vector)})
		}
	}
	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func (ix *Partitioned) Remove(chunkID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(chunkID)
}

func (ix *Partitioned) removeLocked(chunkID string) {
	if _, ok := ix.byID[chunkID]; !ok {
		return
	}
	delete(ix.byID, chunkID)
	for p := range ix.partitions {
		for i, e := range ix.partitions[p] {
			if e.chunkID == chunkID {
				ix.partitions[p] = append(ix.partitions[p][:i], ix.partitions[p][i+1:]...)
				return
			}
		}
	}
}

func (ix *Partitioned) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}

func (ix *Partitioned) Dimensions() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Marshal layout after the shared prefix: [dim u32][target u32]
// [nprobe u32][centroidCount u32][centroid float32s...] then per
// partition [count u32][entries].
func (ix *Partitioned) Marshal() ([]byte, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	buf := append([]byte{}, artifactMagic...)
	buf = append(buf, kindPartitioned)
	var u [4]byte
	for _, v := range []uint32{uint32(ix.dim), uint32(ix.target), uint32(ix.nprobe), uint32(len(ix.centroids))} {
		binary.LittleEndian.PutUint32(u[:], v)
		buf = append(buf, u[:]...)
	}
	for _, c := range ix.centroids {
		for _, x := range c {
			binary.LittleEndian.PutUint32(u[:], math.Float32bits(x))
			buf = append(buf, u[:]...)
		}
	}
	for _, p := range ix.partitions {
		binary.LittleEndian.PutUint32(u[:], uint32(len(p)))
		buf = append(buf, u[:]...)
		buf = marshalEntries(buf, p)
	}
	return buf, nil
}

func unmarshalPartitioned(data []byte) (*Partitioned, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("truncated partitioned index header")
	}
	dim := int(binary.LittleEndian.Uint32(data[0:4]))
	target := int(binary.LittleEndian.Uint32(data[4:8]))
	nprobe := int(binary.LittleEndian.Uint32(data[8:12]))
	centroidCount := int(binary.LittleEndian.Uint32(data[12:16]))
	data = data[16:]

	ix, err := NewPartitioned(target, nprobe)
	if err != nil {
		return nil, err
	}
	ix.dim = dim

	if len(data) < centroidCount*dim*4 {
		return nil, fmt.Errorf("truncated partitioned index centroids")
	}
	for i := 0; i < centroidCount; i++ {
		c := make([]float32, dim)
		for j := 0; j < dim; j++ {
			c[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[j*4 : j*4+4]))
		}
		ix.centroids = append(ix.centroids, c)
		data = data[dim*4:]
	}

	for i := 0; i < centroidCount; i++ {
		if len(data) < 4 {
			return nil, fmt.Errorf("truncated partitioned index partition")
		}
		count := int(binary.LittleEndian.Uint32(data[0:4]))
		entries, rest, err := unmarshalEntries(data[4:], dim, count)
		if err != nil {
			return nil, err
		}
		ix.partitions = append(ix.partitions, entries)
		for _, e := range entries {
			ix.byID[e.chunkID] = struct{}{}
		}
		data = rest
	}
	return ix, nil
}
